package domain

import "time"

// TradeRecord is an immutable log entry appended on every simulated fill.
// The decision engine never reads it back; it exists for reporting, audit,
// and archival.
type TradeRecord struct {
	ID         int64
	OrderID    string
	ContractID string
	Side       Side
	Direction  OrderDirection
	Intent     OrderIntent
	Quantity   float64
	Price      float64
	Cost       float64
	Timestamp  time.Time
}
