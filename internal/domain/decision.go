package domain

import "time"

// DecisionKind classifies audit entries emitted by the monitor loop.
type DecisionKind string

const (
	DecisionRiskDenied  DecisionKind = "risk_denied"
	DecisionStateChange DecisionKind = "state_change"
	DecisionProfitLock  DecisionKind = "profit_lock"
	DecisionOrderPlaced DecisionKind = "order_placed"
	DecisionOrderClosed DecisionKind = "order_closed"
)

// DecisionRecord is an append-only audit entry for one decision step
// outcome: a risk denial, a monitor state transition, or an order event.
type DecisionRecord struct {
	ID         int64
	ContractID string
	Kind       DecisionKind
	Reason     string
	Detail     string
	Timestamp  time.Time
}
