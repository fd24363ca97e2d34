package domain

import "time"

// OrderDirection indicates whether this is a buy or sell.
type OrderDirection string

const (
	OrderDirectionBuy  OrderDirection = "buy"
	OrderDirectionSell OrderDirection = "sell"
)

// OrderIntent records why the order was placed.
type OrderIntent string

const (
	OrderIntentEntry     OrderIntent = "entry"
	OrderIntentRebalance OrderIntent = "rebalance"
	OrderIntentWindDown  OrderIntent = "winddown"
)

// OrderStatus tracks the order lifecycle. Every order starts PENDING and
// resolves to exactly one terminal state.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusExpired  OrderStatus = "expired"
	OrderStatusRejected OrderStatus = "rejected"
)

// Order is a simulated limit order on one side of a contract pair. Market
// orders do not exist here; the strategy's margin depends on controlling
// the exact fill price.
type Order struct {
	ID           string
	ContractID   string
	Side         Side
	Direction    OrderDirection
	Intent       OrderIntent
	PriceTicks   int64 // fixed-point: price * 1e6
	SizeUnits    int64 // fixed-point: size  * 1e6
	Status       OrderStatus
	RejectReason string
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// Price returns the float64 display price from fixed-point ticks.
func (o Order) Price() float64 {
	return float64(o.PriceTicks) / 1e6
}

// Size returns the float64 display size from fixed-point units.
func (o Order) Size() float64 {
	return float64(o.SizeUnits) / 1e6
}

// Fill describes the terms a pending order matched at.
type Fill struct {
	OrderID   string
	Side      Side
	Quantity  float64
	Price     float64
	Timestamp time.Time
}
