package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists the append-only fill log.
type TradeStore interface {
	Append(ctx context.Context, trade TradeRecord) error
	ListByContract(ctx context.Context, contractID string, opts ListOpts) ([]TradeRecord, error)
	LastTimestamp(ctx context.Context, contractID string) (time.Time, error)
}

// DecisionStore persists the append-only decision audit log.
type DecisionStore interface {
	Append(ctx context.Context, rec DecisionRecord) error
	ListByContract(ctx context.Context, contractID string, opts ListOpts) ([]DecisionRecord, error)
}
