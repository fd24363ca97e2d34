package domain

import (
	"context"
	"time"
)

// QuoteCache holds the latest pair quote per contract so the monitor's
// fetch path never blocks on HTTP when a live feed is running.
type QuoteCache interface {
	SetPairQuote(ctx context.Context, quote PairQuote) error
	GetPairQuote(ctx context.Context, contractID string) (PairQuote, error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub for live snapshot fan-out and durable streams
// for fill and decision events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// RateLimiter bounds request rates per key over a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed mutual exclusion, used to keep a single
// trading instance per deployment. Acquire returns ErrLockHeld when another
// holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
