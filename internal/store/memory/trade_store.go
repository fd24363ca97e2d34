// Package memory provides in-memory store implementations backing sim mode
// and tests, mirroring the semantics of the postgres stores.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// TradeStore is an append-only in-memory fill log.
type TradeStore struct {
	mu     sync.Mutex
	nextID int64
	trades []domain.TradeRecord
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{nextID: 1}
}

// Append stores a trade record, assigning it the next sequence ID.
func (s *TradeStore) Append(_ context.Context, trade domain.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trade.ID = s.nextID
	s.nextID++
	s.trades = append(s.trades, trade)
	return nil
}

// ListByContract returns trades for a contract, newest first.
func (s *TradeStore) ListByContract(_ context.Context, contractID string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.TradeRecord
	for i := len(s.trades) - 1; i >= 0; i-- {
		t := s.trades[i]
		if t.ContractID != contractID {
			continue
		}
		if opts.Since != nil && t.Timestamp.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && t.Timestamp.After(*opts.Until) {
			continue
		}
		matched = append(matched, t)
	}

	return paginate(matched, opts), nil
}

// LastTimestamp returns the most recent trade time for a contract, or the
// zero time when none exist.
func (s *TradeStore) LastTimestamp(_ context.Context, contractID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last time.Time
	for _, t := range s.trades {
		if t.ContractID == contractID && t.Timestamp.After(last) {
			last = t.Timestamp
		}
	}
	return last, nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
