package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// DecisionStore is an append-only in-memory decision audit log.
type DecisionStore struct {
	mu      sync.Mutex
	nextID  int64
	records []domain.DecisionRecord
}

// NewDecisionStore creates an empty DecisionStore.
func NewDecisionStore() *DecisionStore {
	return &DecisionStore{nextID: 1}
}

// Append stores a decision record, assigning it the next sequence ID.
func (s *DecisionStore) Append(_ context.Context, rec domain.DecisionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++
	s.records = append(s.records, rec)
	return nil
}

// ListByContract returns decision records for a contract, newest first.
func (s *DecisionStore) ListByContract(_ context.Context, contractID string, opts domain.ListOpts) ([]domain.DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.DecisionRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.ContractID != contractID {
			continue
		}
		if opts.Since != nil && r.Timestamp.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && r.Timestamp.After(*opts.Until) {
			continue
		}
		matched = append(matched, r)
	}

	return paginate(matched, opts), nil
}

// Compile-time interface check.
var _ domain.DecisionStore = (*DecisionStore)(nil)
