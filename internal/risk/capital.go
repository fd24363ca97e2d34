package risk

import "sync"

// CapitalBook owns the aggregate of capital committed across all monitored
// pairs. It is the only cross-pair shared mutable state in the engine; a
// single mutex is sufficient because contention is bounded by the poll
// cadence.
//
// Capital moves through three stages: a pending order Reserves its cost,
// then either Commits it on fill or Releases it on expiry/rejection. Sells
// Refund committed capital.
type CapitalBook struct {
	mu        sync.Mutex
	limit     float64
	reserved  map[string]float64
	committed map[string]float64
}

// NewCapitalBook creates a CapitalBook with the given aggregate limit.
func NewCapitalBook(limit float64) *CapitalBook {
	return &CapitalBook{
		limit:     limit,
		reserved:  make(map[string]float64),
		committed: make(map[string]float64),
	}
}

// Reserve atomically checks the aggregate limit and earmarks amount for a
// pending order. It returns false, without reserving, when the projected
// aggregate would exceed the limit.
func (b *CapitalBook) Reserve(contractID string, amount float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.totalLocked()+amount > b.limit {
		return false
	}
	b.reserved[contractID] += amount
	return true
}

// Release returns a reservation after an order expired or was rejected.
func (b *CapitalBook) Release(contractID string, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reserved[contractID] -= amount
	if b.reserved[contractID] <= 0 {
		delete(b.reserved, contractID)
	}
}

// Commit converts a reservation into committed capital on fill. The actual
// fill cost may differ slightly from the reserved amount after tick
// rounding.
func (b *CapitalBook) Commit(contractID string, reserved, actual float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reserved[contractID] -= reserved
	if b.reserved[contractID] <= 0 {
		delete(b.reserved, contractID)
	}
	b.committed[contractID] += actual
}

// Refund reduces committed capital after a sell.
func (b *CapitalBook) Refund(contractID string, amount float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.committed[contractID] -= amount
	if b.committed[contractID] <= 0 {
		delete(b.committed, contractID)
	}
}

// Forget drops all capital tracked for a contract, used when a monitor is
// reset or its contract settles.
func (b *CapitalBook) Forget(contractID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.reserved, contractID)
	delete(b.committed, contractID)
}

// WouldExceed reports whether adding amount to the aggregate would break
// the limit.
func (b *CapitalBook) WouldExceed(amount float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalLocked()+amount > b.limit
}

// Total returns reserved plus committed capital across all contracts.
func (b *CapitalBook) Total() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalLocked()
}

// Committed returns committed capital across all contracts.
func (b *CapitalBook) Committed() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sum float64
	for _, v := range b.committed {
		sum += v
	}
	return sum
}

// totalLocked must be called with the mutex held.
func (b *CapitalBook) totalLocked() float64 {
	var sum float64
	for _, v := range b.reserved {
		sum += v
	}
	for _, v := range b.committed {
		sum += v
	}
	return sum
}
