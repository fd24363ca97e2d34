package risk

import (
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// UnhedgedTracker follows how long one side of a pair has been strictly
// larger than the other. It never denies an order; once the duration
// exceeds the limit it escalates rebalancing urgency instead, since
// blocking could leave the one-sided risk unresolved.
//
// The tracker belongs to a single decision stream and is not safe for
// concurrent use.
type UnhedgedTracker struct {
	limit time.Duration
	side  *domain.Side
	since time.Time
}

// NewUnhedgedTracker creates a tracker with the given duration limit.
func NewUnhedgedTracker(limit time.Duration) *UnhedgedTracker {
	return &UnhedgedTracker{limit: limit}
}

// Observe updates the tracker with the current pair state and reports
// whether rebalancing urgency should be escalated. The clock resets when
// the larger side flips or the book balances.
func (t *UnhedgedTracker) Observe(pair domain.PairPosition, now time.Time) bool {
	larger := pair.LargerSide()
	if larger == nil {
		t.Reset()
		return false
	}

	if t.side == nil || *t.side != *larger {
		t.side = larger
		t.since = now
		return false
	}

	return now.Sub(t.since) > t.limit
}

// Duration returns how long the current side has been unhedged, or zero
// when the book is balanced.
func (t *UnhedgedTracker) Duration(now time.Time) time.Duration {
	if t.side == nil {
		return 0
	}
	return now.Sub(t.since)
}

// Reset clears the tracker state.
func (t *UnhedgedTracker) Reset() {
	t.side = nil
	t.since = time.Time{}
}
