package domain

import (
	"context"
	"time"
)

// SideQuote is the top of book for one leg of a binary pair. A zero value
// on any field means that level is absent, not that it trades at zero.
type SideQuote struct {
	BestBid float64
	BestAsk float64
	BidSize float64
	AskSize float64
}

// Mid returns the midpoint of the best bid and ask. With a one-sided book
// it falls back to whichever level exists, and 0 on an empty book.
func (q SideQuote) Mid() float64 {
	switch {
	case q.BestBid > 0 && q.BestAsk > 0:
		return (q.BestBid + q.BestAsk) / 2
	case q.BestBid > 0:
		return q.BestBid
	default:
		return q.BestAsk
	}
}

// HasVolume reports whether any resting size exists on either side of the
// book.
func (q SideQuote) HasVolume() bool {
	return q.BidSize > 0 || q.AskSize > 0
}

// PairQuote is one synchronized observation of both legs of a contract pair
// plus the contract's settlement clock.
type PairQuote struct {
	ContractID string
	Yes        SideQuote
	No         SideQuote
	Settlement time.Time
	Timestamp  time.Time
}

// Quote returns the book for one side.
func (pq PairQuote) Quote(side Side) SideQuote {
	if side == SideYes {
		return pq.Yes
	}
	return pq.No
}

// TimeToSettlement returns the remaining time before the contract resolves.
// Negative when the settlement time has passed.
func (pq PairQuote) TimeToSettlement(now time.Time) time.Duration {
	return pq.Settlement.Sub(now)
}

// QuoteSource supplies synchronized pair quotes for a contract. A failed or
// timed-out fetch returns an error wrapping ErrQuoteUnavailable; callers
// treat it as "no trigger this tick", never as fatal.
type QuoteSource interface {
	PairQuote(ctx context.Context, contractID string) (PairQuote, error)
}
