// Package rebalance decides which side of a pair should receive priority
// order flow when holdings drift apart.
package rebalance

import "github.com/alanyoungcy/hedgebot/internal/domain"

// Urgency grades how aggressively the weak side should be filled.
type Urgency string

const (
	UrgencyNormal    Urgency = "normal"
	UrgencyEscalated Urgency = "escalated"
)

// Plan is the rebalancing verdict for one decision step. A nil PrioritySide
// means holdings are balanced enough that fresh entries may proceed.
type Plan struct {
	PrioritySide *domain.Side
	Urgency      Urgency
}

// Decide is a pure function of the pair state and the ratio cap. When the
// imbalance ratio reaches the cap, the smaller side gets priority; urgency
// escalates when the unhedged-duration tracker has fired, which widens the
// acceptable limit-price slippage downstream. It trades price for speed,
// bounded by max slippage, never unconditional market-taking.
func Decide(pair domain.PairPosition, maxDeltaRatio float64, escalated bool) Plan {
	if pair.ImbalanceRatio() < maxDeltaRatio {
		return Plan{Urgency: UrgencyNormal}
	}

	larger := pair.LargerSide()
	if larger == nil {
		return Plan{Urgency: UrgencyNormal}
	}

	weak := larger.Opposite()
	urgency := UrgencyNormal
	if escalated {
		urgency = UrgencyEscalated
	}
	return Plan{PrioritySide: &weak, Urgency: urgency}
}
