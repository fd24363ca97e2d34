// Package risk implements the pre-trade gate: an ordered sequence of
// predicates consulted before any simulated order is placed. Evaluation is
// cheapest-first, short-circuits on the first denial, and always surfaces
// the denial reason.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Request describes a proposed buy evaluated by the gate. All fields are a
// point-in-time view captured by the caller's decision step; the quote must
// be the current one, never a stale cache entry.
type Request struct {
	ContractID string
	Side       domain.Side
	Quantity   float64
	LimitPrice float64
	Pair       domain.PairPosition
	Quote      domain.PairQuote
	Now        time.Time
}

// Decision is the gate verdict. Reason and Detail are set only on denial.
type Decision struct {
	Allowed bool
	Reason  domain.DenyReason
	Detail  string
}

// Err converts a denial into a RiskDeniedError, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &domain.RiskDeniedError{Reason: d.Reason, Detail: d.Detail}
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason domain.DenyReason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Gate evaluates the risk predicates against immutable thresholds and the
// shared capital book.
type Gate struct {
	cfg     config.RiskConfig
	capital *CapitalBook
	logger  *slog.Logger
}

// NewGate creates a Gate.
func NewGate(cfg config.RiskConfig, capital *CapitalBook, logger *slog.Logger) *Gate {
	return &Gate{
		cfg:     cfg,
		capital: capital,
		logger:  logger.With(slog.String("component", "risk_gate")),
	}
}

// CheckBuy runs the ordered predicates for a proposed buy and returns the
// first denial, if any. Denials are expected control flow and are logged at
// debug level; they are the gate doing its job.
func (g *Gate) CheckBuy(req Request) Decision {
	checks := []func(Request) Decision{
		g.checkAdmission,
		g.checkExposure,
		g.checkDeadSide,
		g.checkCapital,
		g.checkSettlement,
	}

	for _, check := range checks {
		if d := check(req); !d.Allowed {
			g.logger.Debug("order denied",
				slog.String("contract", req.ContractID),
				slog.String("side", string(req.Side)),
				slog.Float64("qty", req.Quantity),
				slog.Float64("limit", req.LimitPrice),
				slog.String("reason", string(d.Reason)),
				slog.String("detail", d.Detail))
			return d
		}
	}
	return allow()
}

// CheckSell gates reducing orders. Sells shrink exposure, so every buy
// predicate, including the settlement lock, stays out of their way; only
// basic sanity on the requested quantity applies.
func (g *Gate) CheckSell(req Request) Decision {
	held := req.Pair.Get(req.Side).Quantity
	if req.Quantity > held {
		return deny(domain.DenyOversizeSell,
			fmt.Sprintf("sell %.2f exceeds held %.2f on %s", req.Quantity, held, req.Side))
	}
	return allow()
}

// checkAdmission is the no-loss invariant: a fill is only admissible if the
// worst-case completion of the hedge, buying the opposing side at its live
// best ask, still clears the minimum expected ROI. The opposing side's
// average cost and any fixed default are both wrong here.
func (g *Gate) checkAdmission(req Request) Decision {
	opposing := req.Quote.Quote(req.Side.Opposite())
	if opposing.BestAsk <= 0 {
		return deny(domain.DenyNoArbSpace,
			fmt.Sprintf("no live ask on %s to price the hedge completion", req.Side.Opposite()))
	}

	pos := req.Pair.Get(req.Side)
	newAvg := (pos.Cost + req.LimitPrice*req.Quantity) / (pos.Quantity + req.Quantity)
	simulatedPairCost := newAvg + opposing.BestAsk + g.cfg.FeeBuffer

	threshold := 1.0 - g.cfg.MinExpectedROI
	if simulatedPairCost > threshold {
		return deny(domain.DenyNoArbSpace,
			fmt.Sprintf("simulated pair cost %.4f > %.4f (new avg %.4f + opposing ask %.4f + fee %.4f)",
				simulatedPairCost, threshold, newAvg, opposing.BestAsk, g.cfg.FeeBuffer))
	}
	return allow()
}

// checkExposure bounds the post-fill imbalance ratio. Buys of the weaker
// side always reduce imbalance and pass; a buy that grows the strictly
// larger side past the ratio cap is denied.
func (g *Gate) checkExposure(req Request) Decision {
	larger := req.Pair.LargerSide()
	if larger == nil || *larger != req.Side {
		return allow()
	}

	newYes := req.Pair.Yes.Quantity
	newNo := req.Pair.No.Quantity
	if req.Side == domain.SideYes {
		newYes += req.Quantity
	} else {
		newNo += req.Quantity
	}

	ratio := math.Abs(newYes-newNo) / math.Max(newYes, newNo)
	if ratio > g.cfg.MaxDeltaRatio {
		return deny(domain.DenyExposureLimit,
			fmt.Sprintf("post-fill imbalance %.4f > %.4f buying larger side %s", ratio, g.cfg.MaxDeltaRatio, req.Side))
	}
	return allow()
}

// checkDeadSide refuses to keep buying one side when the opposing side has
// near-zero price and no resting volume at all: that market has effectively
// resolved, and the remaining side is uncapped downside, not a hedge.
func (g *Gate) checkDeadSide(req Request) Decision {
	opposing := req.Quote.Quote(req.Side.Opposite())
	if opposing.Mid() < g.cfg.DeadSideThreshold && !opposing.HasVolume() {
		return deny(domain.DenyDeadSide,
			fmt.Sprintf("%s mid %.4f below %.4f with empty book", req.Side.Opposite(), opposing.Mid(), g.cfg.DeadSideThreshold))
	}
	return allow()
}

// checkCapital bounds both the per-pair window cost and the aggregate
// committed across all monitored pairs.
func (g *Gate) checkCapital(req Request) Decision {
	cost := req.LimitPrice * req.Quantity

	projected := req.Pair.TotalCost() + cost
	if projected > g.cfg.MaxPositionPerWindow {
		return deny(domain.DenyCapitalLimit,
			fmt.Sprintf("projected window cost %.2f > %.2f", projected, g.cfg.MaxPositionPerWindow))
	}

	if g.capital.WouldExceed(cost) {
		return deny(domain.DenyCapitalLimit,
			fmt.Sprintf("aggregate capital %.2f + %.2f > %.2f", g.capital.Total(), cost, g.cfg.MaxTotalCapital))
	}
	return allow()
}

// checkSettlement locks out new buys inside the settlement window. Sells
// are not gated here; see CheckSell.
func (g *Gate) checkSettlement(req Request) Decision {
	if req.Quote.Settlement.IsZero() {
		return allow()
	}
	remaining := req.Quote.TimeToSettlement(req.Now)
	if remaining <= g.cfg.LockWindow.Duration {
		return deny(domain.DenySettlementLock,
			fmt.Sprintf("%.0fs to settlement <= lock window %.0fs", remaining.Seconds(), g.cfg.LockWindow.Duration.Seconds()))
	}
	return allow()
}
