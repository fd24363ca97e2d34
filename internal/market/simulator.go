// Package market provides the Quote Source implementations: the CLOB REST
// client, the websocket feed, and the random-walk simulator.
package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Simulator is a self-contained random-walk market implementing
// domain.QuoteSource. Each contract gets its own independent walk with a
// fixed settlement clock, which makes sim mode and tests reproducible when
// a seed is set.
type Simulator struct {
	cfg config.SimulatorConfig

	mu    sync.Mutex
	rng   *rand.Rand
	walks map[string]*walk
	now   func() time.Time
}

type walk struct {
	yesPrice   float64
	settlement time.Time
	deadSide   *domain.Side
}

// NewSimulator creates a Simulator from config. A zero seed falls back to
// the wall clock.
func NewSimulator(cfg config.SimulatorConfig) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		walks: make(map[string]*walk),
		now:   time.Now,
	}
}

// PairQuote advances the contract's walk one step and returns the resulting
// synchronized book for both sides. It never fails; the simulator exists so
// the rest of the engine can run without an exchange.
func (s *Simulator) PairQuote(_ context.Context, contractID string) (domain.PairQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.walks[contractID]
	if !ok {
		w = &walk{
			yesPrice:   s.cfg.InitialYesPrice,
			settlement: s.now().Add(s.cfg.SettlementIn.Duration),
		}
		s.walks[contractID] = w
	}

	// Symmetric random step, clamped away from the boundaries so both
	// sides keep a two-sided book.
	step := (s.rng.Float64()*2 - 1) * s.cfg.Volatility
	w.yesPrice = clamp(w.yesPrice+step, 0.05, 0.95)

	half := s.cfg.SpreadWidth / 2
	yes := domain.SideQuote{
		BestBid: clamp(w.yesPrice-half, 0.01, 0.99),
		BestAsk: clamp(w.yesPrice+half, 0.01, 0.99),
		BidSize: s.cfg.BookDepth,
		AskSize: s.cfg.BookDepth,
	}
	noPrice := 1 - w.yesPrice
	no := domain.SideQuote{
		BestBid: clamp(noPrice-half, 0.01, 0.99),
		BestAsk: clamp(noPrice+half, 0.01, 0.99),
		BidSize: s.cfg.BookDepth,
		AskSize: s.cfg.BookDepth,
	}

	if w.deadSide != nil {
		dead := domain.SideQuote{BestBid: 0.01, BestAsk: 0.03}
		if *w.deadSide == domain.SideYes {
			yes = dead
		} else {
			no = dead
		}
	}

	return domain.PairQuote{
		ContractID: contractID,
		Yes:        yes,
		No:         no,
		Settlement: w.settlement,
		Timestamp:  s.now(),
	}, nil
}

// KillSide collapses one side of a contract to a near-zero book with no
// resting volume, as if the market had already resolved against it. Sim
// mode and tests use it to exercise the dead-side protection.
func (s *Simulator) KillSide(contractID string, side domain.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.walks[contractID]
	if !ok {
		w = &walk{yesPrice: s.cfg.InitialYesPrice}
		s.walks[contractID] = w
	}
	w.deadSide = &side
}

// SetSettlement overrides a contract's settlement time.
func (s *Simulator) SetSettlement(contractID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.walks[contractID]
	if !ok {
		w = &walk{yesPrice: s.cfg.InitialYesPrice}
		s.walks[contractID] = w
	}
	w.settlement = at
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Compile-time interface check.
var _ domain.QuoteSource = (*Simulator)(nil)
