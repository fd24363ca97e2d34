// Package monitor runs the per-contract decision loop: fetch quotes on a
// fixed cadence, hold the pair ledger, and drive entries, rebalancing, and
// wind-down through the execution engine. One Monitor per contract, one
// goroutine per Monitor, no shared mutable state between them beyond the
// capital book inside the risk gate.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/notify"
	"github.com/alanyoungcy/hedgebot/internal/rebalance"
	"github.com/alanyoungcy/hedgebot/internal/risk"
)

// SnapshotChannel is the pub/sub channel carrying per-step snapshots.
const SnapshotChannel = "hedgebot:snapshots"

// Executor places simulated orders against the live book. Satisfied by
// execution.Engine.
type Executor interface {
	SubmitBuy(ctx context.Context, pair *domain.PairPosition, contractID string, side domain.Side, quantity float64, urgency rebalance.Urgency, intent domain.OrderIntent) (domain.Order, error)
	SubmitSell(ctx context.Context, pair *domain.PairPosition, contractID string, side domain.Side, quantity float64, intent domain.OrderIntent) (domain.Order, error)
}

// Alerter fans decision events out to notification channels. Satisfied by
// notify.Notifier.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Deps bundles the collaborators a Monitor needs. Bus and Alerts may be nil;
// the loop then runs without fan-out. ReadOnly monitors observe and snapshot
// but never place orders.
type Deps struct {
	Quotes    domain.QuoteSource
	Exec      Executor
	Trades    domain.TradeStore
	Decisions domain.DecisionStore
	Bus       domain.SignalBus
	Alerts    Alerter
	Capital   *risk.CapitalBook
	Logger    *slog.Logger
	ReadOnly  bool
}

// Monitor owns the decision state for one contract pair. All ledger
// mutations happen inside its decision step, so a step is atomic with
// respect to the pair.
type Monitor struct {
	contractID string
	cfg        config.MonitorConfig
	riskCfg    config.RiskConfig
	deps       Deps
	unhedged   *risk.UnhedgedTracker
	logger     *slog.Logger
	now        func() time.Time

	mu           sync.Mutex
	state        domain.MonitorState
	pair         domain.PairPosition
	windingDown  bool
	lastDecision string
	lastInBand   map[domain.Side]bool

	snapMu sync.Mutex
	snap   domain.Snapshot
}

// New creates a Monitor in the IDLE state.
func New(contractID string, cfg config.MonitorConfig, riskCfg config.RiskConfig, deps Deps) *Monitor {
	return &Monitor{
		contractID: contractID,
		cfg:        cfg,
		riskCfg:    riskCfg,
		deps:       deps,
		unhedged:   risk.NewUnhedgedTracker(riskCfg.MaxUnhedged.Duration),
		logger: deps.Logger.With(
			slog.String("component", "monitor"),
			slog.String("contract", contractID)),
		now:        time.Now,
		state:      domain.MonitorIdle,
		lastInBand: make(map[domain.Side]bool),
		snap: domain.Snapshot{
			ContractID: contractID,
			State:      domain.MonitorIdle,
		},
	}
}

// Run ticks the decision loop until the context is cancelled or the monitor
// reaches its terminal state. Context cancellation is a normal stop, not an
// error.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor starting",
		slog.Duration("poll_interval", m.cfg.PollInterval.Duration),
		slog.Bool("read_only", m.deps.ReadOnly))

	ticker := time.NewTicker(m.cfg.PollInterval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.shutdown("cancelled")
			return nil
		case <-ticker.C:
			if m.step(ctx) {
				m.logFinalSummary()
				return nil
			}
		}
	}
}

// step executes one atomic decision for the pair and reports whether the
// monitor reached its terminal state.
func (m *Monitor) step(ctx context.Context) bool {
	now := m.now()
	quote, err := m.deps.Quotes.PairQuote(ctx, m.contractID)
	if err != nil {
		// Transient by definition. Skip the tick and try again.
		m.logger.Debug("quote unavailable, skipping tick", slog.String("error", err.Error()))
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == domain.MonitorIdle {
		m.setState(ctx, domain.MonitorWatching, "first quote received")
	}

	yesMid, noMid := quote.Yes.Mid(), quote.No.Mid()

	if m.settlementCutoff(quote, now) {
		m.setState(ctx, domain.MonitorStopped, "settlement cutoff with no exposure")
		m.publishSnapshot(ctx, yesMid, noMid)
		return true
	}

	m.checkProfitLock(ctx, yesMid, noMid)
	m.checkPairCostStop(ctx, yesMid, noMid)

	escalated := m.unhedged.Observe(m.pair, now)
	inBand := map[domain.Side]bool{
		domain.SideYes: m.inBand(yesMid),
		domain.SideNo:  m.inBand(noMid),
	}

	switch {
	case m.deps.ReadOnly:
		// Observe only.
	case m.windingDown:
		m.stepWindDown(ctx)
	default:
		m.stepTrade(ctx, escalated, inBand, yesMid, noMid)
	}

	m.lastInBand = inBand
	m.publishSnapshot(ctx, yesMid, noMid)
	return false
}

// settlementCutoff reports whether the contract is inside the lock window
// with nothing at risk. Holding through settlement is fine; sitting flat
// inside a window where no buy can pass the gate is not worth a goroutine.
func (m *Monitor) settlementCutoff(quote domain.PairQuote, now time.Time) bool {
	if quote.Settlement.IsZero() {
		return false
	}
	if quote.TimeToSettlement(now) > m.riskCfg.LockWindow.Duration {
		return false
	}
	return m.pair.Yes.Quantity == 0 && m.pair.No.Quantity == 0
}

// checkProfitLock flips the monitor into wind-down once the hedge is locked:
// the guaranteed payout exceeds everything spent. The flag never clears.
func (m *Monitor) checkProfitLock(ctx context.Context, yesMid, noMid float64) {
	if m.windingDown || !m.pair.IsProfitable() {
		return
	}
	m.windingDown = true
	detail := fmt.Sprintf("min quantity %.2f > total cost %.2f, pair cost %.4f",
		m.pair.MinQuantity(), m.pair.TotalCost(), m.pair.PairCost(yesMid, noMid))
	m.record(ctx, domain.DecisionProfitLock, "profit_locked", detail)
	m.alert(ctx, notify.EventProfitLocked, "Profit locked", detail)
	m.logger.Info("profit locked, winding down", slog.String("detail", detail))
}

// checkPairCostStop winds down a hedged pair whose realized cost has drifted
// above the ROI bar. Only meaningful with both sides held; a single-sided
// book is the unhedged tracker's problem, not a cost stop.
func (m *Monitor) checkPairCostStop(ctx context.Context, yesMid, noMid float64) {
	if m.windingDown || m.pair.Yes.Quantity == 0 || m.pair.No.Quantity == 0 {
		return
	}
	pairCost := m.pair.PairCost(yesMid, noMid)
	threshold := 1.0 - m.riskCfg.MinExpectedROI
	if pairCost <= threshold {
		return
	}
	m.windingDown = true
	detail := fmt.Sprintf("realized pair cost %.4f > %.4f", pairCost, threshold)
	m.record(ctx, domain.DecisionStateChange, "pair_cost_stop", detail)
	m.logger.Warn("pair cost stop, winding down", slog.String("detail", detail))
}

// stepWindDown sells down the excess of the larger side. No buys of any
// kind; a balanced or flat book simply holds to settlement.
func (m *Monitor) stepWindDown(ctx context.Context) {
	larger := m.pair.LargerSide()
	if larger == nil {
		return
	}
	excess := math.Abs(m.pair.Yes.Quantity - m.pair.No.Quantity)
	qty := math.Min(m.cfg.RebalanceOrderSize, excess)

	order, err := m.deps.Exec.SubmitSell(ctx, &m.pair, m.contractID, *larger, qty, domain.OrderIntentWindDown)
	m.handleOrderResult(ctx, order, err, *larger, qty)
}

// stepTrade runs the buy-side priority chain: a rebalance toward the weak
// side outranks any fresh entry, and entries fire only when a side's mid
// moves INTO the configured band, not on every tick it stays there.
func (m *Monitor) stepTrade(ctx context.Context, escalated bool, inBand map[domain.Side]bool, yesMid, noMid float64) {
	plan := rebalance.Decide(m.pair, m.riskCfg.MaxDeltaRatio, escalated)
	if plan.PrioritySide != nil {
		m.submitBuy(ctx, *plan.PrioritySide, m.cfg.RebalanceOrderSize, plan.Urgency, domain.OrderIntentRebalance)
		return
	}

	entry := m.entrySide(inBand, yesMid, noMid)
	if entry != nil {
		m.submitBuy(ctx, *entry, m.cfg.DefaultOrderSize, rebalance.UrgencyNormal, domain.OrderIntentEntry)
	}
}

// entrySide picks the side whose mid just crossed into the band. When both
// cross in the same tick the cheaper side wins.
func (m *Monitor) entrySide(inBand map[domain.Side]bool, yesMid, noMid float64) *domain.Side {
	yesFired := inBand[domain.SideYes] && !m.lastInBand[domain.SideYes]
	noFired := inBand[domain.SideNo] && !m.lastInBand[domain.SideNo]

	switch {
	case yesFired && noFired:
		side := domain.SideYes
		if noMid < yesMid {
			side = domain.SideNo
		}
		return &side
	case yesFired:
		side := domain.SideYes
		return &side
	case noFired:
		side := domain.SideNo
		return &side
	}
	return nil
}

func (m *Monitor) inBand(mid float64) bool {
	return mid >= m.riskCfg.EntryBandLow && mid <= m.riskCfg.EntryBandHigh
}

func (m *Monitor) submitBuy(ctx context.Context, side domain.Side, qty float64, urgency rebalance.Urgency, intent domain.OrderIntent) {
	order, err := m.deps.Exec.SubmitBuy(ctx, &m.pair, m.contractID, side, qty, urgency, intent)
	m.handleOrderResult(ctx, order, err, side, qty)
}

// handleOrderResult classifies the three expected outcomes. Denials and
// expiries are normal control flow; the next tick retriggers naturally.
func (m *Monitor) handleOrderResult(ctx context.Context, order domain.Order, err error, side domain.Side, qty float64) {
	switch {
	case err == nil:
		detail := fmt.Sprintf("%s %.2f %s at %.4f (%s)",
			order.Direction, qty, side, order.Price(), order.Intent)
		m.record(ctx, domain.DecisionOrderPlaced, string(order.Intent), detail)
		m.alert(ctx, notify.EventOrderFilled, "Order filled", detail)
	case isRiskDenied(err):
		rd, _ := domain.AsRiskDenied(err)
		m.record(ctx, domain.DecisionRiskDenied, string(rd.Reason), rd.Detail)
		m.alert(ctx, notify.EventRiskDenied, "Order denied", fmt.Sprintf("%s: %s", rd.Reason, rd.Detail))
	case errors.Is(err, domain.ErrOrderExpired):
		m.logger.Debug("order expired",
			slog.String("side", string(side)),
			slog.Float64("qty", qty))
	case errors.Is(err, domain.ErrQuoteUnavailable):
		m.logger.Debug("order skipped, quote unavailable", slog.String("side", string(side)))
	default:
		m.logger.Warn("order submission failed",
			slog.String("side", string(side)),
			slog.String("error", err.Error()))
	}
}

func isRiskDenied(err error) bool {
	_, ok := domain.AsRiskDenied(err)
	return ok
}

// setState transitions the lifecycle state and audits the change. Must be
// called with m.mu held.
func (m *Monitor) setState(ctx context.Context, next domain.MonitorState, reason string) {
	prev := m.state
	m.state = next
	m.record(ctx, domain.DecisionStateChange, string(next), reason)
	m.logger.Info("state change",
		slog.String("from", string(prev)),
		slog.String("to", string(next)),
		slog.String("reason", reason))
	if next == domain.MonitorStopped {
		m.alert(ctx, notify.EventMonitorStopped, "Monitor stopped", reason)
	}
}

func (m *Monitor) record(ctx context.Context, kind domain.DecisionKind, reason, detail string) {
	m.lastDecision = fmt.Sprintf("%s: %s", kind, reason)
	if m.deps.Decisions == nil {
		return
	}
	rec := domain.DecisionRecord{
		ContractID: m.contractID,
		Kind:       kind,
		Reason:     reason,
		Detail:     detail,
		Timestamp:  m.now(),
	}
	if err := m.deps.Decisions.Append(ctx, rec); err != nil {
		m.logger.Warn("decision audit append failed", slog.String("error", err.Error()))
	}
}

func (m *Monitor) alert(ctx context.Context, event, title, message string) {
	if m.deps.Alerts == nil {
		return
	}
	if err := m.deps.Alerts.Notify(ctx, event, title, message); err != nil {
		m.logger.Warn("notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()))
	}
}

// publishSnapshot refreshes the read-only view and fans it out on the
// signal bus. Must be called with m.mu held.
func (m *Monitor) publishSnapshot(ctx context.Context, yesMid, noMid float64) {
	snap := domain.Snapshot{
		ContractID:   m.contractID,
		State:        m.state,
		Positions:    m.pair,
		PairCost:     m.pair.PairCost(yesMid, noMid),
		IsProfitable: m.pair.IsProfitable(),
		Imbalance:    m.pair.ImbalanceRatio(),
		WindingDown:  m.windingDown,
		LastDecision: m.lastDecision,
		Timestamp:    m.now(),
	}

	if m.deps.Trades != nil && m.cfg.SnapshotTradeTail > 0 {
		tail, err := m.deps.Trades.ListByContract(ctx, m.contractID, domain.ListOpts{Limit: m.cfg.SnapshotTradeTail})
		if err == nil {
			snap.Trades = tail
		}
	}

	m.snapMu.Lock()
	m.snap = snap
	m.snapMu.Unlock()

	if m.deps.Bus != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := m.deps.Bus.Publish(ctx, SnapshotChannel, payload); err != nil {
				m.logger.Debug("snapshot publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

// shutdown handles external cancellation: audit the stop and log the final
// book so a session leaves a readable trail.
func (m *Monitor) shutdown(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m.mu.Lock()
	if m.state != domain.MonitorStopped {
		m.setState(ctx, domain.MonitorStopped, reason)
	}
	m.mu.Unlock()

	m.logFinalSummary()
}

func (m *Monitor) logFinalSummary() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger.Info("final position",
		slog.Float64("yes_qty", m.pair.Yes.Quantity),
		slog.Float64("yes_cost", m.pair.Yes.Cost),
		slog.Float64("no_qty", m.pair.No.Quantity),
		slog.Float64("no_cost", m.pair.No.Cost),
		slog.Float64("min_qty", m.pair.MinQuantity()),
		slog.Float64("total_cost", m.pair.TotalCost()),
		slog.Bool("winding_down", m.windingDown))
}

// Snapshot returns the latest published view. Safe to call from other
// goroutines at any time; it never blocks on an in-flight decision step.
func (m *Monitor) Snapshot() domain.Snapshot {
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	return m.snap
}

// State returns the current lifecycle state.
func (m *Monitor) State() domain.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns a stopped monitor to IDLE with an empty ledger and hands
// the contract's locked capital back to the aggregate book. The caller must
// ensure the loop is not running.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.MonitorIdle
	m.pair = domain.PairPosition{}
	m.windingDown = false
	m.lastDecision = ""
	m.lastInBand = make(map[domain.Side]bool)
	m.unhedged.Reset()
	if m.deps.Capital != nil {
		m.deps.Capital.Forget(m.contractID)
	}

	m.snapMu.Lock()
	m.snap = domain.Snapshot{ContractID: m.contractID, State: domain.MonitorIdle}
	m.snapMu.Unlock()
}
