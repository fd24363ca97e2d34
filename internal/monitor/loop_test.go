package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/rebalance"
	"github.com/alanyoungcy/hedgebot/internal/risk"
	"github.com/alanyoungcy/hedgebot/internal/store/memory"
)

type quoteStub struct {
	mu    sync.Mutex
	quote domain.PairQuote
	err   error
}

func (s *quoteStub) PairQuote(context.Context, string) (domain.PairQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quote, s.err
}

func (s *quoteStub) set(q domain.PairQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote = q
	s.err = nil
}

type buyCall struct {
	side    domain.Side
	qty     float64
	urgency rebalance.Urgency
	intent  domain.OrderIntent
}

type sellCall struct {
	side   domain.Side
	qty    float64
	intent domain.OrderIntent
}

// scriptedExec records submissions and fills them at a fixed price unless
// told to fail.
type scriptedExec struct {
	mu        sync.Mutex
	buys      []buyCall
	sells     []sellCall
	buyErr    error
	fillPrice float64
}

func (s *scriptedExec) SubmitBuy(_ context.Context, pair *domain.PairPosition, contractID string, side domain.Side, qty float64, urgency rebalance.Urgency, intent domain.OrderIntent) (domain.Order, error) {
	s.mu.Lock()
	s.buys = append(s.buys, buyCall{side: side, qty: qty, urgency: urgency, intent: intent})
	err := s.buyErr
	price := s.fillPrice
	s.mu.Unlock()

	if err != nil {
		return domain.Order{ContractID: contractID, Side: side, Status: domain.OrderStatusRejected}, err
	}
	if e := pair.ApplyFill(side, qty, price); e != nil {
		return domain.Order{}, e
	}
	return domain.Order{
		ContractID: contractID,
		Side:       side,
		Direction:  domain.OrderDirectionBuy,
		Intent:     intent,
		Status:     domain.OrderStatusFilled,
	}, nil
}

func (s *scriptedExec) SubmitSell(_ context.Context, pair *domain.PairPosition, contractID string, side domain.Side, qty float64, intent domain.OrderIntent) (domain.Order, error) {
	s.mu.Lock()
	s.sells = append(s.sells, sellCall{side: side, qty: qty, intent: intent})
	_ = s.fillPrice
	s.mu.Unlock()

	if e := pair.ApplyReduce(side, qty); e != nil {
		return domain.Order{}, e
	}
	return domain.Order{
		ContractID: contractID,
		Side:       side,
		Direction:  domain.OrderDirectionSell,
		Intent:     intent,
		Status:     domain.OrderStatusFilled,
	}, nil
}

func (s *scriptedExec) buyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buys)
}

func midQuote(yesMid, noMid float64) domain.PairQuote {
	spread := 0.01
	return domain.PairQuote{
		ContractID: "c1",
		Yes:        domain.SideQuote{BestBid: yesMid - spread, BestAsk: yesMid + spread, BidSize: 200, AskSize: 200},
		No:         domain.SideQuote{BestBid: noMid - spread, BestAsk: noMid + spread, BidSize: 200, AskSize: 200},
		Settlement: time.Now().Add(time.Hour),
		Timestamp:  time.Now(),
	}
}

func newTestMonitor(t *testing.T, quotes domain.QuoteSource, exec Executor) (*Monitor, *memory.DecisionStore) {
	t.Helper()
	cfg := config.Defaults()
	decisions := memory.NewDecisionStore()
	mon := New("c1", cfg.Monitor, cfg.Risk, Deps{
		Quotes:    quotes,
		Exec:      exec,
		Trades:    memory.NewTradeStore(),
		Decisions: decisions,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return mon, decisions
}

func TestStepTransitionsToWatching(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.70, 0.30)}
	exec := &scriptedExec{fillPrice: 0.40}
	mon, decisions := newTestMonitor(t, quotes, exec)

	require.Equal(t, domain.MonitorIdle, mon.State())
	stopped := mon.step(context.Background())
	assert.False(t, stopped)
	assert.Equal(t, domain.MonitorWatching, mon.State())

	recs, err := decisions.ListByContract(context.Background(), "c1", domain.ListOpts{})
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, domain.DecisionStateChange, recs[len(recs)-1].Kind)
}

func TestQuoteFailureSkipsTick(t *testing.T) {
	quotes := &quoteStub{err: domain.ErrQuoteUnavailable}
	exec := &scriptedExec{fillPrice: 0.40}
	mon, _ := newTestMonitor(t, quotes, exec)

	stopped := mon.step(context.Background())
	assert.False(t, stopped)
	assert.Equal(t, domain.MonitorIdle, mon.State())
	assert.Zero(t, exec.buyCount())
}

func TestEntryFiresOnBandEntryOnly(t *testing.T) {
	// YES mid 0.40 sits inside the default 0.35..0.50 band; NO does not.
	quotes := &quoteStub{quote: midQuote(0.40, 0.60)}
	exec := &scriptedExec{fillPrice: 0.41}
	mon, _ := newTestMonitor(t, quotes, exec)

	mon.step(context.Background())
	require.Equal(t, 1, exec.buyCount())
	assert.Equal(t, domain.SideYes, exec.buys[0].side)
	assert.Equal(t, domain.OrderIntentEntry, exec.buys[0].intent)
	assert.InDelta(t, 100, exec.buys[0].qty, 1e-9)

	// The pair is now one-sided, so rebalance flow takes over; kill it by
	// making the next buys fail so the book stays one-sided, then check
	// that an in-band mid alone does not re-fire an entry.
	exec.mu.Lock()
	exec.buyErr = domain.ErrOrderExpired
	exec.mu.Unlock()

	mon.step(context.Background())
	mon.step(context.Background())
	for _, b := range exec.buys[1:] {
		assert.Equal(t, domain.OrderIntentRebalance, b.intent)
	}
}

func TestEntryRefiresAfterLeavingBand(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.70, 0.30)}
	exec := &scriptedExec{fillPrice: 0.41, buyErr: domain.ErrOrderExpired}
	mon, _ := newTestMonitor(t, quotes, exec)

	mon.step(context.Background()) // outside the band, no trigger
	require.Zero(t, exec.buyCount())

	quotes.set(midQuote(0.40, 0.60))
	mon.step(context.Background()) // entered
	require.Equal(t, 1, exec.buyCount())

	mon.step(context.Background()) // still inside, no re-fire
	require.Equal(t, 1, exec.buyCount())

	quotes.set(midQuote(0.55, 0.45))
	mon.step(context.Background()) // YES left, NO entered
	require.Equal(t, 2, exec.buyCount())
	assert.Equal(t, domain.SideNo, exec.buys[1].side)
}

func TestRebalanceOutranksEntry(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.40, 0.45)}
	exec := &scriptedExec{fillPrice: 0.44}
	mon, _ := newTestMonitor(t, quotes, exec)

	// 120 vs 80 is a 0.33 imbalance, past the 0.20 cap.
	require.NoError(t, mon.pair.ApplyFill(domain.SideYes, 120, 0.40))
	require.NoError(t, mon.pair.ApplyFill(domain.SideNo, 80, 0.45))

	mon.step(context.Background())
	require.Equal(t, 1, exec.buyCount())
	assert.Equal(t, domain.SideNo, exec.buys[0].side)
	assert.Equal(t, domain.OrderIntentRebalance, exec.buys[0].intent)
	assert.InDelta(t, 50, exec.buys[0].qty, 1e-9)
	assert.Equal(t, rebalance.UrgencyNormal, exec.buys[0].urgency)
}

func TestUnhedgedEscalatesRebalance(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.40, 0.45)}
	exec := &scriptedExec{fillPrice: 0.44, buyErr: domain.ErrOrderExpired}
	mon, _ := newTestMonitor(t, quotes, exec)

	now := time.Now()
	mon.now = func() time.Time { return now }
	require.NoError(t, mon.pair.ApplyFill(domain.SideYes, 100, 0.40))

	mon.step(context.Background())
	require.Equal(t, 1, exec.buyCount())
	assert.Equal(t, rebalance.UrgencyNormal, exec.buys[0].urgency)

	// Past the max unhedged duration the same imbalance escalates.
	now = now.Add(config.Defaults().Risk.MaxUnhedged.Duration + time.Second)
	mon.step(context.Background())
	require.Equal(t, 2, exec.buyCount())
	assert.Equal(t, rebalance.UrgencyEscalated, exec.buys[1].urgency)
}

func TestProfitLockStopsBuying(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.40, 0.45)}
	exec := &scriptedExec{fillPrice: 0.44}
	mon, decisions := newTestMonitor(t, quotes, exec)

	// 100 YES at 0.40 and 100 NO at 0.45: payout 100 beats cost 85.
	require.NoError(t, mon.pair.ApplyFill(domain.SideYes, 100, 0.40))
	require.NoError(t, mon.pair.ApplyFill(domain.SideNo, 100, 0.45))

	mon.step(context.Background())
	assert.Zero(t, exec.buyCount())
	assert.True(t, mon.Snapshot().WindingDown)
	assert.True(t, mon.Snapshot().IsProfitable)

	recs, err := decisions.ListByContract(context.Background(), "c1", domain.ListOpts{})
	require.NoError(t, err)
	var locked bool
	for _, r := range recs {
		if r.Kind == domain.DecisionProfitLock {
			locked = true
		}
	}
	assert.True(t, locked)
}

func TestWindDownSellsExcess(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.40, 0.45)}
	exec := &scriptedExec{fillPrice: 0.44}
	mon, _ := newTestMonitor(t, quotes, exec)

	// Locked with a 20-unit YES overhang.
	require.NoError(t, mon.pair.ApplyFill(domain.SideYes, 120, 0.40))
	require.NoError(t, mon.pair.ApplyFill(domain.SideNo, 100, 0.45))

	mon.step(context.Background())
	assert.Zero(t, exec.buyCount())
	require.Len(t, exec.sells, 1)
	assert.Equal(t, domain.SideYes, exec.sells[0].side)
	assert.Equal(t, domain.OrderIntentWindDown, exec.sells[0].intent)
	assert.InDelta(t, 20, exec.sells[0].qty, 1e-9)

	// Balanced now; further steps hold to settlement.
	mon.step(context.Background())
	assert.Len(t, exec.sells, 1)
}

func TestPairCostStopWindsDown(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.55, 0.48)}
	exec := &scriptedExec{fillPrice: 0.50}
	mon, decisions := newTestMonitor(t, quotes, exec)

	// Hedged but underwater: realized pair cost 1.03 over the 0.98 bar.
	require.NoError(t, mon.pair.ApplyFill(domain.SideYes, 100, 0.55))
	require.NoError(t, mon.pair.ApplyFill(domain.SideNo, 100, 0.48))

	mon.step(context.Background())
	assert.True(t, mon.Snapshot().WindingDown)
	assert.Zero(t, exec.buyCount())

	recs, err := decisions.ListByContract(context.Background(), "c1", domain.ListOpts{})
	require.NoError(t, err)
	var stopped bool
	for _, r := range recs {
		if r.Kind == domain.DecisionStateChange && r.Reason == "pair_cost_stop" {
			stopped = true
		}
	}
	assert.True(t, stopped)
}

func TestSettlementCutoffStopsFlatMonitor(t *testing.T) {
	q := midQuote(0.40, 0.60)
	q.Settlement = time.Now().Add(time.Minute) // inside the 180s lock window
	quotes := &quoteStub{quote: q}
	exec := &scriptedExec{fillPrice: 0.41}
	mon, _ := newTestMonitor(t, quotes, exec)

	stopped := mon.step(context.Background())
	assert.True(t, stopped)
	assert.Equal(t, domain.MonitorStopped, mon.State())
	assert.Zero(t, exec.buyCount())
}

func TestSettlementCutoffHoldsWithExposure(t *testing.T) {
	q := midQuote(0.40, 0.60)
	q.Settlement = time.Now().Add(time.Minute)
	quotes := &quoteStub{quote: q}
	exec := &scriptedExec{fillPrice: 0.41}
	mon, _ := newTestMonitor(t, quotes, exec)

	require.NoError(t, mon.pair.ApplyFill(domain.SideYes, 50, 0.40))
	stopped := mon.step(context.Background())
	assert.False(t, stopped)
	assert.Equal(t, domain.MonitorWatching, mon.State())
}

func TestReadOnlyPlacesNoOrders(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.40, 0.60)}
	exec := &scriptedExec{fillPrice: 0.41}

	cfg := config.Defaults()
	mon := New("c1", cfg.Monitor, cfg.Risk, Deps{
		Quotes:   quotes,
		Exec:     exec,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		ReadOnly: true,
	})

	mon.step(context.Background())
	mon.step(context.Background())
	assert.Zero(t, exec.buyCount())
	assert.Empty(t, exec.sells)
	assert.Equal(t, domain.MonitorWatching, mon.State())
}

func TestRunStopsOnCancel(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.70, 0.30)}
	exec := &scriptedExec{fillPrice: 0.41}
	mon, _ := newTestMonitor(t, quotes, exec)
	mon.cfg.PollInterval = shortInterval()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mon.State() == domain.MonitorWatching
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.Equal(t, domain.MonitorStopped, mon.State())
}

func TestSnapshotReflectsLedger(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.40, 0.60)}
	exec := &scriptedExec{fillPrice: 0.41}
	mon, _ := newTestMonitor(t, quotes, exec)

	mon.step(context.Background())
	snap := mon.Snapshot()
	assert.Equal(t, "c1", snap.ContractID)
	assert.Equal(t, domain.MonitorWatching, snap.State)
	assert.InDelta(t, 100, snap.Positions.Yes.Quantity, 1e-9)
	assert.NotEmpty(t, snap.LastDecision)
	assert.False(t, snap.Timestamp.IsZero())
}

func shortInterval() config.Duration {
	var d config.Duration
	d.Duration = 2 * time.Millisecond
	return d
}

func TestResetClearsState(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.40, 0.60)}
	exec := &scriptedExec{fillPrice: 0.41}
	mon, _ := newTestMonitor(t, quotes, exec)

	mon.step(context.Background())
	require.Positive(t, mon.Snapshot().Positions.Yes.Quantity)

	mon.Reset()
	assert.Equal(t, domain.MonitorIdle, mon.State())
	assert.Zero(t, mon.Snapshot().Positions.Yes.Quantity)
	assert.False(t, mon.Snapshot().WindingDown)
}

func TestResetReleasesCapital(t *testing.T) {
	cfg := config.Defaults()
	book := risk.NewCapitalBook(cfg.Risk.MaxTotalCapital)
	mon := New("c1", cfg.Monitor, cfg.Risk, Deps{
		Quotes:  &quoteStub{quote: midQuote(0.40, 0.60)},
		Exec:    &scriptedExec{fillPrice: 0.41},
		Capital: book,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	require.True(t, book.Reserve("c1", 40))
	book.Commit("c1", 40, 40)
	require.InDelta(t, 40, book.Total(), 1e-9)

	// Clearing the ledger must also hand the contract's capital back, or a
	// restarted pair permanently shrinks the aggregate headroom.
	mon.Reset()
	assert.Zero(t, book.Total())
	assert.Zero(t, book.Committed())
}

func TestManagerLifecycle(t *testing.T) {
	quotes := &quoteStub{quote: midQuote(0.70, 0.30)}
	exec := &scriptedExec{fillPrice: 0.41}
	cfg := config.Defaults()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr := NewManager(func(contractID string) *Monitor {
		mon := New(contractID, cfg.Monitor, cfg.Risk, Deps{
			Quotes: quotes,
			Exec:   exec,
			Logger: logger,
		})
		mon.cfg.PollInterval = shortInterval()
		return mon
	}, logger)

	ctx := context.Background()
	require.NoError(t, mgr.Start(ctx, "c1"))

	err := mgr.Start(ctx, "c1")
	require.ErrorIs(t, err, domain.ErrMonitorRunning)

	err = mgr.Reset("c1")
	require.ErrorIs(t, err, domain.ErrMonitorRunning)

	require.NoError(t, mgr.Stop("c1"))
	err = mgr.Stop("c1")
	require.ErrorIs(t, err, domain.ErrMonitorStopped)

	require.NoError(t, mgr.Reset("c1"))
	snap, err := mgr.Snapshot("c1")
	require.NoError(t, err)
	assert.Equal(t, domain.MonitorIdle, snap.State)

	_, err = mgr.Snapshot("unknown")
	require.ErrorIs(t, err, domain.ErrNotFound)

	// A stopped monitor can be started again.
	require.NoError(t, mgr.Start(ctx, "c1"))
	mgr.StopAll()
	assert.Empty(t, mgr.Snapshots()[0].Positions.Yes.Quantity)
}

func TestManagerRunAll(t *testing.T) {
	quotes := &quoteStub{err: errors.New("feed down")}
	exec := &scriptedExec{fillPrice: 0.41}
	cfg := config.Defaults()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mgr := NewManager(func(contractID string) *Monitor {
		mon := New(contractID, cfg.Monitor, cfg.Risk, Deps{
			Quotes: quotes,
			Exec:   exec,
			Logger: logger,
		})
		mon.cfg.PollInterval = shortInterval()
		return mon
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.RunAll(ctx, []string{"a", "b"}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunAll did not drain")
	}
}
