package execution

import (
	"context"
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

// stubQuotes serves a fixed pair quote, adjustable between calls.
type stubQuotes struct {
	mu    sync.Mutex
	quote domain.PairQuote
	err   error
}

func (s *stubQuotes) PairQuote(context.Context, string) (domain.PairQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quote, s.err
}

func (s *stubQuotes) set(q domain.PairQuote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quote = q
}

func liveQuote(yesAsk, noAsk float64) domain.PairQuote {
	return domain.PairQuote{
		ContractID: "c1",
		Yes:        domain.SideQuote{BestBid: yesAsk - 0.02, BestAsk: yesAsk, BidSize: 500, AskSize: 500},
		No:         domain.SideQuote{BestBid: noAsk - 0.02, BestAsk: noAsk, BidSize: 500, AskSize: 500},
		Settlement: time.Now().Add(time.Hour),
		Timestamp:  time.Now(),
	}
}

func testEngine(t *testing.T, quotes domain.QuoteSource) (*Engine, *risk.CapitalBook, *memory.TradeStore) {
	t.Helper()
	cfg := config.Defaults()
	execCfg := cfg.Execution
	execCfg.OrderTimeout = orderTimeout(40 * time.Millisecond)

	book := risk.NewCapitalBook(cfg.Risk.MaxTotalCapital)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gate := risk.NewGate(cfg.Risk, book, logger)
	trades := memory.NewTradeStore()

	return NewEngine(execCfg, cfg.Risk, gate, quotes, book, trades, nil, logger), book, trades
}

// orderTimeout builds a config duration without going through TOML.
func orderTimeout(d time.Duration) config.Duration {
	var cd config.Duration
	cd.Duration = d
	return cd
}

func TestSubmitBuyFills(t *testing.T) {
	quotes := &stubQuotes{quote: liveQuote(0.40, 0.55)}
	engine, book, trades := testEngine(t, quotes)

	var pair domain.PairPosition
	order, err := engine.SubmitBuy(context.Background(), &pair, "c1", domain.SideYes, 100, rebalance.UrgencyNormal, domain.OrderIntentEntry)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.NotNil(t, order.ResolvedAt)
	assert.InDelta(t, 100, pair.Yes.Quantity, 1e-9)
	assert.InDelta(t, 40, pair.Yes.Cost, 1e-9) // filled at the 0.40 ask
	assert.InDelta(t, 40, book.Committed(), 1e-9)

	recorded, err := trades.ListByContract(context.Background(), "c1", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Equal(t, order.ID, recorded[0].OrderID)
	assert.Equal(t, domain.OrderIntentEntry, recorded[0].Intent)
}

func TestSubmitBuyLimitRoundedToTick(t *testing.T) {
	quotes := &stubQuotes{quote: liveQuote(0.60, 0.30)}
	engine, _, _ := testEngine(t, quotes)

	var pair domain.PairPosition
	order, err := engine.SubmitBuy(context.Background(), &pair, "c1", domain.SideYes, 10, rebalance.UrgencyNormal, domain.OrderIntentEntry)
	require.NoError(t, err)
	// 0.60 * 1.005 rounds back to the 0.60 tick.
	assert.InDelta(t, 0.60, order.Price(), 1e-9)

	var pair2 domain.PairPosition
	order, err = engine.SubmitBuy(context.Background(), &pair2, "c1", domain.SideYes, 10, rebalance.UrgencyEscalated, domain.OrderIntentRebalance)
	require.NoError(t, err)
	// Escalated urgency widens to max slippage: 0.60 * 1.01 = 0.606 -> 0.61.
	assert.InDelta(t, 0.61, order.Price(), 1e-9)
}

func TestSubmitBuyRejectedByStaleCheck(t *testing.T) {
	// The book has moved so far that the hedge no longer clears the ROI bar:
	// buying YES at 0.48 against a NO ask of 0.56 simulates 1.04 > 0.98.
	quotes := &stubQuotes{quote: liveQuote(0.48, 0.56)}
	engine, book, trades := testEngine(t, quotes)

	var pair domain.PairPosition
	order, err := engine.SubmitBuy(context.Background(), &pair, "c1", domain.SideYes, 100, rebalance.UrgencyNormal, domain.OrderIntentEntry)
	require.Error(t, err)

	rd, ok := domain.AsRiskDenied(err)
	require.True(t, ok)
	assert.Equal(t, domain.DenyNoArbSpace, rd.Reason)
	assert.Equal(t, domain.OrderStatusRejected, order.Status)
	assert.Equal(t, string(domain.DenyNoArbSpace), order.RejectReason)

	// No position change, no capital locked, no trade logged.
	assert.Zero(t, pair.Yes.Quantity)
	assert.Zero(t, book.Total())
	recorded, _ := trades.ListByContract(context.Background(), "c1", domain.ListOpts{})
	assert.Empty(t, recorded)
}

func TestSubmitBuyExpiresWithoutCounterQuote(t *testing.T) {
	q := liveQuote(0.40, 0.55)
	q.Yes.AskSize = 0 // nothing resting to match against
	quotes := &stubQuotes{quote: q}
	engine, book, _ := testEngine(t, quotes)

	var pair domain.PairPosition
	order, err := engine.SubmitBuy(context.Background(), &pair, "c1", domain.SideYes, 100, rebalance.UrgencyNormal, domain.OrderIntentEntry)
	require.ErrorIs(t, err, domain.ErrOrderExpired)

	assert.Equal(t, domain.OrderStatusExpired, order.Status)
	assert.Zero(t, pair.Yes.Quantity)
	// The reservation is released on expiry.
	assert.Zero(t, book.Total())
}

func TestSubmitBuyResolvesOnCancel(t *testing.T) {
	q := liveQuote(0.40, 0.55)
	q.Yes.AskSize = 0
	quotes := &stubQuotes{quote: q}
	engine, _, _ := testEngine(t, quotes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var pair domain.PairPosition
	order, err := engine.SubmitBuy(ctx, &pair, "c1", domain.SideYes, 100, rebalance.UrgencyNormal, domain.OrderIntentEntry)
	require.ErrorIs(t, err, domain.ErrOrderExpired)
	assert.Equal(t, domain.OrderStatusExpired, order.Status)
}

func TestSubmitBuyMatchesWhenBookReturns(t *testing.T) {
	q := liveQuote(0.40, 0.55)
	q.Yes.AskSize = 0
	quotes := &stubQuotes{quote: q}
	engine, _, _ := testEngine(t, quotes)

	// Restore the ask shortly after submission; the match loop re-polls.
	go func() {
		time.Sleep(15 * time.Millisecond)
		quotes.set(liveQuote(0.40, 0.55))
	}()

	var pair domain.PairPosition
	order, err := engine.SubmitBuy(context.Background(), &pair, "c1", domain.SideYes, 100, rebalance.UrgencyNormal, domain.OrderIntentEntry)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
}

func TestSubmitSellReducesLedger(t *testing.T) {
	quotes := &stubQuotes{quote: liveQuote(0.42, 0.55)}
	engine, book, trades := testEngine(t, quotes)

	var pair domain.PairPosition
	_, err := engine.SubmitBuy(context.Background(), &pair, "c1", domain.SideYes, 100, rebalance.UrgencyNormal, domain.OrderIntentEntry)
	require.NoError(t, err)
	committed := book.Committed()

	order, err := engine.SubmitSell(context.Background(), &pair, "c1", domain.SideYes, 40, domain.OrderIntentWindDown)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.Equal(t, domain.OrderDirectionSell, order.Direction)
	assert.InDelta(t, 60, pair.Yes.Quantity, 1e-9)
	assert.Less(t, book.Committed(), committed)

	recorded, _ := trades.ListByContract(context.Background(), "c1", domain.ListOpts{})
	require.Len(t, recorded, 2)
	assert.Negative(t, recorded[0].Cost)
}

func TestSubmitSellMatchesBidAtLimit(t *testing.T) {
	// With a 0.40 bid the tick-rounded sell limit lands exactly on the bid.
	// Neither value is representable in binary, so a float comparison can
	// see limit > bid and spuriously expire the order; matching compares in
	// tick space instead. Wind-down depends on this fill going through.
	quotes := &stubQuotes{quote: liveQuote(0.42, 0.55)}
	engine, _, _ := testEngine(t, quotes)

	var pair domain.PairPosition
	require.NoError(t, pair.ApplyFill(domain.SideYes, 100, 0.38))

	order, err := engine.SubmitSell(context.Background(), &pair, "c1", domain.SideYes, 40, domain.OrderIntentWindDown)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.InDelta(t, 0.40, order.Price(), 1e-9)
	assert.InDelta(t, 60, pair.Yes.Quantity, 1e-9)
}

func TestSubmitSellRejectsOversize(t *testing.T) {
	quotes := &stubQuotes{quote: liveQuote(0.42, 0.55)}
	engine, _, _ := testEngine(t, quotes)

	var pair domain.PairPosition
	require.NoError(t, pair.ApplyFill(domain.SideYes, 10, 0.40))

	order, err := engine.SubmitSell(context.Background(), &pair, "c1", domain.SideYes, 50, domain.OrderIntentWindDown)
	require.Error(t, err)

	rd, ok := domain.AsRiskDenied(err)
	require.True(t, ok)
	assert.Equal(t, domain.DenyOversizeSell, rd.Reason)
	assert.Equal(t, domain.OrderStatusRejected, order.Status)
	assert.InDelta(t, 10, pair.Yes.Quantity, 1e-9)
}
