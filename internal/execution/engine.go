// Package execution turns an allowed trigger into a simulated limit order
// and resolves it against the live book. Every order is PENDING until it
// reaches exactly one of FILLED, EXPIRED, or REJECTED.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/rebalance"
	"github.com/alanyoungcy/hedgebot/internal/risk"
)

// FillChannel is the pub/sub channel and stream carrying fill events.
const FillChannel = "hedgebot:fills"

// Engine simulates limit-order execution for one or more pairs. It owns no
// pair state; the caller passes its PairPosition into each submission, and
// the ledger is only mutated on a confirmed fill.
type Engine struct {
	cfg     config.ExecutionConfig
	riskCfg config.RiskConfig
	gate    *risk.Gate
	quotes  domain.QuoteSource
	capital *risk.CapitalBook
	trades  domain.TradeStore
	bus     domain.SignalBus
	logger  *slog.Logger
	now     func() time.Time
}

// NewEngine creates an Engine. bus may be nil when no signal fan-out is
// wired (sim mode without Redis).
func NewEngine(
	cfg config.ExecutionConfig,
	riskCfg config.RiskConfig,
	gate *risk.Gate,
	quotes domain.QuoteSource,
	capital *risk.CapitalBook,
	trades domain.TradeStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:     cfg,
		riskCfg: riskCfg,
		gate:    gate,
		quotes:  quotes,
		capital: capital,
		trades:  trades,
		bus:     bus,
		logger:  logger.With(slog.String("component", "execution")),
		now:     time.Now,
	}
}

// SubmitBuy places a simulated limit buy. The limit price is the side's
// best ask widened by the slippage margin (safety margin normally, up to
// max slippage under escalated urgency) and rounded to the tick. The risk
// gate is re-consulted against the quote fetched here, immediately before
// transmission, so a book that moved since the caller's check produces a
// REJECTED order rather than a bad fill.
//
// On fill the ledger is updated, a TradeRecord appended, and a fill event
// published. The returned error is ErrOrderExpired or a RiskDeniedError for
// the two non-fill outcomes; both are expected under volatile markets.
func (e *Engine) SubmitBuy(
	ctx context.Context,
	pair *domain.PairPosition,
	contractID string,
	side domain.Side,
	quantity float64,
	urgency rebalance.Urgency,
	intent domain.OrderIntent,
) (domain.Order, error) {
	quote, err := e.quotes.PairQuote(ctx, contractID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("execution: refresh quote: %w", err)
	}

	book := quote.Quote(side)
	if book.BestAsk <= 0 {
		return domain.Order{}, fmt.Errorf("execution: no ask on %s: %w", side, domain.ErrQuoteUnavailable)
	}

	margin := e.cfg.SafetyMargin
	if urgency == rebalance.UrgencyEscalated {
		margin = e.riskCfg.MaxSlippage
	}
	limit := e.roundTick(book.BestAsk * (1 + margin))
	if limit >= 1 {
		limit = 1 - e.cfg.TickSize
	}

	order := e.newOrder(contractID, side, domain.OrderDirectionBuy, intent, limit, quantity)

	// Stale-check guard: the gate verdict must hold for this exact
	// (side, quantity, price) against the current book.
	decision := e.gate.CheckBuy(risk.Request{
		ContractID: contractID,
		Side:       side,
		Quantity:   quantity,
		LimitPrice: limit,
		Pair:       *pair,
		Quote:      quote,
		Now:        e.now(),
	})
	if !decision.Allowed {
		return e.reject(order, string(decision.Reason), decision.Detail), decision.Err()
	}

	reserve := limit * quantity
	if !e.capital.Reserve(contractID, reserve) {
		detail := fmt.Sprintf("aggregate capital %.2f + %.2f over limit", e.capital.Total(), reserve)
		return e.reject(order, string(domain.DenyCapitalLimit), detail),
			&domain.RiskDeniedError{Reason: domain.DenyCapitalLimit, Detail: detail}
	}

	fillPrice, matched := e.matchBuy(ctx, contractID, side, limit)
	if !matched {
		e.capital.Release(contractID, reserve)
		return e.expire(order), fmt.Errorf("execution: buy %s %s: %w", contractID, side, domain.ErrOrderExpired)
	}

	if err := pair.ApplyFill(side, quantity, fillPrice); err != nil {
		// The gate admitted the price, so a ledger rejection here is a bug;
		// surface it instead of forcing the fill through.
		e.capital.Release(contractID, reserve)
		return e.reject(order, "ledger", err.Error()), fmt.Errorf("execution: apply fill: %w", err)
	}

	cost := fillPrice * quantity
	e.capital.Commit(contractID, reserve, cost)
	return e.fill(ctx, order, fillPrice, quantity, cost), nil
}

// SubmitSell places a simulated limit sell used during wind-down
// rebalancing. Sells are gated only by held quantity; they stay permitted
// under the settlement lock.
func (e *Engine) SubmitSell(
	ctx context.Context,
	pair *domain.PairPosition,
	contractID string,
	side domain.Side,
	quantity float64,
	intent domain.OrderIntent,
) (domain.Order, error) {
	quote, err := e.quotes.PairQuote(ctx, contractID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("execution: refresh quote: %w", err)
	}

	book := quote.Quote(side)
	if book.BestBid <= 0 {
		return domain.Order{}, fmt.Errorf("execution: no bid on %s: %w", side, domain.ErrQuoteUnavailable)
	}

	limit := e.roundTick(book.BestBid * (1 - e.cfg.SafetyMargin))
	if limit <= 0 {
		limit = e.cfg.TickSize
	}

	order := e.newOrder(contractID, side, domain.OrderDirectionSell, intent, limit, quantity)

	decision := e.gate.CheckSell(risk.Request{
		ContractID: contractID,
		Side:       side,
		Quantity:   quantity,
		LimitPrice: limit,
		Pair:       *pair,
		Quote:      quote,
		Now:        e.now(),
	})
	if !decision.Allowed {
		return e.reject(order, string(decision.Reason), decision.Detail), decision.Err()
	}

	fillPrice, matched := e.matchSell(ctx, contractID, side, limit)
	if !matched {
		return e.expire(order), fmt.Errorf("execution: sell %s %s: %w", contractID, side, domain.ErrOrderExpired)
	}

	avg := pair.Get(side).AvgPrice()
	if err := pair.ApplyReduce(side, quantity); err != nil {
		return e.reject(order, "ledger", err.Error()), fmt.Errorf("execution: apply reduce: %w", err)
	}

	e.capital.Refund(contractID, avg*quantity)
	return e.fill(ctx, order, fillPrice, quantity, -fillPrice*quantity), nil
}

// matchBuy watches the book for a resting ask at or under the limit until
// the order timeout elapses. A cancelled context resolves the order the
// same way a timeout does; nothing stays PENDING.
func (e *Engine) matchBuy(ctx context.Context, contractID string, side domain.Side, limit float64) (float64, bool) {
	limitTicks := priceTicks(limit)
	return e.match(ctx, contractID, func(q domain.PairQuote) (float64, bool) {
		book := q.Quote(side)
		if book.AskSize > 0 && book.BestAsk > 0 && priceTicks(book.BestAsk) <= limitTicks {
			return book.BestAsk, true
		}
		return 0, false
	})
}

func (e *Engine) matchSell(ctx context.Context, contractID string, side domain.Side, limit float64) (float64, bool) {
	limitTicks := priceTicks(limit)
	return e.match(ctx, contractID, func(q domain.PairQuote) (float64, bool) {
		book := q.Quote(side)
		if book.BidSize > 0 && priceTicks(book.BestBid) >= limitTicks {
			return book.BestBid, true
		}
		return 0, false
	})
}

func (e *Engine) match(ctx context.Context, contractID string, try func(domain.PairQuote) (float64, bool)) (float64, bool) {
	deadline := e.now().Add(e.cfg.OrderTimeout.Duration)
	interval := e.cfg.OrderTimeout.Duration / 4
	if interval <= 0 {
		interval = time.Millisecond
	}

	for {
		quote, err := e.quotes.PairQuote(ctx, contractID)
		if err == nil {
			if price, ok := try(quote); ok {
				return price, true
			}
		}

		if e.now().Add(interval).After(deadline) {
			return 0, false
		}
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(interval):
		}
	}
}

func (e *Engine) newOrder(contractID string, side domain.Side, dir domain.OrderDirection, intent domain.OrderIntent, limit, quantity float64) domain.Order {
	return domain.Order{
		ID:         uuid.NewString(),
		ContractID: contractID,
		Side:       side,
		Direction:  dir,
		Intent:     intent,
		PriceTicks: priceTicks(limit),
		SizeUnits:  int64(math.Round(quantity * 1e6)),
		Status:     domain.OrderStatusPending,
		CreatedAt:  e.now(),
	}
}

func (e *Engine) reject(order domain.Order, reason, detail string) domain.Order {
	now := e.now()
	order.Status = domain.OrderStatusRejected
	order.RejectReason = reason
	order.ResolvedAt = &now
	e.logger.Info("order rejected",
		slog.String("order", order.ID),
		slog.String("contract", order.ContractID),
		slog.String("side", string(order.Side)),
		slog.String("reason", reason),
		slog.String("detail", detail))
	return order
}

func (e *Engine) expire(order domain.Order) domain.Order {
	now := e.now()
	order.Status = domain.OrderStatusExpired
	order.ResolvedAt = &now
	e.logger.Info("order expired",
		slog.String("order", order.ID),
		slog.String("contract", order.ContractID),
		slog.String("side", string(order.Side)),
		slog.Float64("limit", order.Price()))
	return order
}

func (e *Engine) fill(ctx context.Context, order domain.Order, price, quantity, cost float64) domain.Order {
	now := e.now()
	order.Status = domain.OrderStatusFilled
	order.ResolvedAt = &now

	record := domain.TradeRecord{
		OrderID:    order.ID,
		ContractID: order.ContractID,
		Side:       order.Side,
		Direction:  order.Direction,
		Intent:     order.Intent,
		Quantity:   quantity,
		Price:      price,
		Cost:       cost,
		Timestamp:  now,
	}
	if err := e.trades.Append(ctx, record); err != nil {
		e.logger.Warn("trade log append failed",
			slog.String("order", order.ID),
			slog.String("error", err.Error()))
	}

	e.publishFill(ctx, record)

	e.logger.Info("order filled",
		slog.String("order", order.ID),
		slog.String("contract", order.ContractID),
		slog.String("side", string(order.Side)),
		slog.String("direction", string(order.Direction)),
		slog.Float64("qty", quantity),
		slog.Float64("price", price))
	return order
}

func (e *Engine) publishFill(ctx context.Context, record domain.TradeRecord) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, FillChannel, payload); err != nil {
		e.logger.Warn("fill publish failed", slog.String("error", err.Error()))
	}
	if err := e.bus.StreamAppend(ctx, FillChannel, payload); err != nil {
		e.logger.Warn("fill stream append failed", slog.String("error", err.Error()))
	}
}

// roundTick rounds a price to the market's minimum increment.
func (e *Engine) roundTick(price float64) float64 {
	return math.Round(price/e.cfg.TickSize) * e.cfg.TickSize
}

// priceTicks converts a price to the fixed-point representation orders
// carry. Limit comparisons happen in tick space because float rounding can
// nudge a tick-rounded limit past an equal resting price.
func priceTicks(price float64) int64 {
	return int64(math.Round(price * 1e6))
}
