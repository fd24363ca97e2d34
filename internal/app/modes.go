package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/execution"
	"github.com/alanyoungcy/hedgebot/internal/market"
	"github.com/alanyoungcy/hedgebot/internal/monitor"
	"github.com/alanyoungcy/hedgebot/internal/risk"
	"github.com/alanyoungcy/hedgebot/internal/server"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/server/ws"
)

const (
	// quoteMaxAge bounds how stale a cached pair quote may be before the
	// cached source falls back to REST.
	quoteMaxAge = 2 * time.Second

	// leaderLockKey guards against two live traders spending the same
	// capital budget.
	leaderLockKey = "trader"

	// leaderLockTTL is deliberately generous. The lock is released on
	// shutdown; the TTL only matters after a crash, when it bounds how long
	// the seat stays blocked.
	leaderLockTTL = 24 * time.Hour

	apiRateLimit  = 120
	apiRateWindow = time.Minute
)

// errMonitorsDone signals that every monitor reached its terminal state and
// the mode can wind the remaining goroutines down. Not an error condition.
var errMonitorsDone = errors.New("all monitors stopped")

// TradeMode runs live trading: one monitor per configured contract against
// the real CLOB, with the leader lock held for the whole session.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode",
		slog.Any("contracts", a.cfg.Monitor.Contracts))

	if len(a.cfg.Monitor.Contracts) == 0 {
		return fmt.Errorf("trade mode: no contracts configured")
	}

	if deps.LockManager != nil {
		release, err := deps.LockManager.Acquire(ctx, leaderLockKey, leaderLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return fmt.Errorf("trade mode: another trader instance is already running: %w", err)
			}
			return fmt.Errorf("trade mode: leader lock: %w", err)
		}
		defer release()
	}

	g, gctx := errgroup.WithContext(ctx)

	quotes := a.liveQuoteSource(gctx, g, deps)
	manager, capital := a.buildTrading(deps, quotes, false)

	a.startArchiver(gctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, manager, capital)
	}

	g.Go(func() error {
		if err := manager.RunAll(gctx, a.cfg.Monitor.Contracts); err != nil {
			return fmt.Errorf("trade mode: monitors: %w", err)
		}
		return errMonitorsDone
	})

	return waitGroup(g)
}

// SimMode runs the full decision engine against the random-walk simulator
// with in-memory stores. No Redis, no Postgres, no exchange.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	contracts := a.cfg.Monitor.Contracts
	if len(contracts) == 0 {
		contracts = []string{"sim-contract"}
	}
	a.logger.InfoContext(ctx, "starting sim mode", slog.Any("contracts", contracts))

	g, gctx := errgroup.WithContext(ctx)

	quotes := market.NewSimulator(a.cfg.Market.Simulator)
	manager, capital := a.buildTrading(deps, quotes, false)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, manager, capital)
	}

	g.Go(func() error {
		if err := manager.RunAll(gctx, contracts); err != nil {
			return fmt.Errorf("sim mode: monitors: %w", err)
		}
		return errMonitorsDone
	})

	return waitGroup(g)
}

// MonitorMode observes the configured contracts without placing orders:
// read-only monitors plus the HTTP server for dashboard consumption.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode",
		slog.Any("contracts", a.cfg.Monitor.Contracts))

	if len(a.cfg.Monitor.Contracts) == 0 {
		return fmt.Errorf("monitor mode: no contracts configured")
	}

	g, gctx := errgroup.WithContext(ctx)

	quotes := a.liveQuoteSource(gctx, g, deps)
	manager, capital := a.buildTrading(deps, quotes, true)

	// Monitor mode always serves the API; observing without a way to look
	// at the observations is pointless.
	a.startHTTPServer(gctx, g, deps, manager, capital)

	g.Go(func() error {
		if err := manager.RunAll(gctx, a.cfg.Monitor.Contracts); err != nil {
			return fmt.Errorf("monitor mode: monitors: %w", err)
		}
		return errMonitorsDone
	})

	return waitGroup(g)
}

// ServerMode serves the API without starting any monitors. Contracts are
// started and stopped through the control endpoints.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, gctx := errgroup.WithContext(ctx)

	quotes := a.liveQuoteSource(gctx, g, deps)
	manager, capital := a.buildTrading(deps, quotes, false)

	a.startArchiver(gctx, g, deps)
	a.startHTTPServer(gctx, g, deps, manager, capital)

	g.Go(func() error {
		<-gctx.Done()
		manager.StopAll()
		return nil
	})

	return waitGroup(g)
}

// waitGroup collapses the expected shutdown signals into a clean exit.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil &&
		!errors.Is(err, errMonitorsDone) &&
		!errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildTrading assembles the capital book, risk gate, execution engine, and
// monitor manager shared by every mode.
func (a *App) buildTrading(deps *Dependencies, quotes domain.QuoteSource, readOnly bool) (*monitor.Manager, *risk.CapitalBook) {
	capital := risk.NewCapitalBook(a.cfg.Risk.MaxTotalCapital)
	gate := risk.NewGate(a.cfg.Risk, capital, a.logger)
	engine := execution.NewEngine(
		a.cfg.Execution, a.cfg.Risk, gate, quotes, capital,
		deps.Trades, deps.SignalBus, a.logger,
	)

	factory := func(contractID string) *monitor.Monitor {
		return monitor.New(contractID, a.cfg.Monitor, a.cfg.Risk, monitor.Deps{
			Quotes:    quotes,
			Exec:      engine,
			Trades:    deps.Trades,
			Decisions: deps.Decisions,
			Bus:       deps.SignalBus,
			Alerts:    deps.Notifier,
			Capital:   capital,
			Logger:    a.logger,
			ReadOnly:  readOnly,
		})
	}

	return monitor.NewManager(factory, a.logger), capital
}

// liveQuoteSource builds the CLOB-backed quote source. With Redis available
// the websocket feed keeps the quote cache warm and polling becomes a cache
// read; without it, or when the feed cannot connect, the monitors poll REST
// directly.
func (a *App) liveQuoteSource(ctx context.Context, g *errgroup.Group, deps *Dependencies) domain.QuoteSource {
	clob := market.NewClobQuoteSource(a.cfg.Market.ClobHost)

	if deps.QuoteCache == nil || a.cfg.Market.WsHost == "" {
		return clob
	}

	feed := market.NewFeed(a.cfg.Market.WsHost, deps.QuoteCache, a.logger)
	for _, id := range a.cfg.Monitor.Contracts {
		yes, no, err := clob.TokenIDs(ctx, id)
		if err != nil {
			a.logger.WarnContext(ctx, "quote source: token resolution failed, contract polls REST",
				slog.String("contract", id),
				slog.String("error", err.Error()))
			continue
		}
		settlement, err := clob.Settlement(ctx, id)
		if err != nil {
			settlement = time.Time{}
		}
		if err := feed.Watch(id, yes, no, settlement); err != nil {
			a.logger.WarnContext(ctx, "quote source: watch failed",
				slog.String("contract", id),
				slog.String("error", err.Error()))
		}
	}

	if err := feed.Connect(ctx); err != nil {
		a.logger.WarnContext(ctx, "quote source: websocket unavailable, polling REST",
			slog.String("error", err.Error()))
		return clob
	}
	g.Go(func() error {
		<-ctx.Done()
		return feed.Close()
	})

	return market.NewCachedQuoteSource(deps.QuoteCache, clob, quoteMaxAge)
}

// startArchiver adds the periodic trade-archival loop when an archiver is
// wired. Failures are logged and retried on the next interval.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}

	interval := a.cfg.Archive.Interval.Duration
	retention := a.cfg.Archive.RetentionDays

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cutoff := time.Now().UTC().AddDate(0, 0, -retention)
				count, err := deps.Archiver.ArchiveTrades(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "trade archival failed",
						slog.String("error", err.Error()))
					continue
				}
				if count > 0 {
					a.logger.InfoContext(ctx, "trades archived",
						slog.Int64("count", count),
						slog.Time("cutoff", cutoff))
				}
			}
		}
	})
}

// pingerFunc adapts a plain connectivity check to handler.Pinger.
type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// startHTTPServer wires the handlers, the WebSocket hub, and the HTTP
// server itself into the errgroup, with graceful shutdown on cancellation.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	manager *monitor.Manager,
	capital *risk.CapitalBook,
) {
	pingers := make(map[string]handler.Pinger)
	if deps.PG != nil {
		pool := deps.PG.Pool()
		pingers["postgres"] = pingerFunc(pool.Ping)
	}
	if deps.Redis != nil {
		pingers["redis"] = deps.Redis
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(pingers, a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, time.Now().UTC(), capital, manager),
		Snapshots: handler.NewSnapshotHandler(manager),
		Trades:    handler.NewTradeHandler(deps.Trades, deps.Decisions, a.logger),
		Control:   handler.NewControlHandler(manager, ctx, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("ws hub: %w", err)
			}
			return nil
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimiter: deps.RateLimiter,
		RateLimit:   apiRateLimit,
		RateWindow:  apiRateWindow,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
