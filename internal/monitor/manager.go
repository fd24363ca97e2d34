package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Factory builds a Monitor for a contract. Supplied by the application
// wiring so the Manager stays ignorant of store and engine construction.
type Factory func(contractID string) *Monitor

// Manager owns the set of monitors and their goroutines. It is the control
// surface behind the HTTP handlers: start, stop, and reset by contract.
type Manager struct {
	factory Factory
	logger  *slog.Logger

	mu       sync.Mutex
	monitors map[string]*Monitor
	running  map[string]*runningMonitor
}

type runningMonitor struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a Manager.
func NewManager(factory Factory, logger *slog.Logger) *Manager {
	return &Manager{
		factory:  factory,
		logger:   logger.With(slog.String("component", "monitor_manager")),
		monitors: make(map[string]*Monitor),
		running:  make(map[string]*runningMonitor),
	}
}

// Start launches the monitor loop for a contract in its own goroutine. A
// monitor that stopped on its own can be started again; one that is still
// running cannot.
func (g *Manager) Start(ctx context.Context, contractID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.running[contractID]; ok {
		return fmt.Errorf("monitor: %s: %w", contractID, domain.ErrMonitorRunning)
	}

	mon, ok := g.monitors[contractID]
	if !ok {
		mon = g.factory(contractID)
		g.monitors[contractID] = mon
	}
	if mon.State() == domain.MonitorStopped {
		mon.Reset()
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &runningMonitor{cancel: cancel, done: make(chan struct{})}
	g.running[contractID] = r

	go func() {
		defer close(r.done)
		defer func() {
			g.mu.Lock()
			delete(g.running, contractID)
			g.mu.Unlock()
		}()
		if err := mon.Run(runCtx); err != nil {
			g.logger.Error("monitor exited with error",
				slog.String("contract", contractID),
				slog.String("error", err.Error()))
		}
	}()

	g.logger.Info("monitor started", slog.String("contract", contractID))
	return nil
}

// Stop cancels a running monitor and waits for its loop to drain.
func (g *Manager) Stop(contractID string) error {
	g.mu.Lock()
	r, ok := g.running[contractID]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("monitor: %s: %w", contractID, domain.ErrMonitorStopped)
	}

	r.cancel()
	<-r.done
	g.logger.Info("monitor stopped", slog.String("contract", contractID))
	return nil
}

// Reset clears a stopped monitor back to IDLE with an empty ledger.
func (g *Manager) Reset(contractID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.running[contractID]; ok {
		return fmt.Errorf("monitor: %s: %w", contractID, domain.ErrMonitorRunning)
	}
	mon, ok := g.monitors[contractID]
	if !ok {
		return fmt.Errorf("monitor: %s: %w", contractID, domain.ErrNotFound)
	}
	mon.Reset()
	return nil
}

// Snapshot returns the latest view for a contract.
func (g *Manager) Snapshot(contractID string) (domain.Snapshot, error) {
	g.mu.Lock()
	mon, ok := g.monitors[contractID]
	g.mu.Unlock()
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("monitor: %s: %w", contractID, domain.ErrNotFound)
	}
	return mon.Snapshot(), nil
}

// Snapshots returns the latest view for every known contract.
func (g *Manager) Snapshots() []domain.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.Snapshot, 0, len(g.monitors))
	for _, mon := range g.monitors {
		out = append(out, mon.Snapshot())
	}
	return out
}

// RunAll starts a monitor per contract and blocks until every loop has
// drained. Cancel the context to stop them all.
func (g *Manager) RunAll(ctx context.Context, contracts []string) error {
	var waits []chan struct{}
	for _, id := range contracts {
		if err := g.Start(ctx, id); err != nil {
			return err
		}
		g.mu.Lock()
		if r, ok := g.running[id]; ok {
			waits = append(waits, r.done)
		}
		g.mu.Unlock()
	}

	for _, done := range waits {
		<-done
	}
	return nil
}

// StopAll cancels every running monitor and waits for them to drain.
func (g *Manager) StopAll() {
	g.mu.Lock()
	var waits []chan struct{}
	for _, r := range g.running {
		r.cancel()
		waits = append(waits, r.done)
	}
	g.mu.Unlock()

	for _, done := range waits {
		<-done
	}
}
