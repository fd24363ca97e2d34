package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/monitor"
	"github.com/alanyoungcy/hedgebot/internal/risk"
)

// StatusHandler reports process-level runtime state: mode, uptime, the
// capital book totals, and the lifecycle state of every monitor.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	capital   *risk.CapitalBook
	manager   *monitor.Manager
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, capital *risk.CapitalBook, manager *monitor.Manager) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		startedAt: startedAt,
		capital:   capital,
		manager:   manager,
	}
}

// Status responds with the runtime overview.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	contracts := make(map[string]string)
	for _, snap := range h.manager.Snapshots() {
		contracts[snap.ContractID] = string(snap.State)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":              h.mode,
		"uptime_seconds":    int64(time.Since(h.startedAt).Seconds()),
		"capital_locked":    h.capital.Total(),
		"capital_committed": h.capital.Committed(),
		"contracts":         contracts,
	})
}
