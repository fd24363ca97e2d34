package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/monitor"
)

// ControlHandler drives the monitor lifecycle over HTTP. Monitors started
// here run under the server's base context, not the request context, so
// they survive the request that created them.
type ControlHandler struct {
	manager *monitor.Manager
	baseCtx context.Context
	logger  *slog.Logger
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(manager *monitor.Manager, baseCtx context.Context, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{manager: manager, baseCtx: baseCtx, logger: logger}
}

// Start launches the monitor for a contract.
// POST /api/monitors/{contract}/start
func (h *ControlHandler) Start(w http.ResponseWriter, r *http.Request) {
	contractID := pathParam(r, "contract")

	if err := h.manager.Start(h.baseCtx, contractID); err != nil {
		if errors.Is(err, domain.ErrMonitorRunning) {
			writeError(w, http.StatusConflict, "monitor already running")
			return
		}
		h.logger.Error("monitor start failed",
			slog.String("contract", contractID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start monitor")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contract": contractID, "state": "started"})
}

// Stop cancels the monitor for a contract and waits for it to drain.
// POST /api/monitors/{contract}/stop
func (h *ControlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	contractID := pathParam(r, "contract")

	if err := h.manager.Stop(contractID); err != nil {
		if errors.Is(err, domain.ErrMonitorStopped) {
			writeError(w, http.StatusConflict, "monitor not running")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to stop monitor")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contract": contractID, "state": "stopped"})
}

// Reset clears a stopped monitor back to an empty ledger.
// POST /api/monitors/{contract}/reset
func (h *ControlHandler) Reset(w http.ResponseWriter, r *http.Request) {
	contractID := pathParam(r, "contract")

	if err := h.manager.Reset(contractID); err != nil {
		switch {
		case errors.Is(err, domain.ErrMonitorRunning):
			writeError(w, http.StatusConflict, "monitor still running")
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "unknown contract")
		default:
			writeError(w, http.StatusInternalServerError, "failed to reset monitor")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"contract": contractID, "state": "reset"})
}
