package handler

import (
	"errors"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/monitor"
)

// SnapshotHandler serves the per-contract decision snapshots.
type SnapshotHandler struct {
	manager *monitor.Manager
}

// NewSnapshotHandler creates a SnapshotHandler.
func NewSnapshotHandler(manager *monitor.Manager) *SnapshotHandler {
	return &SnapshotHandler{manager: manager}
}

// ListSnapshots responds with the latest snapshot for every known contract.
// GET /api/snapshots
func (h *SnapshotHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Snapshots())
}

// GetSnapshot responds with the latest snapshot for one contract.
// GET /api/snapshots/{contract}
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	contractID := pathParam(r, "contract")

	snap, err := h.manager.Snapshot(contractID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown contract")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
