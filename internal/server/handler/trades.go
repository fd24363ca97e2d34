package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// TradeHandler serves the fill history and the decision audit trail.
type TradeHandler struct {
	trades    domain.TradeStore
	decisions domain.DecisionStore
	logger    *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades domain.TradeStore, decisions domain.DecisionStore, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, decisions: decisions, logger: logger}
}

// ListTrades responds with a contract's fills, newest first.
// GET /api/contracts/{contract}/trades
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	contractID := pathParam(r, "contract")

	trades, err := h.trades.ListByContract(r.Context(), contractID, parseListOpts(r))
	if err != nil {
		h.logger.Error("list trades failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// ListDecisions responds with a contract's decision audit entries, newest
// first.
// GET /api/contracts/{contract}/decisions
func (h *TradeHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	contractID := pathParam(r, "contract")

	recs, err := h.decisions.ListByContract(r.Context(), contractID, parseListOpts(r))
	if err != nil {
		h.logger.Error("list decisions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	if recs == nil {
		recs = []domain.DecisionRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
