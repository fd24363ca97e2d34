package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/monitor"
	"github.com/alanyoungcy/hedgebot/internal/risk"
	"github.com/alanyoungcy/hedgebot/internal/server/handler"
	"github.com/alanyoungcy/hedgebot/internal/store/memory"
)

type fixedQuotes struct{}

func (fixedQuotes) PairQuote(ctx context.Context, contractID string) (domain.PairQuote, error) {
	return domain.PairQuote{
		ContractID: contractID,
		Yes:        domain.SideQuote{BestBid: 0.39, BestAsk: 0.41, BidSize: 200, AskSize: 200},
		No:         domain.SideQuote{BestBid: 0.57, BestAsk: 0.59, BidSize: 200, AskSize: 200},
		Settlement: time.Now().Add(time.Hour),
		Timestamp:  time.Now(),
	}, nil
}

type fixture struct {
	srv     *Server
	trades  *memory.TradeStore
	manager *monitor.Manager
	capital *risk.CapitalBook
}

func newFixture(t *testing.T, apiKey string) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Defaults()

	trades := memory.NewTradeStore()
	decisions := memory.NewDecisionStore()
	capital := risk.NewCapitalBook(cfg.Risk.MaxTotalCapital)

	factory := func(contractID string) *monitor.Monitor {
		return monitor.New(contractID, cfg.Monitor, cfg.Risk, monitor.Deps{
			Quotes:    fixedQuotes{},
			Trades:    trades,
			Decisions: decisions,
			Logger:    logger,
			ReadOnly:  true,
		})
	}
	manager := monitor.NewManager(factory, logger)

	handlers := Handlers{
		Health:    handler.NewHealthHandler(nil, logger),
		Status:    handler.NewStatusHandler("sim", time.Now(), capital, manager),
		Snapshots: handler.NewSnapshotHandler(manager),
		Trades:    handler.NewTradeHandler(trades, decisions, logger),
		Control:   handler.NewControlHandler(manager, context.Background(), logger),
	}

	srv := NewServer(Config{Port: 0, APIKey: apiKey}, handlers, nil, logger)
	t.Cleanup(manager.StopAll)

	return &fixture{srv: srv, trades: trades, manager: manager, capital: capital}
}

func (f *fixture) do(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodGet, "/api/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestStatusReportsCapitalAndMode(t *testing.T) {
	f := newFixture(t, "")
	require.True(t, f.capital.Reserve("contract-a", 40))
	f.capital.Commit("contract-a", 40, 40)

	rec := f.do(http.MethodGet, "/api/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "sim", body["mode"])
	assert.InDelta(t, 40.0, body["capital_locked"], 1e-9)
	assert.InDelta(t, 40.0, body["capital_committed"], 1e-9)
}

func TestSnapshotsListAndGet(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.manager.Start(context.Background(), "contract-a"))

	rec := f.do(http.MethodGet, "/api/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []domain.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 1)
	assert.Equal(t, "contract-a", snaps[0].ContractID)

	rec = f.do(http.MethodGet, "/api/snapshots/contract-a", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/snapshots/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTradeListing(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	require.NoError(t, f.trades.Append(ctx, domain.TradeRecord{
		OrderID:    "ord-1",
		ContractID: "contract-a",
		Side:       domain.SideYes,
		Direction:  domain.OrderDirectionBuy,
		Intent:     domain.OrderIntentEntry,
		Quantity:   100,
		Price:      0.41,
		Cost:       41,
		Timestamp:  time.Now(),
	}))

	rec := f.do(http.MethodGet, "/api/contracts/contract-a/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []domain.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, "ord-1", trades[0].OrderID)

	// Unknown contracts return an empty list, not an error.
	rec = f.do(http.MethodGet, "/api/contracts/other/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestMonitorControlLifecycle(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodPost, "/api/monitors/contract-a/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/monitors/contract-a/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/monitors/contract-a/reset", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/monitors/contract-a/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/monitors/contract-a/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/api/monitors/contract-a/reset", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/api/monitors/unknown/reset", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRejectsMissingKey(t *testing.T) {
	f := newFixture(t, "secret")

	rec := f.do(http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/api/status", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/api/status", map[string]string{"Authorization": "Bearer secret"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodOptions, "/api/status", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestUnknownRouteReturns404(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(http.MethodGet, "/api/archives", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
