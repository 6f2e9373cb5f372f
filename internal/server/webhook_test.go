package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/config"
	"github.com/Angleito/BluefinAIAgentTrader/internal/confirm"
	"github.com/Angleito/BluefinAIAgentTrader/internal/exchange"
	"github.com/Angleito/BluefinAIAgentTrader/internal/metrics"
	"github.com/Angleito/BluefinAIAgentTrader/internal/performance"
	"github.com/Angleito/BluefinAIAgentTrader/internal/risk"
	"github.com/Angleito/BluefinAIAgentTrader/internal/store"
	"github.com/Angleito/BluefinAIAgentTrader/internal/trading"
)

const testSecret = "hunter2"

func newTestServer(t *testing.T) (*Server, *exchange.SimExchange) {
	t.Helper()

	cfg := &config.Config{
		Trading: config.TradingConfig{
			Mode:               "mock",
			TradingPairs:       []string{"SUI-PERP"},
			Leverage:           5,
			MinConfidence:      0.5,
			StopLossPercentage: 0.02,
			ATRMultiplier:      2.0,
			MinOrderSize:       0.001,
		},
		Risk: config.RiskConfig{
			MaxRiskPerTrade:  0.02,
			MaxOpenPositions: 3,
			MaxDailyLoss:     0.05,
			RewardRiskRatio:  2.0,
		},
		Server: config.ServerConfig{
			Port:          19151,
			WebhookSecret: testSecret,
		},
	}

	logger := zerolog.Nop()
	ex := exchange.NewSimExchange(exchange.SimConfig{InitialBalance: 10000})
	ex.UpdatePrice("SUI-PERP", 100)

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	rm := risk.NewManager(cfg.Risk, cfg.Trading, 10000, logger)
	tracker := performance.NewTracker(st, logger)
	executor := trading.NewExecutor(ex, rm, tracker, logger)
	recorder := metrics.NewWithRegistry(prometheus.NewRegistry())
	pipeline := trading.NewPipeline(cfg, confirm.PassthroughConfirmer{}, rm, executor, ex, recorder, logger)

	return New(cfg.Server, pipeline, logger), ex
}

func postWebhook(t *testing.T, srv *Server, body string) (*httptest.ResponseRecorder, WebhookResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	var resp WebhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func alertBody(symbol, action, passphrase string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"passphrase": passphrase,
		"indicator":  "vmanchu_cipher_b",
		"symbol":     symbol,
		"timeframe":  "5m",
		"action":     action,
	})
	return string(body)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestWebhookExecutesTrade(t *testing.T) {
	srv, ex := newTestServer(t)

	rec, resp := postWebhook(t, srv, alertBody("SUI/USD", "BUY", testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Status != "executed" {
		t.Fatalf("expected executed, got %+v", resp)
	}
	if resp.Symbol != "SUI-PERP" {
		t.Errorf("expected SUI-PERP, got %s", resp.Symbol)
	}

	pos, err := ex.GetPosition(context.Background(), "SUI-PERP")
	if err != nil {
		t.Fatalf("GetPosition failed: %v", err)
	}
	if pos == nil || pos.Size <= 0 {
		t.Errorf("expected an open position on the exchange, got %+v", pos)
	}
}

func TestWebhookBadPassphrase(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, resp := postWebhook(t, srv, alertBody("SUI/USD", "BUY", "wrong"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if resp.Error != "invalid passphrase" {
		t.Errorf("unexpected error: %s", resp.Error)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, resp := postWebhook(t, srv, `{"symbol": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if resp.Status != "error" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestWebhookInvalidSignal(t *testing.T) {
	srv, _ := newTestServer(t)

	// Valid JSON, but missing required alert fields.
	body, _ := json.Marshal(map[string]string{"passphrase": testSecret, "symbol": "SUI/USD"})
	rec, resp := postWebhook(t, srv, string(body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp.Status != "error" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestWebhookRejectsUnknownSymbol(t *testing.T) {
	srv, _ := newTestServer(t)

	rec, resp := postWebhook(t, srv, alertBody("DOGE/USD", "BUY", testSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("rejections must return 200, got %d", rec.Code)
	}
	if resp.Status != "rejected" {
		t.Fatalf("expected rejected, got %+v", resp)
	}
	if resp.Reason != "symbol not in configured trading pairs" {
		t.Errorf("unexpected reason: %s", resp.Reason)
	}
}
