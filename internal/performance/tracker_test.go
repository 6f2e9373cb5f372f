package performance

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
	"github.com/Angleito/BluefinAIAgentTrader/internal/store"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return NewTracker(st, zerolog.Nop())
}

func entry(symbol string, direction models.Direction, price, size float64) EntryParams {
	return EntryParams{
		Symbol:     symbol,
		Direction:  direction,
		EntryPrice: price,
		Size:       size,
		Leverage:   5,
		Source:     models.SourceWebhook,
	}
}

func TestLogTradeEntryAndExit(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	tradeID, err := tracker.LogTradeEntry(ctx, entry("SUI-PERP", models.DirectionLong, 100, 2))
	if err != nil {
		t.Fatalf("LogTradeEntry failed: %v", err)
	}
	if tradeID == "" {
		t.Fatal("expected non-empty trade id")
	}

	pnl, err := tracker.LogTradeExit(ctx, tradeID, 110)
	if err != nil {
		t.Fatalf("LogTradeExit failed: %v", err)
	}
	if math.Abs(pnl-20) > 1e-9 {
		t.Errorf("expected pnl 20, got %f", pnl)
	}
}

func TestLogTradeExitShortDirection(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	tradeID, err := tracker.LogTradeEntry(ctx, entry("SUI-PERP", models.DirectionShort, 100, 3))
	if err != nil {
		t.Fatalf("LogTradeEntry failed: %v", err)
	}

	pnl, err := tracker.LogTradeExit(ctx, tradeID, 90)
	if err != nil {
		t.Fatalf("LogTradeExit failed: %v", err)
	}
	if math.Abs(pnl-30) > 1e-9 {
		t.Errorf("expected pnl 30 for short into falling price, got %f", pnl)
	}
}

func TestLogTradeExitUnknownID(t *testing.T) {
	tracker := newTestTracker(t)

	_, err := tracker.LogTradeExit(context.Background(), "no-such-trade", 100)
	if err == nil {
		t.Fatal("expected error for unknown trade id")
	}
	if !apperrors.Is(err, apperrors.ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestLogTradeExitTwice(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	tradeID, _ := tracker.LogTradeEntry(ctx, entry("SUI-PERP", models.DirectionLong, 100, 1))
	if _, err := tracker.LogTradeExit(ctx, tradeID, 105); err != nil {
		t.Fatalf("first exit failed: %v", err)
	}
	if _, err := tracker.LogTradeExit(ctx, tradeID, 110); err == nil {
		t.Fatal("closing a closed trade must fail")
	}
}

func TestMetrics(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	// Deterministic exit ordering for the equity curve.
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracker.SetClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	})

	// Three closed trades: +20, -10, +5.
	exits := []struct {
		direction models.Direction
		entry     float64
		exit      float64
		size      float64
	}{
		{models.DirectionLong, 100, 120, 1},
		{models.DirectionLong, 100, 90, 1},
		{models.DirectionShort, 100, 95, 1},
	}
	for _, e := range exits {
		tradeID, err := tracker.LogTradeEntry(ctx, entry("SUI-PERP", e.direction, e.entry, e.size))
		if err != nil {
			t.Fatalf("LogTradeEntry failed: %v", err)
		}
		if _, err := tracker.LogTradeExit(ctx, tradeID, e.exit); err != nil {
			t.Fatalf("LogTradeExit failed: %v", err)
		}
	}

	metrics, err := tracker.Metrics(ctx, store.TradeFilter{})
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}

	if metrics.TotalTrades != 3 {
		t.Fatalf("expected 3 trades, got %d", metrics.TotalTrades)
	}
	if metrics.WinningTrades != 2 || metrics.LosingTrades != 1 {
		t.Errorf("expected 2 wins 1 loss, got %d/%d", metrics.WinningTrades, metrics.LosingTrades)
	}
	if math.Abs(metrics.WinRate-2.0/3.0) > 1e-9 {
		t.Errorf("unexpected win rate %f", metrics.WinRate)
	}
	if math.Abs(metrics.TotalPnL-15) > 1e-9 {
		t.Errorf("expected total pnl 15, got %f", metrics.TotalPnL)
	}
	// Gross profit 25, gross loss 10.
	if math.Abs(metrics.ProfitFactor-2.5) > 1e-9 {
		t.Errorf("expected profit factor 2.5, got %f", metrics.ProfitFactor)
	}
	if math.Abs(metrics.AvgProfit-12.5) > 1e-9 {
		t.Errorf("expected avg profit 12.5, got %f", metrics.AvgProfit)
	}
	if math.Abs(metrics.AvgLoss-10) > 1e-9 {
		t.Errorf("expected avg loss 10, got %f", metrics.AvgLoss)
	}
	// Equity curve 20 -> 10 -> 15: peak 20, trough 10.
	if math.Abs(metrics.MaxDrawdown-10) > 1e-9 {
		t.Errorf("expected max drawdown 10, got %f", metrics.MaxDrawdown)
	}
}

func TestMetricsEmptyHistory(t *testing.T) {
	tracker := newTestTracker(t)

	metrics, err := tracker.Metrics(context.Background(), store.TradeFilter{})
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if metrics.TotalTrades != 0 || metrics.WinRate != 0 || metrics.MaxDrawdown != 0 {
		t.Errorf("expected zeroed metrics, got %+v", metrics)
	}
}

func TestCloseOpenTradeForSymbol(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	if _, found, err := tracker.CloseOpenTradeForSymbol(ctx, "SUI-PERP", 100); err != nil || found {
		t.Fatalf("expected no open trade, found=%v err=%v", found, err)
	}

	if _, err := tracker.LogTradeEntry(ctx, entry("SUI-PERP", models.DirectionLong, 100, 2)); err != nil {
		t.Fatalf("LogTradeEntry failed: %v", err)
	}

	pnl, found, err := tracker.CloseOpenTradeForSymbol(ctx, "SUI-PERP", 103)
	if err != nil {
		t.Fatalf("CloseOpenTradeForSymbol failed: %v", err)
	}
	if !found {
		t.Fatal("expected the open trade to be found")
	}
	if math.Abs(pnl-6) > 1e-9 {
		t.Errorf("expected pnl 6, got %f", pnl)
	}
}
