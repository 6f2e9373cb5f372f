package trading

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/config"
	apperrors "github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
	"github.com/Angleito/BluefinAIAgentTrader/internal/performance"
	"github.com/Angleito/BluefinAIAgentTrader/internal/risk"
	"github.com/Angleito/BluefinAIAgentTrader/internal/store"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxRiskPerTrade:  0.02,
		MaxOpenPositions: 3,
		MaxDailyLoss:     0.05,
		RewardRiskRatio:  2.0,
	}
}

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		Mode:               "mock",
		TradingPairs:       []string{"SUI-PERP"},
		Leverage:           5,
		MinConfidence:      0.5,
		StopLossPercentage: 0.02,
		ATRMultiplier:      2.0,
		MinOrderSize:       0.001,
	}
}

// stubExchange is a scriptable Exchange for executor tests.
type stubExchange struct {
	position    *models.Position
	markPrice   float64
	failEntry   bool
	failReduce  bool
	partialFill float64 // entry fills for this size instead of the full order
	orders      []models.Order
	cancelled   []string // order IDs passed to CancelOrder
}

func (s *stubExchange) GetBalance(ctx context.Context) (*models.Balance, error) {
	return &models.Balance{AvailableMargin: 10000, TotalEquity: 10000}, nil
}

func (s *stubExchange) GetPositions(ctx context.Context) ([]models.Position, error) {
	if s.position == nil {
		return nil, nil
	}
	return []models.Position{*s.position}, nil
}

func (s *stubExchange) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	if s.position == nil || s.position.Symbol != symbol {
		return nil, nil
	}
	pos := *s.position
	return &pos, nil
}

func (s *stubExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	return s.markPrice, nil
}

func (s *stubExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (s *stubExchange) PlaceOrder(ctx context.Context, order *models.Order) (*models.OrderResult, error) {
	if order.ReduceOnly && s.failReduce {
		return nil, apperrors.NewExchangeError("REJECTED", "reduce-only order rejected", apperrors.ErrOrderRejected)
	}
	if !order.ReduceOnly && s.failEntry {
		return nil, apperrors.Wrap(apperrors.ErrOrderRejected, "entry rejected")
	}

	s.orders = append(s.orders, *order)
	orderID := fmt.Sprintf("order-%d", len(s.orders))

	if order.Type != models.OrderTypeMarket {
		return &models.OrderResult{OrderID: orderID, Status: "NEW"}, nil
	}
	if s.partialFill > 0 && !order.ReduceOnly {
		return &models.OrderResult{
			OrderID:      orderID,
			Status:       "PARTIALLY_FILLED",
			FilledSize:   s.partialFill,
			AveragePrice: s.markPrice,
		}, nil
	}
	return &models.OrderResult{
		OrderID:      orderID,
		Status:       "FILLED",
		FilledSize:   order.Size,
		AveragePrice: s.markPrice,
	}, nil
}

func (s *stubExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.cancelled = append(s.cancelled, orderID)
	return nil
}

func (s *stubExchange) IsSimulated() bool { return true }

func newTestExecutor(t *testing.T, ex *stubExchange) (*Executor, *risk.Manager) {
	t.Helper()

	riskCfg := testRiskConfig()
	tradingCfg := testTradingConfig()
	rm := risk.NewManager(riskCfg, tradingCfg, 10000, zerolog.Nop())

	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tracker := performance.NewTracker(st, zerolog.Nop())
	executor := NewExecutor(ex, rm, tracker, zerolog.Nop())
	executor.maxRetryElapsed = 100 * time.Millisecond
	return executor, rm
}

func openDecision(symbol string, direction models.Direction, size float64) *models.TradeDecision {
	entry := 100.0
	stop := 98.0
	tp := 104.0
	if direction == models.DirectionShort {
		stop = 102.0
		tp = 96.0
	}
	return &models.TradeDecision{
		Signal: models.Signal{
			Symbol:    symbol,
			Direction: direction,
			Source:    models.SourceWebhook,
		},
		Action:          models.ActionOpen,
		RiskSize:        size,
		FinalSize:       size,
		Leverage:        5,
		EntryPrice:      entry,
		StopLossPrice:   stop,
		TakeProfitPrice: tp,
	}
}

func TestExecuteOpensPositionWithProtectiveOrders(t *testing.T) {
	ex := &stubExchange{markPrice: 100}
	executor, rm := newTestExecutor(t, ex)

	result, err := executor.Execute(context.Background(), openDecision("SUI-PERP", models.DirectionLong, 2))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if !result.StopLossPlaced || !result.TakeProfitPlaced {
		t.Error("expected both protective orders placed")
	}
	if result.TradeID == "" {
		t.Error("expected a trade record")
	}

	// Market entry plus stop plus take profit.
	if len(ex.orders) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(ex.orders))
	}
	if ex.orders[0].Type != models.OrderTypeMarket || ex.orders[0].Side != models.OrderSideBuy {
		t.Errorf("unexpected entry order: %+v", ex.orders[0])
	}
	if ex.orders[1].Type != models.OrderTypeStopLoss || !ex.orders[1].ReduceOnly {
		t.Errorf("unexpected stop order: %+v", ex.orders[1])
	}
	if ex.orders[2].Type != models.OrderTypeLimit || !ex.orders[2].ReduceOnly {
		t.Errorf("unexpected take-profit order: %+v", ex.orders[2])
	}

	pos, ok := rm.PositionFor("SUI-PERP")
	if !ok {
		t.Fatal("position not recorded in risk manager")
	}
	if pos.Size != 2 {
		t.Errorf("expected recorded size 2, got %f", pos.Size)
	}
	if state := executor.State("SUI-PERP"); state != models.StateOpen {
		t.Errorf("expected OPEN state, got %s", state)
	}
}

func TestExecuteEntryFailureLeavesNoState(t *testing.T) {
	ex := &stubExchange{markPrice: 100, failEntry: true}
	executor, rm := newTestExecutor(t, ex)

	_, err := executor.Execute(context.Background(), openDecision("SUI-PERP", models.DirectionLong, 2))
	if err == nil {
		t.Fatal("expected entry failure")
	}

	if len(ex.orders) != 0 {
		t.Errorf("no orders may exist after entry failure, got %d", len(ex.orders))
	}
	if _, ok := rm.PositionFor("SUI-PERP"); ok {
		t.Error("no position may be recorded after entry failure")
	}
	if rm.Snapshot().TradeCountToday != 0 {
		t.Error("trade count must not advance after entry failure")
	}
	if state := executor.State("SUI-PERP"); state != models.StateNoPosition {
		t.Errorf("state must revert after entry failure, got %s", state)
	}
}

func TestExecuteProtectiveFailureKeepsPosition(t *testing.T) {
	ex := &stubExchange{markPrice: 100, failReduce: true}
	executor, rm := newTestExecutor(t, ex)

	result, err := executor.Execute(context.Background(), openDecision("SUI-PERP", models.DirectionLong, 2))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.StopLossPlaced || result.TakeProfitPlaced {
		t.Error("protective orders must report failed")
	}

	// The exposure is live on the exchange, so the position stays
	// recorded despite the missing protection.
	if _, ok := rm.PositionFor("SUI-PERP"); !ok {
		t.Error("position must stay recorded after protective failure")
	}
}

func TestExecuteFlipUsesExchangeGroundTruth(t *testing.T) {
	ex := &stubExchange{
		markPrice: 100,
		position: &models.Position{
			Symbol:     "SUI-PERP",
			Direction:  models.DirectionShort,
			Size:       1.5,
			EntryPrice: 105,
		},
	}
	executor, rm := newTestExecutor(t, ex)
	rm.ApplyOpen(*ex.position)
	executor.setProtective("SUI-PERP", protectiveOrders{stopID: "stale-stop", takeProfitID: "stale-tp"})

	decision := openDecision("SUI-PERP", models.DirectionLong, 1)
	decision.Action = models.ActionFlip
	// Decision was made against a stale size of 1.0.
	decision.FinalSize = 2.0

	result, err := executor.Execute(context.Background(), decision)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// The closed leg's resting protective orders were cancelled.
	if len(ex.cancelled) != 2 || ex.cancelled[0] != "stale-stop" || ex.cancelled[1] != "stale-tp" {
		t.Errorf("expected stale protective orders cancelled, got %v", ex.cancelled)
	}

	// Exchange shows 1.5 short, so the combined order is 1.5 + 1.0.
	if math.Abs(ex.orders[0].Size-2.5) > 1e-9 {
		t.Errorf("expected submitted size 2.5, got %f", ex.orders[0].Size)
	}

	// The closed short leg: entry 105 exit 100 on 1.5 units.
	if math.Abs(result.ClosedPnL-7.5) > 1e-9 {
		t.Errorf("expected closed pnl 7.5, got %f", result.ClosedPnL)
	}

	pos, ok := rm.PositionFor("SUI-PERP")
	if !ok {
		t.Fatal("flipped position not recorded")
	}
	if pos.Direction != models.DirectionLong {
		t.Errorf("expected LONG after flip, got %s", pos.Direction)
	}
	if pos.Size != 1 {
		t.Errorf("expected new exposure 1, got %f", pos.Size)
	}
}

func TestExecuteSameDirectionPositionFails(t *testing.T) {
	ex := &stubExchange{
		markPrice: 100,
		position: &models.Position{
			Symbol:    "SUI-PERP",
			Direction: models.DirectionLong,
			Size:      1,
		},
	}
	executor, _ := newTestExecutor(t, ex)

	_, err := executor.Execute(context.Background(), openDecision("SUI-PERP", models.DirectionLong, 1))
	if err == nil {
		t.Fatal("expected error for same-direction exchange position")
	}
	var stateErr *apperrors.InvalidStateError
	if !apperrors.As(err, &stateErr) {
		t.Errorf("expected InvalidStateError, got %v", err)
	}
	if len(ex.orders) != 0 {
		t.Error("no order may be submitted against a same-direction position")
	}
}

func TestExecutePartialFillRecordsFilledSize(t *testing.T) {
	ex := &stubExchange{markPrice: 100, partialFill: 1.2}
	executor, rm := newTestExecutor(t, ex)

	result, err := executor.Execute(context.Background(), openDecision("SUI-PERP", models.DirectionLong, 2))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if math.Abs(result.FilledSize-1.2) > 1e-9 {
		t.Errorf("expected filled size 1.2, got %f", result.FilledSize)
	}

	// The recorded exposure and the protective orders cover what
	// actually filled, not what was asked for.
	pos, ok := rm.PositionFor("SUI-PERP")
	if !ok {
		t.Fatal("position not recorded")
	}
	if math.Abs(pos.Size-1.2) > 1e-9 {
		t.Errorf("expected recorded size 1.2, got %f", pos.Size)
	}
	if math.Abs(ex.orders[1].Size-1.2) > 1e-9 {
		t.Errorf("expected stop sized 1.2, got %f", ex.orders[1].Size)
	}
	if math.Abs(ex.orders[2].Size-1.2) > 1e-9 {
		t.Errorf("expected take profit sized 1.2, got %f", ex.orders[2].Size)
	}
}

func TestExecutePartialFillBelowClosedLegFails(t *testing.T) {
	ex := &stubExchange{
		markPrice:   100,
		partialFill: 1.0,
		position: &models.Position{
			Symbol:     "SUI-PERP",
			Direction:  models.DirectionShort,
			Size:       1.5,
			EntryPrice: 105,
		},
	}
	executor, rm := newTestExecutor(t, ex)
	rm.ApplyOpen(*ex.position)

	decision := openDecision("SUI-PERP", models.DirectionLong, 1)
	decision.Action = models.ActionFlip
	decision.FinalSize = 2.5

	// The flip order filled for less than the closed leg, so what is
	// actually open on the exchange is unknowable locally.
	_, err := executor.Execute(context.Background(), decision)
	if err == nil {
		t.Fatal("expected error when the fill does not cover the closed leg")
	}
	var stateErr *apperrors.InvalidStateError
	if !apperrors.As(err, &stateErr) {
		t.Errorf("expected InvalidStateError, got %v", err)
	}

	pos, ok := rm.PositionFor("SUI-PERP")
	if !ok || pos.Direction != models.DirectionShort {
		t.Errorf("tracked position must be left for resync to settle, got %+v", pos)
	}
}

func TestExecuteRejectedDecisionFails(t *testing.T) {
	ex := &stubExchange{markPrice: 100}
	executor, _ := newTestExecutor(t, ex)

	decision := models.RejectDecision(models.Signal{Symbol: "SUI-PERP", Direction: models.DirectionLong}, "nope")
	if _, err := executor.Execute(context.Background(), decision); err == nil {
		t.Fatal("expected error executing a rejected decision")
	}
}
