// Package performance tracks trade history and derives aggregate
// trading metrics.
package performance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
	"github.com/Angleito/BluefinAIAgentTrader/internal/store"
)

// Tracker records trade entries and exits and computes performance
// metrics over the persisted history.
type Tracker struct {
	store  store.TradeStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewTracker creates a tracker over the given trade store.
func NewTracker(st store.TradeStore, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the tracker clock. Used in tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// EntryParams describes a newly opened trade.
type EntryParams struct {
	Symbol     string
	Direction  models.Direction
	EntryPrice float64
	Size       float64
	Leverage   int
	StopLoss   float64
	TakeProfit float64
	Source     models.SignalSource
	OrderIDs   []string
}

// LogTradeEntry records a new open trade and returns its ID.
func (t *Tracker) LogTradeEntry(ctx context.Context, params EntryParams) (string, error) {
	tradeID := uuid.NewString()

	record := &models.TradeRecord{
		TradeID:    tradeID,
		Symbol:     params.Symbol,
		Direction:  params.Direction,
		EntryPrice: params.EntryPrice,
		Size:       params.Size,
		Leverage:   params.Leverage,
		StopLoss:   params.StopLoss,
		TakeProfit: params.TakeProfit,
		Status:     models.TradeOpen,
		OpenedAt:   t.now().UTC(),
		Source:     params.Source,
		OrderIDs:   params.OrderIDs,
	}

	if err := t.store.LogTrade(ctx, record); err != nil {
		return "", err
	}

	t.logger.Info().
		Str("trade_id", tradeID).
		Str("symbol", params.Symbol).
		Str("direction", string(params.Direction)).
		Float64("entry_price", params.EntryPrice).
		Float64("size", params.Size).
		Msg("Trade entry recorded")

	return tradeID, nil
}

// LogTradeExit closes an open trade, computing realized P&L from the
// exit price. It returns the realized P&L.
func (t *Tracker) LogTradeExit(ctx context.Context, tradeID string, exitPrice float64) (float64, error) {
	trade, err := t.store.GetTrade(ctx, tradeID)
	if err != nil {
		return 0, err
	}

	pnl := realizedPnL(trade.Direction, trade.EntryPrice, exitPrice, trade.Size)
	closedAt := t.now().UTC()

	if err := t.store.CloseTrade(ctx, tradeID, exitPrice, pnl, closedAt); err != nil {
		return 0, err
	}

	t.logger.Info().
		Str("trade_id", tradeID).
		Str("symbol", trade.Symbol).
		Float64("exit_price", exitPrice).
		Float64("realized_pnl", pnl).
		Msg("Trade exit recorded")

	return pnl, nil
}

// CloseOpenTradeForSymbol closes the open trade for a symbol, if any.
// Returns the realized P&L and whether a trade was found.
func (t *Tracker) CloseOpenTradeForSymbol(ctx context.Context, symbol string, exitPrice float64) (float64, bool, error) {
	trade, err := t.store.GetOpenTrade(ctx, symbol)
	if err != nil {
		return 0, false, err
	}
	if trade == nil {
		return 0, false, nil
	}

	pnl, err := t.LogTradeExit(ctx, trade.TradeID, exitPrice)
	if err != nil {
		return 0, false, err
	}
	return pnl, true, nil
}

// Metrics computes aggregate metrics over closed trades matching the
// filter. Max drawdown walks the equity curve in exit-time order and
// tracks the largest peak-to-trough decline.
func (t *Tracker) Metrics(ctx context.Context, filter store.TradeFilter) (*models.PerformanceMetrics, error) {
	trades, err := t.store.GetClosedTradesByExit(ctx, filter)
	if err != nil {
		return nil, err
	}

	metrics := &models.PerformanceMetrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return metrics, nil
	}

	var grossProfit, grossLoss float64
	var equity, peak, maxDrawdown float64

	for _, trade := range trades {
		pnl := trade.RealizedPnL
		metrics.TotalPnL += pnl

		if pnl > 0 {
			metrics.WinningTrades++
			grossProfit += pnl
		} else if pnl < 0 {
			metrics.LosingTrades++
			grossLoss += -pnl
		}

		equity += pnl
		if equity > peak {
			peak = equity
		}
		if drawdown := peak - equity; drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}

	metrics.WinRate = float64(metrics.WinningTrades) / float64(len(trades))
	metrics.AvgPnL = metrics.TotalPnL / float64(len(trades))
	metrics.MaxDrawdown = maxDrawdown

	if metrics.WinningTrades > 0 {
		metrics.AvgProfit = grossProfit / float64(metrics.WinningTrades)
	}
	if metrics.LosingTrades > 0 {
		metrics.AvgLoss = grossLoss / float64(metrics.LosingTrades)
	}
	if grossLoss > 0 {
		metrics.ProfitFactor = grossProfit / grossLoss
	}

	return metrics, nil
}

// realizedPnL computes directional P&L for a closed trade.
func realizedPnL(direction models.Direction, entry, exit, size float64) float64 {
	if direction == models.DirectionShort {
		return (entry - exit) * size
	}
	return (exit - entry) * size
}
