// Package trading orchestrates signal processing, risk checks and
// order execution.
package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	apperrors "github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/exchange"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
	"github.com/Angleito/BluefinAIAgentTrader/internal/performance"
	"github.com/Angleito/BluefinAIAgentTrader/internal/risk"
)

// Executor turns approved trade decisions into exchange orders. Entry
// orders are retried with exponential backoff; protective orders are
// submitted once after a confirmed fill. Exchange-side position state
// is re-checked immediately before submission so a stale local view
// cannot produce a wrong-sized flip order.
type Executor struct {
	exchange    exchange.Exchange
	riskManager *risk.Manager
	tracker     *performance.Tracker
	logger      zerolog.Logger

	maxRetryElapsed time.Duration

	stateMu    sync.RWMutex
	states     map[string]models.PositionState
	protective map[string]protectiveOrders
}

// protectiveOrders are the resting stop and take-profit order IDs for
// an open position.
type protectiveOrders struct {
	stopID       string
	takeProfitID string
}

// NewExecutor creates a trade executor.
func NewExecutor(ex exchange.Exchange, rm *risk.Manager, tracker *performance.Tracker, logger zerolog.Logger) *Executor {
	return &Executor{
		exchange:        ex,
		riskManager:     rm,
		tracker:         tracker,
		logger:          logger,
		maxRetryElapsed: 20 * time.Second,
		states:          make(map[string]models.PositionState),
		protective:      make(map[string]protectiveOrders),
	}
}

// State returns the tracked order lifecycle state for a symbol.
func (e *Executor) State(symbol string) models.PositionState {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	state, ok := e.states[symbol]
	if !ok {
		return models.StateNoPosition
	}
	return state
}

func (e *Executor) setState(symbol string, state models.PositionState) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if state == models.StateNoPosition {
		delete(e.states, symbol)
		return
	}
	e.states[symbol] = state
}

// resetStates replaces all lifecycle states with the exchange view.
// A crash mid-transition leaves a transient state behind; the next
// resync lands here and clears it.
func (e *Executor) resetStates(positions []models.Position) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	e.states = make(map[string]models.PositionState, len(positions))
	for _, pos := range positions {
		if pos.Size > 0 {
			e.states[pos.Symbol] = models.StateOpen
		}
	}

	// Resting order IDs cannot be reconstructed from the position view;
	// keep the ones whose position survived, drop the rest.
	for sym := range e.protective {
		if _, open := e.states[sym]; !open {
			delete(e.protective, sym)
		}
	}
}

func (e *Executor) protectiveFor(symbol string) (protectiveOrders, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	prot, ok := e.protective[symbol]
	return prot, ok
}

func (e *Executor) setProtective(symbol string, prot protectiveOrders) {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.protective[symbol] = prot
}

// cancelProtective cancels the resting stop and take-profit orders
// recorded for a symbol. A cancel racing the order's own fill is
// logged and skipped.
func (e *Executor) cancelProtective(ctx context.Context, symbol string) {
	prot, ok := e.protectiveFor(symbol)
	if !ok {
		return
	}

	for _, orderID := range []string{prot.stopID, prot.takeProfitID} {
		if orderID == "" {
			continue
		}
		if err := e.exchange.CancelOrder(ctx, symbol, orderID); err != nil {
			e.logger.Warn().Err(err).Str("symbol", symbol).Str("order_id", orderID).Msg("Failed to cancel resting protective order")
		}
	}

	e.stateMu.Lock()
	delete(e.protective, symbol)
	e.stateMu.Unlock()
}

// amendStop replaces the resting stop order with one at the new price.
// The tracked position is not touched; that is the caller's job.
func (e *Executor) amendStop(ctx context.Context, pos models.Position, newStop float64) error {
	prot, ok := e.protectiveFor(pos.Symbol)
	if ok && prot.stopID != "" {
		if err := e.exchange.CancelOrder(ctx, pos.Symbol, prot.stopID); err != nil {
			e.logger.Warn().Err(err).Str("symbol", pos.Symbol).Str("order_id", prot.stopID).Msg("Failed to cancel resting stop order")
		}
	}

	order := &models.Order{
		Symbol:       pos.Symbol,
		Side:         pos.Direction.Opposite().OrderSide(),
		Type:         models.OrderTypeStopLoss,
		Size:         pos.Size,
		TriggerPrice: newStop,
		Leverage:     pos.Leverage,
		ReduceOnly:   true,
	}
	result, err := e.exchange.PlaceOrder(ctx, order)
	if err != nil {
		return err
	}

	prot.stopID = result.OrderID
	e.setProtective(pos.Symbol, prot)
	return nil
}

// ExecutionResult describes a completed execution.
type ExecutionResult struct {
	TradeID          string
	OrderID          string
	FilledSize       float64
	AveragePrice     float64
	StopLossPlaced   bool
	TakeProfitPlaced bool
	ClosedPnL        float64 // realized P&L from the closed leg of a flip
}

// Execute carries out a trade decision. Callers must hold the symbol
// lock for the full span from decision through state update.
func (e *Executor) Execute(ctx context.Context, decision *models.TradeDecision) (*ExecutionResult, error) {
	if decision.Rejected() {
		return nil, apperrors.NewExecutionError("", decision.Signal.Symbol,
			string(decision.Signal.Direction.OrderSide()), "cannot execute a rejected decision", nil)
	}

	symbol := decision.Signal.Symbol
	logger := e.logger.With().Str("symbol", symbol).Logger()

	// The exchange is ground truth. Re-read the position right before
	// submission; the flip size is recomputed from what is actually
	// open, not from the snapshot the decision was made against.
	current, err := e.exchange.GetPosition(ctx, symbol)
	if err != nil {
		return nil, apperrors.NewExecutionError("", symbol,
			string(decision.Signal.Direction.OrderSide()), "failed to verify exchange position", err)
	}

	orderSize := decision.FinalSize
	var closingSize float64
	if current != nil {
		if current.Direction == decision.Signal.Direction {
			// The reconciler rejects same-direction signals, so the
			// exchange showing one here means local state has diverged.
			return nil, apperrors.NewInvalidStateError("position", symbol,
				"exchange reports same-direction position unknown to local state")
		}
		closingSize = current.Size
		orderSize = decision.RiskSize + current.Size
		if orderSize != decision.FinalSize {
			logger.Warn().
				Float64("decided_size", decision.FinalSize).
				Float64("adjusted_size", orderSize).
				Msg("Exchange position changed since decision, adjusting flip size")
		}
	} else if decision.Action == models.ActionFlip {
		// The opposing position vanished between decision and
		// submission. Fall back to a plain open at the risk size and
		// clear whatever protective orders were left behind.
		orderSize = decision.RiskSize
		logger.Warn().Msg("Opposing position no longer open, downgrading flip to open")
		e.cancelProtective(ctx, symbol)
	}

	if err := e.exchange.SetLeverage(ctx, symbol, decision.Leverage); err != nil {
		logger.Warn().Err(err).Int("leverage", decision.Leverage).Msg("Failed to set leverage, continuing")
	}

	entryOrder := &models.Order{
		Symbol:   symbol,
		Side:     decision.Signal.Direction.OrderSide(),
		Type:     models.OrderTypeMarket,
		Size:     orderSize,
		Leverage: decision.Leverage,
	}

	prevState := e.State(symbol)
	if closingSize > 0 {
		e.setState(symbol, models.StateFlipping)
	} else {
		e.setState(symbol, models.StateOpening)
	}

	result, err := e.placeEntryOrder(ctx, entryOrder)
	if err != nil {
		// No state was mutated and no protective orders exist.
		e.setState(symbol, prevState)
		return nil, err
	}

	logger.Info().
		Str("order_id", result.OrderID).
		Float64("size", result.FilledSize).
		Float64("avg_price", result.AveragePrice).
		Msg("Entry order filled")

	fillPrice := result.AveragePrice
	if fillPrice <= 0 {
		fillPrice = decision.EntryPrice
	}

	// Partial fills open less exposure than the decision sized; record
	// what actually filled, not what was asked for.
	openedSize := decision.RiskSize
	if result.FilledSize > 0 {
		openedSize = result.FilledSize - closingSize
	}
	if openedSize <= 0 {
		e.setState(symbol, prevState)
		return nil, apperrors.NewInvalidStateError("fill", symbol,
			"partial fill did not cover the closed leg, position unknown until resync")
	}
	if result.PartiallyFilled() {
		logger.Warn().
			Float64("requested", orderSize).
			Float64("filled", result.FilledSize).
			Msg("Entry order partially filled, recording filled size only")
	}

	execResult := &ExecutionResult{
		OrderID:      result.OrderID,
		FilledSize:   result.FilledSize,
		AveragePrice: fillPrice,
	}

	// Settle the closed leg of a flip before recording the new one. The
	// reduce-only orders protecting that leg are stale from here on.
	if closingSize > 0 && current != nil {
		e.cancelProtective(ctx, symbol)
		closedPnL := legPnL(current.Direction, current.EntryPrice, fillPrice, closingSize)
		execResult.ClosedPnL = closedPnL
		e.riskManager.ApplyClose(symbol, closedPnL)

		if pnl, found, err := e.tracker.CloseOpenTradeForSymbol(ctx, symbol, fillPrice); err != nil {
			logger.Error().Err(err).Msg("Failed to record trade exit")
		} else if found {
			execResult.ClosedPnL = pnl
		}
	}

	newPosition := models.Position{
		Symbol:          symbol,
		Direction:       decision.Signal.Direction,
		Size:            openedSize,
		EntryPrice:      fillPrice,
		Leverage:        decision.Leverage,
		StopLossPrice:   decision.StopLossPrice,
		TakeProfitPrice: decision.TakeProfitPrice,
		OpenedAt:        time.Now().UTC(),
	}
	e.riskManager.ApplyOpen(newPosition)
	e.setState(symbol, models.StateOpen)

	orderIDs := []string{result.OrderID}
	var prot protectiveOrders

	// Protective orders. A failure here is critical but does not undo
	// the recorded position; the exposure is live on the exchange.
	stopID, err := e.placeStopLoss(ctx, decision, symbol, openedSize)
	if err != nil {
		logger.Error().
			Err(err).
			Float64("stop_price", decision.StopLossPrice).
			Msg("CRITICAL: position open without stop loss")
	} else {
		execResult.StopLossPlaced = true
		prot.stopID = stopID
		orderIDs = append(orderIDs, stopID)
	}

	tpID, err := e.placeTakeProfit(ctx, decision, symbol, openedSize)
	if err != nil {
		logger.Error().
			Err(err).
			Float64("take_profit_price", decision.TakeProfitPrice).
			Msg("CRITICAL: position open without take profit")
	} else {
		execResult.TakeProfitPlaced = true
		prot.takeProfitID = tpID
		orderIDs = append(orderIDs, tpID)
	}
	e.setProtective(symbol, prot)

	tradeID, err := e.tracker.LogTradeEntry(ctx, performance.EntryParams{
		Symbol:     symbol,
		Direction:  decision.Signal.Direction,
		EntryPrice: fillPrice,
		Size:       openedSize,
		Leverage:   decision.Leverage,
		StopLoss:   decision.StopLossPrice,
		TakeProfit: decision.TakeProfitPrice,
		Source:     decision.Signal.Source,
		OrderIDs:   orderIDs,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to record trade entry")
	}
	execResult.TradeID = tradeID

	return execResult, nil
}

// placeEntryOrder submits the entry order with bounded retries.
// Rejections are terminal; transient failures are retried.
func (e *Executor) placeEntryOrder(ctx context.Context, order *models.Order) (*models.OrderResult, error) {
	var result *models.OrderResult

	operation := func() error {
		var err error
		result, err = e.exchange.PlaceOrder(ctx, order)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrOrderRejected) {
				return backoff.Permanent(err)
			}
			return err
		}
		if !result.Filled() {
			// A partial execution is live exposure; it is accepted and
			// sized down by the caller rather than retried.
			if result.PartiallyFilled() && result.FilledSize > 0 {
				return nil
			}
			return backoff.Permanent(apperrors.NewExecutionError(result.OrderID, order.Symbol,
				string(order.Side), fmt.Sprintf("entry order not filled: %s", result.Status),
				apperrors.ErrOrderRejected))
		}
		return nil
	}

	backoffStrategy := backoff.NewExponentialBackOff()
	backoffStrategy.MaxElapsedTime = e.maxRetryElapsed

	if err := backoff.Retry(operation, backoff.WithContext(backoffStrategy, ctx)); err != nil {
		return nil, apperrors.NewExecutionError("", order.Symbol, string(order.Side),
			"entry order failed", err)
	}

	return result, nil
}

// placeStopLoss submits a reduce-only stop order for the new position.
func (e *Executor) placeStopLoss(ctx context.Context, decision *models.TradeDecision, symbol string, size float64) (string, error) {
	if decision.StopLossPrice <= 0 {
		return "", apperrors.NewExecutionError("", symbol, "", "invalid stop loss price", nil)
	}

	order := &models.Order{
		Symbol:       symbol,
		Side:         decision.Signal.Direction.Opposite().OrderSide(),
		Type:         models.OrderTypeStopLoss,
		Size:         size,
		TriggerPrice: decision.StopLossPrice,
		Leverage:     decision.Leverage,
		ReduceOnly:   true,
	}

	result, err := e.exchange.PlaceOrder(ctx, order)
	if err != nil {
		return "", err
	}
	return result.OrderID, nil
}

// placeTakeProfit submits a reduce-only limit order at the target.
func (e *Executor) placeTakeProfit(ctx context.Context, decision *models.TradeDecision, symbol string, size float64) (string, error) {
	if decision.TakeProfitPrice <= 0 {
		return "", apperrors.NewExecutionError("", symbol, "", "invalid take profit price", nil)
	}

	order := &models.Order{
		Symbol:     symbol,
		Side:       decision.Signal.Direction.Opposite().OrderSide(),
		Type:       models.OrderTypeLimit,
		Size:       size,
		Price:      decision.TakeProfitPrice,
		Leverage:   decision.Leverage,
		ReduceOnly: true,
	}

	result, err := e.exchange.PlaceOrder(ctx, order)
	if err != nil {
		return "", err
	}
	return result.OrderID, nil
}

// legPnL computes the realized P&L of a closed position leg.
func legPnL(direction models.Direction, entry, exit, size float64) float64 {
	if direction == models.DirectionShort {
		return (entry - exit) * size
	}
	return (exit - entry) * size
}
