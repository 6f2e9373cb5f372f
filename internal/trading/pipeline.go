package trading

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/config"
	"github.com/Angleito/BluefinAIAgentTrader/internal/confirm"
	apperrors "github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/exchange"
	"github.com/Angleito/BluefinAIAgentTrader/internal/metrics"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
	"github.com/Angleito/BluefinAIAgentTrader/internal/risk"
	"github.com/Angleito/BluefinAIAgentTrader/internal/signal"
)

// Pipeline runs a signal from normalization through execution. One
// lock per symbol covers the full span from decision to state update,
// so concurrent signals for the same symbol serialize while different
// symbols proceed independently.
type Pipeline struct {
	cfg         *config.Config
	normalizer  *signal.Normalizer
	confirmer   confirm.Confirmer
	riskManager *risk.Manager
	reconciler  *risk.Reconciler
	executor    *Executor
	exchange    exchange.Exchange
	recorder    *metrics.Recorder
	logger      zerolog.Logger

	lockMu      sync.Mutex
	symbolLocks map[string]*sync.Mutex

	haltMu sync.RWMutex
	halted map[string]bool
}

// priceSeeder is implemented by the simulated exchange so an alert's
// own price can stand in for a live mark-price feed.
type priceSeeder interface {
	UpdatePrice(symbol string, price float64)
}

// NewPipeline creates a trading pipeline.
func NewPipeline(cfg *config.Config, confirmer confirm.Confirmer, rm *risk.Manager, executor *Executor, ex exchange.Exchange, recorder *metrics.Recorder, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		normalizer:  signal.NewNormalizer(),
		confirmer:   confirmer,
		riskManager: rm,
		reconciler:  risk.NewReconciler(logger),
		executor:    executor,
		exchange:    ex,
		recorder:    recorder,
		logger:      logger,
		symbolLocks: make(map[string]*sync.Mutex),
		halted:      make(map[string]bool),
	}
}

// symbolLock returns the mutex for a symbol, creating it on first use.
func (p *Pipeline) symbolLock(symbol string) *sync.Mutex {
	p.lockMu.Lock()
	defer p.lockMu.Unlock()

	lock, ok := p.symbolLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		p.symbolLocks[symbol] = lock
	}
	return lock
}

// ProcessWebhook handles a validated webhook alert end to end.
func (p *Pipeline) ProcessWebhook(ctx context.Context, alert *signal.WebhookAlert) (*models.TradeDecision, error) {
	sig, err := p.normalizer.FromWebhook(alert)
	if err != nil {
		p.recorder.RecordSignalRejected(alert.Symbol, "malformed")
		return nil, err
	}
	return p.ProcessSignal(ctx, sig)
}

// ProcessSignal runs a normalized signal through confirmation, risk
// admission, reconciliation and execution. A rejection at any stage
// returns a rejection decision and a nil error; errors are reserved
// for faults that prevented a decision from being made.
func (p *Pipeline) ProcessSignal(ctx context.Context, sig *models.Signal) (*models.TradeDecision, error) {
	p.recorder.RecordSignalReceived(string(sig.Source), sig.Symbol)
	logger := p.logger.With().Str("symbol", sig.Symbol).Str("direction", string(sig.Direction)).Logger()

	if p.isHalted(sig.Symbol) {
		return p.reject(*sig, "symbol halted pending resync"), nil
	}

	if !p.tradable(sig.Symbol) {
		return p.reject(*sig, "symbol not in configured trading pairs"), nil
	}

	if sig.Confidence < p.cfg.Trading.MinConfidence {
		return p.reject(*sig, "confidence below minimum"), nil
	}

	lock := p.symbolLock(sig.Symbol)
	lock.Lock()
	defer lock.Unlock()

	markPrice, err := p.exchange.GetMarkPrice(ctx, sig.Symbol)
	if err != nil {
		// Without a live price feed the alert's own price is the only
		// reference. It also seeds the simulated book so mock-mode
		// fills have a price to execute against.
		if sig.SuggestedEntryPrice <= 0 {
			return nil, err
		}
		markPrice = sig.SuggestedEntryPrice
		if seeder, ok := p.exchange.(priceSeeder); ok {
			seeder.UpdatePrice(sig.Symbol, markPrice)
		}
	}
	p.recorder.RecordMarkPrice(sig.Symbol, markPrice)

	entryPrice := markPrice
	if sig.SuggestedEntryPrice > 0 {
		entryPrice = sig.SuggestedEntryPrice
	}

	snapshot := p.riskManager.Snapshot()
	verdict, err := p.confirmer.Confirm(ctx, *sig, confirm.MarketContext{
		MarkPrice:     markPrice,
		OpenPositions: len(snapshot.OpenPositions),
		DailyPnL:      snapshot.DailyRealizedPnL,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Confirmation unavailable, rejecting signal")
		return p.reject(*sig, "confirmation unavailable"), nil
	}
	if !verdict.Approved {
		return p.reject(*sig, "confirmation rejected: "+verdict.Reasoning), nil
	}

	stopLoss := p.riskManager.CalculateStopLoss(entryPrice, sig.Direction, 0)
	takeProfit := p.riskManager.CalculateTakeProfit(entryPrice, stopLoss, sig.Direction, 0)

	allowed, size, reason := p.riskManager.CanOpenNewTrade(sig.Symbol, entryPrice, stopLoss)
	if !allowed {
		return p.reject(*sig, reason), nil
	}

	decision := &models.TradeDecision{
		Signal:          *sig,
		Action:          models.ActionOpen,
		RiskSize:        size,
		FinalSize:       size,
		Leverage:        p.cfg.Trading.Leverage,
		EntryPrice:      entryPrice,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
	}

	var existing *models.Position
	if pos, ok := p.riskManager.PositionFor(sig.Symbol); ok {
		existing = &pos
	}

	decision = p.reconciler.Reconcile(decision, existing)
	if decision.Rejected() {
		p.riskManager.ReleaseReservation(sig.Symbol)
		p.recorder.RecordSignalRejected(sig.Symbol, "reconciler")
		logger.Info().Str("reason", decision.RejectionReason).Msg("Signal rejected")
		return decision, nil
	}

	start := time.Now()
	result, err := p.executor.Execute(ctx, decision)
	p.recorder.RecordExecutionTime(sig.Symbol, time.Since(start).Seconds())
	if err != nil {
		p.riskManager.ReleaseReservation(sig.Symbol)
		p.recorder.RecordExecutionError(sig.Symbol)
		logger.Error().Err(err).Msg("Execution failed")

		var stateErr *apperrors.InvalidStateError
		if apperrors.As(err, &stateErr) {
			p.haltSymbol(sig.Symbol)
		}
		return nil, err
	}

	p.recorder.RecordTradeExecuted(sig.Symbol, string(decision.Action))
	p.publishGauges()

	logger.Info().
		Str("trade_id", result.TradeID).
		Str("action", string(decision.Action)).
		Float64("size", result.FilledSize).
		Float64("avg_price", result.AveragePrice).
		Msg("Trade executed")

	return decision, nil
}

// Resync reloads balance and positions from the exchange and clears
// all symbol halts. The exchange view wins over local state.
func (p *Pipeline) Resync(ctx context.Context) error {
	balance, err := p.exchange.GetBalance(ctx)
	if err != nil {
		return err
	}
	positions, err := p.exchange.GetPositions(ctx)
	if err != nil {
		return err
	}

	if err := p.riskManager.Resync(balance.AvailableMargin, positions); err != nil {
		return err
	}
	p.executor.resetStates(positions)

	p.haltMu.Lock()
	p.halted = make(map[string]bool)
	p.haltMu.Unlock()

	p.publishGauges()
	p.logger.Info().Int("positions", len(positions)).Float64("balance", balance.AvailableMargin).Msg("State resynced from exchange")
	return nil
}

// OnTick feeds a mark-price update into advisory position management:
// closing positions whose stop or target has been crossed, and moving
// stops to break even after a favorable excursion.
func (p *Pipeline) OnTick(ctx context.Context, tick exchange.Tick) {
	p.recorder.RecordMarkPrice(tick.Symbol, tick.MarkPrice)

	pos, ok := p.riskManager.PositionFor(tick.Symbol)
	if !ok {
		return
	}
	shouldClose := p.riskManager.ShouldClosePosition(pos, tick.MarkPrice)
	shouldAdjust, _ := p.riskManager.ShouldAdjustPosition(pos, tick.MarkPrice)
	if !shouldClose && !shouldAdjust {
		return
	}

	lock := p.symbolLock(tick.Symbol)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock; another signal may have closed it.
	pos, ok = p.riskManager.PositionFor(tick.Symbol)
	if !ok {
		return
	}
	if p.riskManager.ShouldClosePosition(pos, tick.MarkPrice) {
		p.closeAtProtectiveLevel(ctx, pos, tick)
		return
	}
	if adjust, newStop := p.riskManager.ShouldAdjustPosition(pos, tick.MarkPrice); adjust {
		p.moveStop(ctx, pos, newStop)
	}
}

// closeAtProtectiveLevel market-closes a position whose stop or target
// the tick price has crossed. Callers must hold the symbol lock.
func (p *Pipeline) closeAtProtectiveLevel(ctx context.Context, pos models.Position, tick exchange.Tick) {
	order := &models.Order{
		Symbol:     tick.Symbol,
		Side:       pos.Direction.Opposite().OrderSide(),
		Type:       models.OrderTypeMarket,
		Size:       pos.Size,
		Leverage:   pos.Leverage,
		ReduceOnly: true,
	}
	p.executor.setState(tick.Symbol, models.StateClosing)
	result, err := p.exchange.PlaceOrder(ctx, order)
	if err != nil || !result.Filled() {
		p.executor.setState(tick.Symbol, models.StateOpen)
		p.logger.Error().Err(err).Str("symbol", tick.Symbol).Msg("Failed to close position at protective level")
		return
	}
	p.executor.setState(tick.Symbol, models.StateNoPosition)
	p.executor.cancelProtective(ctx, tick.Symbol)

	exitPrice := result.AveragePrice
	if exitPrice <= 0 {
		exitPrice = tick.MarkPrice
	}

	pnl := legPnL(pos.Direction, pos.EntryPrice, exitPrice, pos.Size)
	p.riskManager.ApplyClose(tick.Symbol, pnl)
	if _, found, err := p.executor.tracker.CloseOpenTradeForSymbol(ctx, tick.Symbol, exitPrice); err != nil {
		p.logger.Error().Err(err).Str("symbol", tick.Symbol).Msg("Failed to record trade exit")
	} else if !found {
		p.logger.Warn().Str("symbol", tick.Symbol).Msg("Closed position had no open trade record")
	}

	p.publishGauges()
	p.logger.Info().
		Str("symbol", tick.Symbol).
		Float64("exit_price", exitPrice).
		Float64("realized_pnl", pnl).
		Msg("Position closed at protective level")
}

// moveStop replaces the resting stop order and the tracked stop level
// after a favorable excursion. Callers must hold the symbol lock.
func (p *Pipeline) moveStop(ctx context.Context, pos models.Position, newStop float64) {
	if err := p.executor.amendStop(ctx, pos, newStop); err != nil {
		p.logger.Error().Err(err).Str("symbol", pos.Symbol).Float64("new_stop", newStop).Msg("Failed to move stop order")
		return
	}
	p.riskManager.SetStopLoss(pos.Symbol, newStop)
	p.logger.Info().
		Str("symbol", pos.Symbol).
		Float64("old_stop", pos.StopLossPrice).
		Float64("new_stop", newStop).
		Msg("Stop moved after favorable excursion")
}

func (p *Pipeline) reject(sig models.Signal, reason string) *models.TradeDecision {
	p.recorder.RecordSignalRejected(sig.Symbol, reasonLabel(reason))
	p.logger.Info().
		Str("symbol", sig.Symbol).
		Str("direction", string(sig.Direction)).
		Str("reason", reason).
		Msg("Signal rejected")
	return models.RejectDecision(sig, reason)
}

// reasonLabel maps free-form rejection reasons to bounded metric
// labels.
func reasonLabel(reason string) string {
	switch {
	case reason == "symbol halted pending resync":
		return "halted"
	case reason == "symbol not in configured trading pairs":
		return "untradable"
	case reason == "confidence below minimum":
		return "confidence"
	case reason == "confirmation unavailable":
		return "confirmation_error"
	case len(reason) >= 12 && reason[:12] == "confirmation":
		return "confirmation"
	case len(reason) >= 13 && reason[:13] == "max positions":
		return "max_positions"
	case len(reason) >= 10 && reason[:10] == "daily loss":
		return "circuit_breaker"
	default:
		return "risk"
	}
}

func (p *Pipeline) tradable(symbol string) bool {
	if len(p.cfg.Trading.TradingPairs) == 0 {
		return true
	}
	for _, pair := range p.cfg.Trading.TradingPairs {
		if pair == symbol {
			return true
		}
	}
	return false
}

func (p *Pipeline) isHalted(symbol string) bool {
	p.haltMu.RLock()
	defer p.haltMu.RUnlock()
	return p.halted[symbol]
}

// haltSymbol stops processing for a symbol until the next resync.
func (p *Pipeline) haltSymbol(symbol string) {
	p.haltMu.Lock()
	p.halted[symbol] = true
	p.haltMu.Unlock()
	p.logger.Error().Str("symbol", symbol).Msg("Symbol halted until resync")
}

func (p *Pipeline) publishGauges() {
	snapshot := p.riskManager.Snapshot()
	p.recorder.SetOpenPositions(len(snapshot.OpenPositions))
	p.recorder.SetDailyPnL(snapshot.DailyRealizedPnL)
}
