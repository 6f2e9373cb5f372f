// Package risk provides position sizing, trade admission, and account-state
// management for the trading pipeline.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/config"
	"github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// AccountState is a snapshot of the account as tracked by the Manager.
type AccountState struct {
	Balance          float64
	OpenPositions    map[string]models.Position
	DailyRealizedPnL float64
	TradeCountToday  int
}

// Manager is the gatekeeper for all capital deployment and the sole
// mutator of account state. All methods are safe for concurrent use.
type Manager struct {
	riskCfg    config.RiskConfig
	tradingCfg config.TradingConfig
	logger     zerolog.Logger

	mu               sync.RWMutex
	balance          float64
	positions        map[string]models.Position
	reserved         map[string]bool
	dailyRealizedPnL float64
	tradeCountToday  int
	currentDay       time.Time

	// clock is injectable so the daily boundary can be driven in tests.
	clock func() time.Time
}

// NewManager creates a new risk manager with the given starting balance.
func NewManager(riskCfg config.RiskConfig, tradingCfg config.TradingConfig, balance float64, logger zerolog.Logger) *Manager {
	m := &Manager{
		riskCfg:    riskCfg,
		tradingCfg: tradingCfg,
		logger:     logger,
		balance:    balance,
		positions:  make(map[string]models.Position),
		reserved:   make(map[string]bool),
		clock:      time.Now,
	}
	m.currentDay = dayOf(m.clock())
	return m
}

// SetClock replaces the manager's clock (for testing and state recovery).
func (m *Manager) SetClock(clock func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = clock
	m.currentDay = dayOf(clock())
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// rollDay resets daily counters when the tracked day boundary advances.
// Callers must hold m.mu.
func (m *Manager) rollDay() {
	today := dayOf(m.clock())
	if today.After(m.currentDay) {
		m.currentDay = today
		m.dailyRealizedPnL = 0
		m.tradeCountToday = 0
		m.logger.Info().Time("day", today).Msg("Daily P&L counters reset")
	}
}

// UpdateBalance replaces the tracked balance after external settlement
// confirmation. Negative balances are rejected.
func (m *Manager) UpdateBalance(newBalance float64) error {
	if newBalance < 0 {
		return errors.NewInvalidStateError("balance", newBalance, "balance cannot be negative")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = newBalance
	m.logger.Info().Float64("balance", newBalance).Msg("Account balance updated")
	return nil
}

// Balance returns the tracked account balance.
func (m *Manager) Balance() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}

// Snapshot returns a copy of the current account state.
func (m *Manager) Snapshot() AccountState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	positions := make(map[string]models.Position, len(m.positions))
	for sym, pos := range m.positions {
		positions[sym] = pos
	}
	return AccountState{
		Balance:          m.balance,
		OpenPositions:    positions,
		DailyRealizedPnL: m.dailyRealizedPnL,
		TradeCountToday:  m.tradeCountToday,
	}
}

// PositionFor returns the open position for a symbol, if any.
func (m *Manager) PositionFor(symbol string) (models.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[symbol]
	return pos, ok
}

// OpenPositionCount returns the number of open positions.
func (m *Manager) OpenPositionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.positions)
}

// CalculatePositionSize computes a base-currency size such that losing
// the full entry-to-stop distance costs riskFraction of the balance.
// Pass riskFraction <= 0 to use the configured max risk per trade.
func (m *Manager) CalculatePositionSize(entryPrice, stopLossPrice, riskFraction float64) (float64, error) {
	if riskFraction <= 0 {
		riskFraction = m.riskCfg.MaxRiskPerTrade
	}
	if entryPrice <= 0 {
		return 0, errors.NewConfigurationError("entry_price", entryPrice, "entry price must be positive")
	}

	priceDiff := math.Abs(entryPrice - stopLossPrice)
	if priceDiff == 0 {
		return 0, errors.NewConfigurationError("stop_loss", stopLossPrice, "stop loss equals entry price, zero stop distance")
	}

	m.mu.RLock()
	balance := m.balance
	m.mu.RUnlock()

	riskAmount := balance * riskFraction
	size := riskAmount / priceDiff

	// Clamp to the absolute USD cap and the percent-of-balance cap,
	// whichever is smaller.
	maxNotional := m.riskCfg.MaxPositionSizeUSD
	if pctCap := balance * m.riskCfg.MaxPositionPercent; m.riskCfg.MaxPositionPercent > 0 && (maxNotional <= 0 || pctCap < maxNotional) {
		maxNotional = pctCap
	}
	if maxNotional > 0 {
		if maxSize := maxNotional / entryPrice; size > maxSize {
			size = maxSize
		}
	}

	return size, nil
}

// CanOpenNewTrade evaluates trade admission for a symbol. It returns
// whether the trade is allowed, the risk-sized quantity, and the
// rejection reason when not allowed. Checks run in a fixed order: the
// open-position cap, the daily loss circuit breaker, then sizing.
func (m *Manager) CanOpenNewTrade(symbol string, entryPrice, stopLossPrice float64) (bool, float64, string) {
	m.mu.Lock()
	m.rollDay()

	// Admitted-but-not-yet-applied trades on other symbols count toward
	// the cap, so concurrent admissions cannot overshoot it.
	openCount := len(m.positions)
	for sym := range m.reserved {
		if sym == symbol {
			continue
		}
		if _, open := m.positions[sym]; !open {
			openCount++
		}
	}
	dailyPnL := m.dailyRealizedPnL
	balance := m.balance

	if openCount >= m.riskCfg.MaxOpenPositions {
		m.mu.Unlock()
		return false, 0, fmt.Sprintf("max positions reached: %d/%d", openCount, m.riskCfg.MaxOpenPositions)
	}

	// Daily loss circuit breaker. Once tripped, no OPEN succeeds until
	// the day boundary advances.
	if lossLimit := m.riskCfg.MaxDailyLoss * balance; dailyPnL <= -lossLimit && lossLimit > 0 {
		m.mu.Unlock()
		return false, 0, fmt.Sprintf("daily loss limit reached: %.2f/%.2f", dailyPnL, -lossLimit)
	}

	// Hold the slot until ApplyOpen consumes it or the caller releases
	// it on a downstream rejection or execution failure.
	m.reserved[symbol] = true
	m.mu.Unlock()

	size, err := m.CalculatePositionSize(entryPrice, stopLossPrice, 0)
	if err != nil {
		m.ReleaseReservation(symbol)
		return false, 0, err.Error()
	}

	if size < m.tradingCfg.MinOrderSize {
		m.ReleaseReservation(symbol)
		return false, 0, fmt.Sprintf("size below exchange minimum: %.6f < %.6f", size, m.tradingCfg.MinOrderSize)
	}

	return true, size, ""
}

// ReleaseReservation frees the admission slot held by CanOpenNewTrade
// when the trade never reaches ApplyOpen.
func (m *Manager) ReleaseReservation(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reserved, symbol)
}

// CircuitBreakerTripped reports whether the daily loss circuit breaker
// is currently active.
func (m *Manager) CircuitBreakerTripped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()
	lossLimit := m.riskCfg.MaxDailyLoss * m.balance
	return lossLimit > 0 && m.dailyRealizedPnL <= -lossLimit
}

// CalculateStopLoss computes a protective stop price. When atr is
// positive the stop distance is volatility-scaled; otherwise the fixed
// percentage applies. LONG stops sit below entry, SHORT stops above.
// The result is never zero or negative.
func (m *Manager) CalculateStopLoss(entryPrice float64, direction models.Direction, atr float64) float64 {
	var offset float64
	if atr > 0 {
		offset = atr * m.tradingCfg.ATRMultiplier
	} else {
		offset = entryPrice * m.tradingCfg.StopLossPercentage
	}

	var stop float64
	if direction == models.DirectionLong {
		stop = entryPrice - offset
	} else {
		stop = entryPrice + offset
	}

	if stop <= 0 {
		// An oversized ATR offset can cross zero; fall back to the
		// fixed-percentage stop.
		if direction == models.DirectionLong {
			stop = entryPrice * (1 - m.tradingCfg.StopLossPercentage)
		} else {
			stop = entryPrice * (1 + m.tradingCfg.StopLossPercentage)
		}
	}
	return stop
}

// CalculateTakeProfit computes the take-profit price so that the reward
// distance is rewardRiskRatio times the stop distance, applied in the
// profit direction. Pass rewardRiskRatio <= 0 to use the configured ratio.
func (m *Manager) CalculateTakeProfit(entryPrice, stopLossPrice float64, direction models.Direction, rewardRiskRatio float64) float64 {
	if rewardRiskRatio <= 0 {
		rewardRiskRatio = m.riskCfg.RewardRiskRatio
	}

	reward := math.Abs(entryPrice-stopLossPrice) * rewardRiskRatio
	if direction == models.DirectionLong {
		return entryPrice + reward
	}
	return entryPrice - reward
}

// ApplyOpen records a newly opened position. Insert for OPEN, replace
// for FLIP.
func (m *Manager) ApplyOpen(pos models.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.Symbol] = pos
	delete(m.reserved, pos.Symbol)
	m.tradeCountToday++
}

// ApplyClose removes a position and records its realized P&L against
// the daily counter.
func (m *Manager) ApplyClose(symbol string, realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()
	delete(m.positions, symbol)
	m.dailyRealizedPnL += realizedPnL
	m.balance += realizedPnL
}

// RecordRealizedPnL adds realized P&L to the daily counter without
// touching positions (partial closes, funding).
func (m *Manager) RecordRealizedPnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollDay()
	m.dailyRealizedPnL += pnl
	m.balance += pnl
}

// Resync replaces the tracked balance and positions with exchange-side
// state. The exchange, not local memory, is the source of truth for
// recovery.
func (m *Manager) Resync(balance float64, positions []models.Position) error {
	if balance < 0 {
		return errors.NewInvalidStateError("balance", balance, "exchange reported negative balance")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
	m.reserved = make(map[string]bool)
	m.positions = make(map[string]models.Position, len(positions))
	for _, pos := range positions {
		if pos.Size > 0 {
			m.positions[pos.Symbol] = pos
		}
	}
	m.logger.Info().Float64("balance", balance).Int("positions", len(m.positions)).Msg("Account state resynced from exchange")
	return nil
}

// SetStopLoss updates the tracked stop for an open position. Returns
// false when no position is open for the symbol.
func (m *Manager) SetStopLoss(symbol string, stopPrice float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	pos, ok := m.positions[symbol]
	if !ok {
		return false
	}
	pos.StopLossPrice = stopPrice
	m.positions[symbol] = pos
	return true
}

// ShouldAdjustPosition reports whether a position's stop should move to
// break even after a favorable excursion of at least 5%.
func (m *Manager) ShouldAdjustPosition(pos models.Position, currentPrice float64) (bool, float64) {
	if pos.Direction == models.DirectionLong && currentPrice > pos.EntryPrice*1.05 {
		newStop := math.Max(pos.StopLossPrice, pos.EntryPrice)
		if newStop > pos.StopLossPrice {
			return true, newStop
		}
	}
	if pos.Direction == models.DirectionShort && currentPrice < pos.EntryPrice*0.95 {
		newStop := pos.EntryPrice
		if pos.StopLossPrice > 0 && pos.StopLossPrice < newStop {
			newStop = pos.StopLossPrice
		}
		if newStop < pos.StopLossPrice || pos.StopLossPrice == 0 {
			return true, newStop
		}
	}
	return false, 0
}

// ShouldClosePosition reports whether the current price has crossed the
// position's stop-loss or take-profit level.
func (m *Manager) ShouldClosePosition(pos models.Position, currentPrice float64) bool {
	if pos.Direction == models.DirectionLong {
		if pos.StopLossPrice > 0 && currentPrice <= pos.StopLossPrice {
			return true
		}
		if pos.TakeProfitPrice > 0 && currentPrice >= pos.TakeProfitPrice {
			return true
		}
	} else {
		if pos.StopLossPrice > 0 && currentPrice >= pos.StopLossPrice {
			return true
		}
		if pos.TakeProfitPrice > 0 && currentPrice <= pos.TakeProfitPrice {
			return true
		}
	}
	return false
}
