package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// SimExchange implements the Exchange interface for mock trading.
// Orders fill immediately at the cached mark price and positions net
// against each other, so a combined flip order closes the opposing
// exposure and opens the remainder in the new direction.
type SimExchange struct {
	mu sync.RWMutex

	balance   models.Balance
	positions map[string]*simPosition
	orders    map[string]*models.Order
	prices    map[string]float64
	leverage  map[string]int

	// realizedPnL accumulates P&L from closed exposure.
	realizedPnL float64
}

// simPosition tracks a signed position quantity: long positive, short
// negative.
type simPosition struct {
	qty        float64
	entryPrice float64
	leverage   int
	openedAt   time.Time
}

// SimConfig holds configuration for the simulated exchange.
type SimConfig struct {
	InitialBalance float64
}

// NewSimExchange creates a new simulated exchange client.
func NewSimExchange(cfg SimConfig) *SimExchange {
	balance := cfg.InitialBalance
	if balance == 0 {
		balance = 10000
	}

	return &SimExchange{
		balance: models.Balance{
			AvailableMargin: balance,
			TotalEquity:     balance,
		},
		positions: make(map[string]*simPosition),
		orders:    make(map[string]*models.Order),
		prices:    make(map[string]float64),
		leverage:  make(map[string]int),
	}
}

// GetBalance returns the simulated balance.
func (s *SimExchange) GetBalance(ctx context.Context) (*models.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	equity := s.balance.AvailableMargin
	for sym, pos := range s.positions {
		if price, ok := s.prices[sym]; ok {
			equity += (price - pos.entryPrice) * pos.qty
		}
	}
	return &models.Balance{
		AvailableMargin: s.balance.AvailableMargin,
		TotalEquity:     equity,
	}, nil
}

// GetPositions returns all simulated open positions.
func (s *SimExchange) GetPositions(ctx context.Context) ([]models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := make([]models.Position, 0, len(s.positions))
	for sym, pos := range s.positions {
		positions = append(positions, s.toModel(sym, pos))
	}
	return positions, nil
}

// GetPosition returns the simulated position for a symbol, or nil.
func (s *SimExchange) GetPosition(ctx context.Context, symbol string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[symbol]
	if !ok {
		return nil, nil
	}
	m := s.toModel(symbol, pos)
	return &m, nil
}

func (s *SimExchange) toModel(symbol string, pos *simPosition) models.Position {
	direction := models.DirectionLong
	if pos.qty < 0 {
		direction = models.DirectionShort
	}
	var unrealized float64
	if price, ok := s.prices[symbol]; ok {
		unrealized = (price - pos.entryPrice) * pos.qty
	}
	return models.Position{
		Symbol:        symbol,
		Direction:     direction,
		Size:          math.Abs(pos.qty),
		EntryPrice:    pos.entryPrice,
		Leverage:      pos.leverage,
		UnrealizedPnL: unrealized,
		OpenedAt:      pos.openedAt,
	}
}

// GetMarkPrice returns the cached mark price for a symbol.
func (s *SimExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	price, ok := s.prices[symbol]
	if !ok {
		return 0, errors.NewExchangeError("NO_PRICE", fmt.Sprintf("no mark price for %s", symbol), nil)
	}
	return price, nil
}

// SetLeverage records the leverage for a symbol.
func (s *SimExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		return errors.NewExchangeError("BAD_LEVERAGE", fmt.Sprintf("leverage %d below 1", leverage), nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leverage[symbol] = leverage
	return nil
}

// PlaceOrder fills an order immediately at the mark price (or the limit
// price for limit orders). Stop orders rest untriggered and report
// status NEW.
func (s *SimExchange) PlaceOrder(ctx context.Context, order *models.Order) (*models.OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID := uuid.NewString()

	price := s.prices[order.Symbol]
	if order.Type == models.OrderTypeLimit && order.Price > 0 {
		price = order.Price
	}

	record := *order
	record.ID = orderID
	record.PlacedAt = time.Now()

	// Protective stop orders rest on the book in the simulation.
	if order.Type == models.OrderTypeStopLoss {
		record.Status = "NEW"
		s.orders[orderID] = &record
		return &models.OrderResult{OrderID: orderID, Status: "NEW", Message: "stop order accepted"}, nil
	}

	if price <= 0 {
		return nil, errors.NewExchangeError("NO_PRICE", fmt.Sprintf("no mark price for %s", order.Symbol), nil)
	}
	if order.Size <= 0 {
		return nil, errors.NewExchangeError("BAD_SIZE", "order size must be positive", nil)
	}

	// Reduce-only limit orders (take profits) also rest on the book.
	if order.ReduceOnly && order.Type == models.OrderTypeLimit {
		record.Status = "NEW"
		s.orders[orderID] = &record
		return &models.OrderResult{OrderID: orderID, Status: "NEW", Message: "reduce-only order accepted"}, nil
	}

	s.applyFill(order.Symbol, order.Side, order.Size, price, order.Leverage)

	record.Status = "FILLED"
	record.FilledSize = order.Size
	record.AveragePrice = price
	s.orders[orderID] = &record

	return &models.OrderResult{
		OrderID:      orderID,
		Status:       "FILLED",
		FilledSize:   order.Size,
		AveragePrice: price,
	}, nil
}

// applyFill nets a fill against the existing position. Callers must
// hold s.mu.
func (s *SimExchange) applyFill(symbol string, side models.OrderSide, size, price float64, leverage int) {
	delta := size
	if side == models.OrderSideSell {
		delta = -size
	}

	pos, exists := s.positions[symbol]
	if !exists {
		s.positions[symbol] = &simPosition{
			qty:        delta,
			entryPrice: price,
			leverage:   leverage,
			openedAt:   time.Now(),
		}
		return
	}

	newQty := pos.qty + delta
	switch {
	case pos.qty > 0 == (delta > 0):
		// Same direction: average in.
		pos.entryPrice = (pos.entryPrice*math.Abs(pos.qty) + price*math.Abs(delta)) / math.Abs(newQty)
		pos.qty = newQty
	case newQty == 0:
		// Full close.
		s.realizedPnL += (price - pos.entryPrice) * pos.qty
		s.balance.AvailableMargin += (price - pos.entryPrice) * pos.qty
		delete(s.positions, symbol)
	case (pos.qty > 0) != (newQty > 0):
		// Flip: close the old exposure, open the remainder fresh.
		s.realizedPnL += (price - pos.entryPrice) * pos.qty
		s.balance.AvailableMargin += (price - pos.entryPrice) * pos.qty
		pos.qty = newQty
		pos.entryPrice = price
		pos.openedAt = time.Now()
		if leverage > 0 {
			pos.leverage = leverage
		}
	default:
		// Partial reduce.
		closed := -delta
		s.realizedPnL += (price - pos.entryPrice) * closed
		s.balance.AvailableMargin += (price - pos.entryPrice) * closed
		pos.qty = newQty
	}
}

// CancelOrder cancels a resting simulated order.
func (s *SimExchange) CancelOrder(ctx context.Context, symbol, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return errors.NewExchangeError("NOT_FOUND", fmt.Sprintf("order %s not found", orderID), nil)
	}
	if order.Status != "NEW" {
		return errors.NewExchangeError("BAD_STATUS", fmt.Sprintf("cannot cancel order with status %s", order.Status), nil)
	}
	order.Status = "CANCELLED"
	return nil
}

// OrderStatus returns the status of a simulated order, or "" when the
// order is unknown.
func (s *SimExchange) OrderStatus(orderID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return ""
	}
	return order.Status
}

// UpdatePrice updates the cached mark price for a symbol.
func (s *SimExchange) UpdatePrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// ProcessTick feeds a mark-price update into the simulation.
func (s *SimExchange) ProcessTick(tick Tick) {
	s.UpdatePrice(tick.Symbol, tick.MarkPrice)
}

// RealizedPnL returns total realized P&L across all closed exposure.
func (s *SimExchange) RealizedPnL() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.realizedPnL
}

// IsSimulated returns true for the mock-trading variant.
func (s *SimExchange) IsSimulated() bool {
	return true
}

var _ Exchange = (*SimExchange)(nil)
