// Package exchange provides the exchange client interface and implementations.
package exchange

import (
	"context"

	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// Exchange defines the capability interface for exchange operations.
// Two variants exist: SimExchange for mock trading and BluefinClient
// for live trading, selected at construction.
type Exchange interface {
	// Account
	GetBalance(ctx context.Context) (*models.Balance, error)

	// Positions. GetPosition returns (nil, nil) when no position is
	// open for the symbol; exchange-side state is authoritative.
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetPosition(ctx context.Context, symbol string) (*models.Position, error)

	// Market data
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)

	// Orders
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PlaceOrder(ctx context.Context, order *models.Order) (*models.OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// IsSimulated reports whether this is the mock-trading variant.
	IsSimulated() bool
}

// Ticker defines the interface for real-time mark-price streaming.
type Ticker interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Subscribe(symbols []string) error
	OnTick(handler func(Tick))
	OnError(handler func(error))
}

// Tick represents a real-time mark-price update.
type Tick struct {
	Symbol    string  `json:"symbol"`
	MarkPrice float64 `json:"markPrice"`
	Timestamp int64   `json:"timestamp"`
}
