// Package store provides trade history persistence.
package store

import (
	"context"
	"time"

	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// TradeStore defines the interface for trade history persistence.
type TradeStore interface {
	// LogTrade inserts a new open trade record.
	LogTrade(ctx context.Context, trade *models.TradeRecord) error

	// CloseTrade records the exit of an open trade.
	CloseTrade(ctx context.Context, tradeID string, exitPrice, realizedPnL float64, closedAt time.Time) error

	// GetTrade fetches a single trade by ID.
	GetTrade(ctx context.Context, tradeID string) (*models.TradeRecord, error)

	// GetOpenTrade fetches the open trade for a symbol, or nil.
	GetOpenTrade(ctx context.Context, symbol string) (*models.TradeRecord, error)

	// GetTrades fetches trades matching the filter, newest first.
	GetTrades(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error)

	// GetClosedTradesByExit fetches closed trades ordered by exit time
	// ascending, for equity-curve computation.
	GetClosedTradesByExit(ctx context.Context, filter TradeFilter) ([]models.TradeRecord, error)

	// Lifecycle
	Close() error
}

// TradeFilter represents filters for querying trades.
type TradeFilter struct {
	Symbol    string
	Status    models.TradeStatus
	StartDate time.Time
	EndDate   time.Time
	Limit     int
}
