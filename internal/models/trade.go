package models

import "time"

// TradeStatus represents the lifecycle status of a trade record.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// TradeRecord is an immutable historical entry owned by the performance
// tracker. Exit fields are populated when the trade closes.
type TradeRecord struct {
	TradeID     string
	Symbol      string
	Direction   Direction
	EntryPrice  float64
	ExitPrice   float64
	Size        float64
	Leverage    int
	StopLoss    float64
	TakeProfit  float64
	Status      TradeStatus
	OpenedAt    time.Time
	ClosedAt    *time.Time
	RealizedPnL float64
	Source      SignalSource
	OrderIDs    []string
}

// PerformanceMetrics holds aggregate metrics derived from trade history.
type PerformanceMetrics struct {
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	ProfitFactor  float64
	AvgProfit     float64
	AvgLoss       float64
	AvgPnL        float64
	TotalPnL      float64
	MaxDrawdown   float64
}
