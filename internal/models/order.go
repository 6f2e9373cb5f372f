package models

import "time"

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "STOP_MARKET"
)

// Order represents an order to submit to the exchange.
type Order struct {
	ID           string
	Symbol       string
	Side         OrderSide
	Type         OrderType
	Size         float64 // base-currency quantity
	Price        float64 // limit price; ignored for market orders
	TriggerPrice float64 // stop orders only
	Leverage     int
	ReduceOnly   bool
	Status       string
	FilledSize   float64
	AveragePrice float64
	PlacedAt     time.Time
}

// OrderResult represents the result of an order submission.
type OrderResult struct {
	OrderID      string
	Status       string
	FilledSize   float64
	AveragePrice float64
	Message      string
}

// Filled reports whether the order completed.
func (r *OrderResult) Filled() bool {
	return r.Status == "FILLED"
}

// PartiallyFilled reports whether the order executed for less than its
// full size.
func (r *OrderResult) PartiallyFilled() bool {
	return r.Status == "PARTIALLY_FILLED"
}

// Position represents an open exchange position.
type Position struct {
	Symbol          string
	Direction       Direction
	Size            float64 // base-currency quantity, always positive
	EntryPrice      float64
	Leverage        int
	StopLossPrice   float64
	TakeProfitPrice float64
	UnrealizedPnL   float64
	OpenedAt        time.Time
}

// PositionState tracks the per-symbol order lifecycle. OPENING, CLOSING
// and FLIPPING are transient; a crash mid-transition is recovered by
// re-querying exchange-side position state.
type PositionState string

const (
	StateNoPosition PositionState = "NO_POSITION"
	StateOpening    PositionState = "OPENING"
	StateOpen       PositionState = "OPEN"
	StateClosing    PositionState = "CLOSING"
	StateFlipping   PositionState = "FLIPPING"
)

// Balance represents account margin balances on the exchange.
type Balance struct {
	AvailableMargin float64
	TotalEquity     float64
	UsedMargin      float64
}
