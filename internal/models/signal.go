// Package models provides domain models for the trading agent.
package models

import "time"

// Direction represents the direction of a signal or position.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the opposing direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// OrderSide returns the order side that opens a position in this direction.
func (d Direction) OrderSide() OrderSide {
	if d == DirectionLong {
		return OrderSideBuy
	}
	return OrderSideSell
}

// SignalSource identifies where a signal originated.
type SignalSource string

const (
	SourceWebhook    SignalSource = "WEBHOOK"
	SourceAIAnalysis SignalSource = "AI_ANALYSIS"
)

// Signal is the canonical, normalized trading instruction that the
// pipeline consumes, regardless of whether it came from a TradingView
// alert or an AI chart analysis.
type Signal struct {
	Symbol              string
	Direction           Direction
	Confidence          float64 // [0,1]; webhook path defaults to 1.0
	Source              SignalSource
	SignalType          string // indicator-specific tag, e.g. WAVE1, RSI_BULL
	Timeframe           string
	SuggestedEntryPrice float64 // 0 means no explicit entry, use market
	Reasoning           string  // AI path only
	ReceivedAt          time.Time
}

// Valid reports whether the signal satisfies its basic invariants.
func (s *Signal) Valid() bool {
	if s.Symbol == "" {
		return false
	}
	if s.Direction != DirectionLong && s.Direction != DirectionShort {
		return false
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return false
	}
	return true
}
