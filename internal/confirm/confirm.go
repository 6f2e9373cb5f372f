// Package confirm provides AI confirmation of trading signals before
// execution.
package confirm

import (
	"context"

	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// Verdict is the outcome of a confirmation request.
type Verdict struct {
	Approved   bool    `json:"approved"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Model      string  `json:"-"`
}

// MarketContext carries the market state handed to the model alongside
// the signal.
type MarketContext struct {
	MarkPrice     float64
	OpenPositions int
	DailyPnL      float64
}

// Confirmer decides whether a normalized signal should proceed to the
// risk manager.
type Confirmer interface {
	Confirm(ctx context.Context, signal models.Signal, market MarketContext) (*Verdict, error)
}

// PassthroughConfirmer approves every signal. Used when AI confirmation
// is disabled in config.
type PassthroughConfirmer struct{}

// Confirm approves the signal unconditionally.
func (PassthroughConfirmer) Confirm(ctx context.Context, signal models.Signal, market MarketContext) (*Verdict, error) {
	return &Verdict{
		Approved:   true,
		Confidence: signal.Confidence,
		Reasoning:  "confirmation disabled",
		Model:      "passthrough",
	}, nil
}

var _ Confirmer = PassthroughConfirmer{}
