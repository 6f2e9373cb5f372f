// Package signal normalizes heterogeneous inbound payloads into canonical signals.
package signal

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Angleito/BluefinAIAgentTrader/internal/errors"
	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// WebhookAlert is the TradingView alert payload shape.
type WebhookAlert struct {
	Passphrase string  `json:"passphrase,omitempty"`
	Indicator  string  `json:"indicator" validate:"required"`
	Symbol     string  `json:"symbol" validate:"required_without=Ticker"`
	Ticker     string  `json:"ticker,omitempty"`
	Timeframe  string  `json:"timeframe" validate:"required"`
	Action     string  `json:"action" validate:"required,oneof=BUY SELL buy sell"`
	SignalType string  `json:"signal_type,omitempty"`
	EntryPrice float64 `json:"entry_price,omitempty" validate:"omitempty,gt=0"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// AIAnalysis is the structured decision produced by the chart-analysis module.
type AIAnalysis struct {
	Symbol     string  `json:"symbol" validate:"required"`
	Action     string  `json:"action" validate:"required,oneof=BUY SELL buy sell"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Reasoning  string  `json:"reasoning,omitempty"`
	EntryPrice float64 `json:"entry_price,omitempty" validate:"omitempty,gt=0"`
	Timeframe  string  `json:"timeframe,omitempty"`
}

// Normalizer converts inbound payloads into canonical signals.
type Normalizer struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewNormalizer creates a new signal normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		validate: validator.New(),
		now:      time.Now,
	}
}

// FromWebhook normalizes a TradingView alert into a Signal.
// Webhook signals carry no model confidence, so it defaults to 1.0.
func (n *Normalizer) FromWebhook(alert *WebhookAlert) (*models.Signal, error) {
	if err := n.validate.Struct(alert); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidSignal, "invalid webhook alert: %v", err)
	}

	symbol := alert.Symbol
	if symbol == "" {
		symbol = alert.Ticker
	}

	direction, err := parseDirection(alert.Action)
	if err != nil {
		return nil, err
	}

	return &models.Signal{
		Symbol:              normalizeSymbol(symbol),
		Direction:           direction,
		Confidence:          1.0,
		Source:              models.SourceWebhook,
		SignalType:          alert.SignalType,
		Timeframe:           alert.Timeframe,
		SuggestedEntryPrice: alert.EntryPrice,
		ReceivedAt:          n.now(),
	}, nil
}

// FromAIAnalysis normalizes an AI chart-analysis result into a Signal.
func (n *Normalizer) FromAIAnalysis(analysis *AIAnalysis) (*models.Signal, error) {
	if err := n.validate.Struct(analysis); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidSignal, "invalid AI analysis: %v", err)
	}

	direction, err := parseDirection(analysis.Action)
	if err != nil {
		return nil, err
	}

	return &models.Signal{
		Symbol:              normalizeSymbol(analysis.Symbol),
		Direction:           direction,
		Confidence:          analysis.Confidence,
		Source:              models.SourceAIAnalysis,
		Timeframe:           analysis.Timeframe,
		SuggestedEntryPrice: analysis.EntryPrice,
		Reasoning:           analysis.Reasoning,
		ReceivedAt:          n.now(),
	}, nil
}

func parseDirection(action string) (models.Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "BUY", "LONG":
		return models.DirectionLong, nil
	case "SELL", "SHORT":
		return models.DirectionShort, nil
	default:
		return "", errors.NewValidationError("action", action, "must be BUY or SELL")
	}
}

// normalizeSymbol maps chart tickers like "SUI/USD" onto exchange
// instrument identifiers like "SUI-PERP".
func normalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, "-PERP") {
		return s
	}
	if i := strings.IndexAny(s, "/-"); i > 0 {
		return s[:i] + "-PERP"
	}
	// Chart feeds often use e.g. SUIUSDT for the perp instrument.
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote) + "-PERP"
		}
	}
	return s
}
