package confirm

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// ChainConfirmer runs a primary model with an optional fallback. When
// concordance is required both models must approve; otherwise the
// fallback is consulted only when the primary errors out.
type ChainConfirmer struct {
	primary     Confirmer
	fallback    Confirmer
	concordance bool
	logger      zerolog.Logger
}

// NewChainConfirmer creates a confirmer chain. fallback may be nil.
func NewChainConfirmer(primary, fallback Confirmer, concordance bool, logger zerolog.Logger) *ChainConfirmer {
	return &ChainConfirmer{
		primary:     primary,
		fallback:    fallback,
		concordance: concordance,
		logger:      logger,
	}
}

// Confirm runs the chain. A hard error is returned only when every
// available model fails; a reachable model's rejection is a verdict,
// not an error.
func (c *ChainConfirmer) Confirm(ctx context.Context, signal models.Signal, market MarketContext) (*Verdict, error) {
	primaryVerdict, primaryErr := c.primary.Confirm(ctx, signal, market)
	if primaryErr != nil {
		c.logger.Warn().
			Err(primaryErr).
			Str("symbol", signal.Symbol).
			Msg("Primary confirmation model failed")

		if c.fallback == nil {
			return nil, primaryErr
		}
		return c.fallback.Confirm(ctx, signal, market)
	}

	if !c.concordance || c.fallback == nil {
		return primaryVerdict, nil
	}

	fallbackVerdict, fallbackErr := c.fallback.Confirm(ctx, signal, market)
	if fallbackErr != nil {
		c.logger.Warn().
			Err(fallbackErr).
			Str("symbol", signal.Symbol).
			Msg("Fallback confirmation model failed, using primary verdict")
		return primaryVerdict, nil
	}

	if !fallbackVerdict.Approved {
		return &Verdict{
			Approved:   false,
			Confidence: fallbackVerdict.Confidence,
			Reasoning:  "concordance check failed: " + fallbackVerdict.Reasoning,
			Model:      fallbackVerdict.Model,
		}, nil
	}

	return primaryVerdict, nil
}

var _ Confirmer = (*ChainConfirmer)(nil)
