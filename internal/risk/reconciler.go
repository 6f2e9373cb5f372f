package risk

import (
	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// Reconciler resolves a proposed trade against the existing position for
// the same symbol, implementing directional flips. The algorithm is
// deterministic: no position means OPEN, a same-direction position is
// rejected (no pyramiding), and an opposite-direction position is
// flipped with a combined order that closes the old exposure and opens
// the new one.
type Reconciler struct {
	logger zerolog.Logger
}

// NewReconciler creates a new position reconciler.
func NewReconciler(logger zerolog.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile adjusts a risk-approved decision for the existing position.
// existing is nil when no position is open for the symbol. The input
// decision's RiskSize must hold the risk-computed quantity.
//
// For a flip, the submitted size is the existing position's size plus
// the risk size: the first portion closes the opposing position and the
// remainder opens the new one at the intended risk-sized exposure. The
// existing size here is a best-effort estimate; the executor re-checks
// exchange-side state immediately before submission.
func (r *Reconciler) Reconcile(decision *models.TradeDecision, existing *models.Position) *models.TradeDecision {
	if decision.Rejected() {
		return decision
	}

	if existing == nil {
		decision.Action = models.ActionOpen
		decision.FinalSize = decision.RiskSize
		return decision
	}

	if existing.Direction == decision.Signal.Direction {
		r.logger.Info().
			Str("symbol", decision.Signal.Symbol).
			Str("direction", string(existing.Direction)).
			Msg("Signal matches open position direction, not pyramiding")
		decision.Action = models.ActionReject
		decision.FinalSize = 0
		decision.RejectionReason = "position already open in same direction"
		return decision
	}

	decision.Action = models.ActionFlip
	decision.FinalSize = existing.Size + decision.RiskSize
	r.logger.Info().
		Str("symbol", decision.Signal.Symbol).
		Float64("existing_size", existing.Size).
		Float64("risk_size", decision.RiskSize).
		Float64("final_size", decision.FinalSize).
		Msg("Doubling order size to flip opposing position")
	return decision
}
