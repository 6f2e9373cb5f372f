package risk

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

func longSignal(symbol string) models.Signal {
	return models.Signal{
		Symbol:    symbol,
		Direction: models.DirectionLong,
		Source:    models.SourceWebhook,
	}
}

func TestReconcileNoPosition(t *testing.T) {
	r := NewReconciler(zerolog.Nop())

	decision := &models.TradeDecision{
		Signal:   longSignal("SUI-PERP"),
		RiskSize: 2.5,
	}

	out := r.Reconcile(decision, nil)
	if out.Action != models.ActionOpen {
		t.Fatalf("expected OPEN, got %s", out.Action)
	}
	if out.FinalSize != 2.5 {
		t.Errorf("expected final size 2.5, got %f", out.FinalSize)
	}
}

func TestReconcileSameDirectionRejects(t *testing.T) {
	r := NewReconciler(zerolog.Nop())

	decision := &models.TradeDecision{
		Signal:   longSignal("SUI-PERP"),
		RiskSize: 2.5,
	}
	existing := &models.Position{
		Symbol:    "SUI-PERP",
		Direction: models.DirectionLong,
		Size:      1.0,
	}

	out := r.Reconcile(decision, existing)
	if !out.Rejected() {
		t.Fatal("expected rejection for same-direction signal")
	}
	if out.RejectionReason != "position already open in same direction" {
		t.Errorf("unexpected reason: %q", out.RejectionReason)
	}
	if out.FinalSize != 0 {
		t.Errorf("rejected decision must carry zero size, got %f", out.FinalSize)
	}
}

func TestReconcileOppositeDirectionFlips(t *testing.T) {
	r := NewReconciler(zerolog.Nop())

	decision := &models.TradeDecision{
		Signal:   longSignal("SUI-PERP"),
		RiskSize: 1.0,
	}
	existing := &models.Position{
		Symbol:    "SUI-PERP",
		Direction: models.DirectionShort,
		Size:      1.0,
	}

	out := r.Reconcile(decision, existing)
	if out.Action != models.ActionFlip {
		t.Fatalf("expected FLIP, got %s", out.Action)
	}
	// Combined order: close 1.0 short plus open 1.0 long.
	if math.Abs(out.FinalSize-2.0) > 1e-9 {
		t.Errorf("expected final size 2.0, got %f", out.FinalSize)
	}
}

func TestReconcileFlipSizeIsSumOfLegs(t *testing.T) {
	r := NewReconciler(zerolog.Nop())

	decision := &models.TradeDecision{
		Signal:   longSignal("BTC-PERP"),
		RiskSize: 0.3,
	}
	existing := &models.Position{
		Symbol:    "BTC-PERP",
		Direction: models.DirectionShort,
		Size:      0.45,
	}

	out := r.Reconcile(decision, existing)
	if math.Abs(out.FinalSize-0.75) > 1e-9 {
		t.Errorf("expected final size 0.75, got %f", out.FinalSize)
	}
	if out.RiskSize != 0.3 {
		t.Errorf("risk size must be preserved, got %f", out.RiskSize)
	}
}

func TestReconcileRejectedDecisionPassesThrough(t *testing.T) {
	r := NewReconciler(zerolog.Nop())

	decision := models.RejectDecision(longSignal("SUI-PERP"), "daily loss limit reached")
	existing := &models.Position{
		Symbol:    "SUI-PERP",
		Direction: models.DirectionShort,
		Size:      1.0,
	}

	out := r.Reconcile(decision, existing)
	if !out.Rejected() {
		t.Fatal("rejected decision must stay rejected")
	}
	if out.RejectionReason != "daily loss limit reached" {
		t.Errorf("rejection reason changed: %q", out.RejectionReason)
	}
}
