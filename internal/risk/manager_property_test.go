package risk

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"github.com/Angleito/BluefinAIAgentTrader/internal/models"
)

// Property: for any balance, entry and stop, the loss from the computed
// size over the full entry-to-stop distance never exceeds the risk
// fraction of the balance (the notional caps can only shrink it).
func TestProperty_PositionSizeBoundsRisk(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	balanceGen := gen.Float64Range(100, 1000000)
	entryGen := gen.Float64Range(0.01, 100000)
	stopOffsetGen := gen.Float64Range(0.001, 0.5)

	properties.Property("size * stop distance <= risk fraction * balance", prop.ForAll(
		func(balance, entry, stopOffset float64) bool {
			m := newTestManager(balance)
			stop := entry * (1 - stopOffset)

			size, err := m.CalculatePositionSize(entry, stop, 0)
			if err != nil {
				t.Logf("CalculatePositionSize failed: %v", err)
				return false
			}

			maxLoss := size * math.Abs(entry-stop)
			budget := balance * testRiskConfig().MaxRiskPerTrade
			return maxLoss <= budget*(1+1e-9)
		},
		balanceGen, entryGen, stopOffsetGen,
	))

	properties.TestingRun(t)
}

// Property: stop-loss prices are always strictly positive and sit on
// the loss side of the entry for both directions.
func TestProperty_StopLossOnLossSide(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	entryGen := gen.Float64Range(0.01, 100000)
	atrGen := gen.Float64Range(0, 1000)
	directionGen := gen.OneConstOf(models.DirectionLong, models.DirectionShort)

	properties.Property("stop is positive and directionally correct", prop.ForAll(
		func(entry, atr float64, direction models.Direction) bool {
			m := newTestManager(10000)
			stop := m.CalculateStopLoss(entry, direction, atr)

			if stop <= 0 {
				t.Logf("non-positive stop %f for entry %f atr %f", stop, entry, atr)
				return false
			}
			if direction == models.DirectionLong && stop >= entry {
				t.Logf("long stop %f not below entry %f", stop, entry)
				return false
			}
			if direction == models.DirectionShort && stop <= entry {
				t.Logf("short stop %f not above entry %f", stop, entry)
				return false
			}
			return true
		},
		entryGen, atrGen, directionGen,
	))

	properties.TestingRun(t)
}

// Property: the take-profit price always sits on the profit side of the
// entry, at a reward distance proportional to the stop distance.
func TestProperty_TakeProfitOnProfitSide(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	entryGen := gen.Float64Range(0.01, 100000)
	stopOffsetGen := gen.Float64Range(0.001, 0.5)
	ratioGen := gen.Float64Range(0.5, 10)
	directionGen := gen.OneConstOf(models.DirectionLong, models.DirectionShort)

	properties.Property("take profit is directionally correct and proportional", prop.ForAll(
		func(entry, stopOffset, ratio float64, direction models.Direction) bool {
			m := newTestManager(10000)

			var stop float64
			if direction == models.DirectionLong {
				stop = entry * (1 - stopOffset)
			} else {
				stop = entry * (1 + stopOffset)
			}

			tp := m.CalculateTakeProfit(entry, stop, direction, ratio)

			if direction == models.DirectionLong && tp <= entry {
				t.Logf("long take profit %f not above entry %f", tp, entry)
				return false
			}
			if direction == models.DirectionShort && tp >= entry {
				t.Logf("short take profit %f not below entry %f", tp, entry)
				return false
			}

			reward := math.Abs(tp - entry)
			expected := math.Abs(entry-stop) * ratio
			return math.Abs(reward-expected) <= expected*1e-9+1e-12
		},
		entryGen, stopOffsetGen, ratioGen, directionGen,
	))

	properties.TestingRun(t)
}

// Property: a flip decision's submitted size always equals the existing
// opposing size plus the risk size, and the action is FLIP.
func TestProperty_FlipSizeCombinesBothLegs(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	riskSizeGen := gen.Float64Range(0.001, 1000)
	existingSizeGen := gen.Float64Range(0.001, 1000)

	properties.Property("flip size = existing size + risk size", prop.ForAll(
		func(riskSize, existingSize float64) bool {
			r := NewReconciler(zerolog.Nop())

			decision := &models.TradeDecision{
				Signal: models.Signal{
					Symbol:    "SUI-PERP",
					Direction: models.DirectionLong,
				},
				RiskSize: riskSize,
			}
			existing := &models.Position{
				Symbol:    "SUI-PERP",
				Direction: models.DirectionShort,
				Size:      existingSize,
			}

			out := r.Reconcile(decision, existing)
			if out.Action != models.ActionFlip {
				return false
			}
			return math.Abs(out.FinalSize-(existingSize+riskSize)) <= 1e-9*(existingSize+riskSize)
		},
		riskSizeGen, existingSizeGen,
	))

	properties.TestingRun(t)
}
