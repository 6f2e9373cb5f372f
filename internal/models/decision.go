package models

// TradeAction represents the resolved action for a signal.
type TradeAction string

const (
	ActionOpen   TradeAction = "OPEN"
	ActionFlip   TradeAction = "FLIP"
	ActionReject TradeAction = "REJECT"
)

// TradeDecision is the output of the risk manager and reconciler, and
// the input to the executor.
type TradeDecision struct {
	Signal          Signal
	Action          TradeAction
	FinalSize       float64
	RiskSize        float64 // the risk-computed size before reconciliation
	Leverage        int
	EntryPrice      float64
	StopLossPrice   float64
	TakeProfitPrice float64
	RejectionReason string
}

// Rejected reports whether the decision is a rejection.
func (d *TradeDecision) Rejected() bool {
	return d.Action == ActionReject
}

// RejectDecision builds a rejection decision for a signal.
func RejectDecision(sig Signal, reason string) *TradeDecision {
	return &TradeDecision{
		Signal:          sig,
		Action:          ActionReject,
		RejectionReason: reason,
	}
}
