package agents

import (
	"context"
)

// ExecutionAgent converts the PM+Risk consensus into a final order
// instruction. It may only REJECT (convert to HOLD) based on circuit
// breaker flags — it never upgrades aggressiveness or invents a signal
// (§4.5 resolution rule).
type ExecutionAgent struct{}

func (ExecutionAgent) Name() Name { return NameExecution }

func (ExecutionAgent) Run(ctx context.Context, pm PortfolioOutput, risk RiskOutput, circuitBreakerHalted bool) (any, error) {
	if circuitBreakerHalted {
		return ExecutionOutput{
			Signal:       ActionHold,
			Rejected:     true,
			RejectReason: "circuit_breaker_halted",
		}, nil
	}

	if pm.TentativeSignal == ActionHold || risk.Quantity.IsZero() {
		return ExecutionOutput{Signal: ActionHold}, nil
	}

	return ExecutionOutput{
		Signal:     pm.TentativeSignal,
		Quantity:   risk.Quantity,
		Entry:      pm.Entry,
		StopLoss:   risk.StopLoss,
		TakeProfit: risk.TakeProfit,
	}, nil
}
