package agents

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/config"
)

// riskStyle parameterizes how aggressively a risk agent sizes a position
// and sets SL/TP distance relative to entry. Deterministic and
// config-driven rather than LLM-driven, the way the teacher's
// policy.PolicyEngine derives sizing from RiskLimits rather than an
// LLM call.
type riskStyle struct {
	sizeFraction decimal.Decimal // fraction of max position notional to use
	slPct        decimal.Decimal // stop distance as a fraction of entry
	tpPct        decimal.Decimal // target distance as a fraction of entry
}

var (
	aggressiveStyle   = riskStyle{sizeFraction: decimal.NewFromFloat(1.0), slPct: decimal.NewFromFloat(0.02), tpPct: decimal.NewFromFloat(0.06)}
	conservativeStyle = riskStyle{sizeFraction: decimal.NewFromFloat(0.4), slPct: decimal.NewFromFloat(0.01), tpPct: decimal.NewFromFloat(0.02)}
	neutralStyle      = riskStyle{sizeFraction: decimal.NewFromFloat(0.7), slPct: decimal.NewFromFloat(0.015), tpPct: decimal.NewFromFloat(0.035)}
)

func sizeRisk(pm PortfolioOutput, cfg config.RiskConfig, style riskStyle) RiskOutput {
	if pm.TentativeSignal == ActionHold || pm.Entry.IsZero() {
		return RiskOutput{Quantity: decimal.Zero, Rationale: "no directional signal"}
	}

	notional := decimal.NewFromFloat(cfg.MaxOrderNotional).Mul(style.sizeFraction)
	quantity := notional.Div(pm.Entry)

	var stopLoss, takeProfit decimal.Decimal
	if pm.TentativeSignal == ActionBuy {
		stopLoss = pm.Entry.Mul(decimal.NewFromInt(1).Sub(style.slPct))
		takeProfit = pm.Entry.Mul(decimal.NewFromInt(1).Add(style.tpPct))
	} else {
		stopLoss = pm.Entry.Mul(decimal.NewFromInt(1).Add(style.slPct))
		takeProfit = pm.Entry.Mul(decimal.NewFromInt(1).Sub(style.tpPct))
	}

	return RiskOutput{
		Quantity:   quantity,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Rationale:  "sized from configured notional and style-specific SL/TP distance",
	}
}

// RiskAggressive sizes to full configured notional with wide SL/TP.
type RiskAggressive struct{ Config config.RiskConfig }

func (RiskAggressive) Name() Name { return NameRiskAggressive }

func (a RiskAggressive) Run(ctx context.Context, pm PortfolioOutput) (any, error) {
	return sizeRisk(pm, a.Config, aggressiveStyle), nil
}

// RiskConservative sizes to a reduced notional with tight SL/TP; wins ties
// per §4.5's resolution rule.
type RiskConservative struct{ Config config.RiskConfig }

func (RiskConservative) Name() Name { return NameRiskConservative }

func (a RiskConservative) Run(ctx context.Context, pm PortfolioOutput) (any, error) {
	return sizeRisk(pm, a.Config, conservativeStyle), nil
}

// RiskNeutral sizes to a middle-ground notional.
type RiskNeutral struct{ Config config.RiskConfig }

func (RiskNeutral) Name() Name { return NameRiskNeutral }

func (a RiskNeutral) Run(ctx context.Context, pm PortfolioOutput) (any, error) {
	return sizeRisk(pm, a.Config, neutralStyle), nil
}

// resolveRisk applies the "downgrade only, conservative wins ties" rule:
// the final sizing is the smallest quantity among the three risk outputs,
// with SL/TP taken from whichever output produced that quantity
// (Conservative first on ties, since it is the starting candidate below
// and only a strictly smaller quantity replaces it).
func resolveRisk(aggressive, neutral, conservative RiskOutput) RiskOutput {
	winner := conservative
	if neutral.Quantity.LessThan(winner.Quantity) {
		winner = neutral
	}
	if aggressive.Quantity.LessThan(winner.Quantity) {
		winner = aggressive
	}
	return winner
}
