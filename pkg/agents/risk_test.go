package agents

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/config"
)

func testRiskCfg() config.RiskConfig {
	return config.RiskConfig{MaxOrderNotional: 10000.0}
}

func TestSizeRiskReturnsZeroOnHoldOrZeroEntry(t *testing.T) {
	pm := PortfolioOutput{TentativeSignal: ActionHold, Entry: decimal.NewFromInt(100)}
	out := sizeRisk(pm, testRiskCfg(), aggressiveStyle)
	if !out.Quantity.IsZero() {
		t.Errorf("expected zero quantity on HOLD, got %s", out.Quantity)
	}

	pm2 := PortfolioOutput{TentativeSignal: ActionBuy, Entry: decimal.Zero}
	out2 := sizeRisk(pm2, testRiskCfg(), aggressiveStyle)
	if !out2.Quantity.IsZero() {
		t.Errorf("expected zero quantity on zero entry, got %s", out2.Quantity)
	}
}

func TestSizeRiskAggressiveSizesLargerThanConservative(t *testing.T) {
	pm := PortfolioOutput{TentativeSignal: ActionBuy, Entry: decimal.NewFromInt(100)}
	agg := sizeRisk(pm, testRiskCfg(), aggressiveStyle)
	cons := sizeRisk(pm, testRiskCfg(), conservativeStyle)

	if !agg.Quantity.GreaterThan(cons.Quantity) {
		t.Errorf("expected aggressive (%s) > conservative (%s)", agg.Quantity, cons.Quantity)
	}
}

func TestSizeRiskBuyPlacesStopBelowAndTargetAboveEntry(t *testing.T) {
	pm := PortfolioOutput{TentativeSignal: ActionBuy, Entry: decimal.NewFromInt(100)}
	out := sizeRisk(pm, testRiskCfg(), neutralStyle)

	if !out.StopLoss.LessThan(pm.Entry) {
		t.Errorf("expected BUY stop loss below entry, got %s", out.StopLoss)
	}
	if !out.TakeProfit.GreaterThan(pm.Entry) {
		t.Errorf("expected BUY take profit above entry, got %s", out.TakeProfit)
	}
}

func TestSizeRiskSellPlacesStopAboveAndTargetBelowEntry(t *testing.T) {
	pm := PortfolioOutput{TentativeSignal: ActionSell, Entry: decimal.NewFromInt(100)}
	out := sizeRisk(pm, testRiskCfg(), neutralStyle)

	if !out.StopLoss.GreaterThan(pm.Entry) {
		t.Errorf("expected SELL stop loss above entry, got %s", out.StopLoss)
	}
	if !out.TakeProfit.LessThan(pm.Entry) {
		t.Errorf("expected SELL take profit below entry, got %s", out.TakeProfit)
	}
}

func TestResolveRiskPicksSmallestQuantity(t *testing.T) {
	aggressive := RiskOutput{Quantity: decimal.NewFromInt(100)}
	neutral := RiskOutput{Quantity: decimal.NewFromInt(70)}
	conservative := RiskOutput{Quantity: decimal.NewFromInt(40)}

	winner := resolveRisk(aggressive, neutral, conservative)
	if !winner.Quantity.Equal(decimal.NewFromInt(40)) {
		t.Errorf("got %s, want the smallest (conservative) quantity 40", winner.Quantity)
	}
}

func TestResolveRiskConservativeWinsTies(t *testing.T) {
	tied := decimal.NewFromInt(50)
	aggressive := RiskOutput{Quantity: tied, Rationale: "aggressive"}
	neutral := RiskOutput{Quantity: tied, Rationale: "neutral"}
	conservative := RiskOutput{Quantity: tied, Rationale: "conservative"}

	winner := resolveRisk(aggressive, neutral, conservative)
	if winner.Rationale != "conservative" {
		t.Errorf("expected conservative to win ties, got %q", winner.Rationale)
	}
}
