package agents

import (
	"context"
	"testing"

	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/llmrouter"
	"github.com/quantaflow/tradecore/pkg/market"
)

// noProviderRouter builds a Router with no configured providers, so Call
// always fails fast with ErrAllProvidersUnavailable — exercising the
// portfolio manager's heuristic fallback path without any network access.
func noProviderRouter() *llmrouter.Router {
	return llmrouter.New(nil, config.SelectPriority, nil)
}

func TestPortfolioManagerFallsBackToHeuristicWhenLLMUnavailable(t *testing.T) {
	pmAgent := PortfolioManager{}
	st := CycleState{Instrument: market.Instrument{Symbol: "NIFTY"}}
	decisions := map[Name]Output{}

	bull := ResearchOutput{Thesis: "bullish case", Confidence: 0.8}
	bear := ResearchOutput{Thesis: "bearish case", Confidence: 0.2}

	out, err := pmAgent.Run(context.Background(), st, decisions, bull, bear, noProviderRouter())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	pm := out.(PortfolioOutput)
	if pm.TentativeSignal != ActionBuy {
		t.Errorf("expected heuristic fallback to favor the higher-confidence bull thesis, got %s", pm.TentativeSignal)
	}
}

func TestPortfolioManagerForcesHoldBelowConfidenceFloor(t *testing.T) {
	pmAgent := PortfolioManager{}
	st := CycleState{Instrument: market.Instrument{Symbol: "NIFTY"}}
	decisions := map[Name]Output{}

	// Confidence spread of 0.05 is below the 0.1 floor.
	bull := ResearchOutput{Thesis: "bullish case", Confidence: 0.55}
	bear := ResearchOutput{Thesis: "bearish case", Confidence: 0.50}

	out, err := pmAgent.Run(context.Background(), st, decisions, bull, bear, noProviderRouter())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	pm := out.(PortfolioOutput)
	if pm.TentativeSignal != ActionHold {
		t.Errorf("expected forced HOLD below confidence floor, got %s", pm.TentativeSignal)
	}
}
