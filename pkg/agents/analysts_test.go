package agents

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/market"
)

func TestTechnicalAgentHeuristicTrendWithoutLLM(t *testing.T) {
	st := CycleState{
		Instrument: market.Instrument{Symbol: "NIFTY"},
		Bars5m: []market.OHLCBar{
			{StartAt: time.Now().Add(-10 * time.Minute), Open: decimal.NewFromInt(100), Close: decimal.NewFromInt(100)},
			{StartAt: time.Now(), Open: decimal.NewFromInt(100), Close: decimal.NewFromInt(110)},
		},
	}

	out, err := TechnicalAgent{}.Run(context.Background(), st, noProviderRouter())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	technical := out.(TechnicalOutput)
	if technical.Trend != "up" {
		t.Errorf("Trend = %q, want up (close %s > first open %s)", technical.Trend, st.Bars5m[1].Close, st.Bars5m[0].Open)
	}
}

func TestTechnicalAgentFallsBackToSidewaysWithoutBars(t *testing.T) {
	st := CycleState{Instrument: market.Instrument{Symbol: "NIFTY"}}
	out, _ := TechnicalAgent{}.Run(context.Background(), st, noProviderRouter())
	if out.(TechnicalOutput).Trend != "sideways" {
		t.Errorf("expected sideways with no bar history, got %s", out.(TechnicalOutput).Trend)
	}
}

func TestResearchersFallBackToZeroConfidenceWithoutLLM(t *testing.T) {
	st := CycleState{Instrument: market.Instrument{Symbol: "NIFTY"}}
	decisions := map[Name]Output{}

	bullOut, _ := BullResearcher{}.Run(context.Background(), st, decisions, noProviderRouter())
	bull := bullOut.(ResearchOutput)
	if bull.Confidence != 0 {
		t.Errorf("expected zero confidence fallback, got %v", bull.Confidence)
	}

	bearOut, _ := BearResearcher{}.Run(context.Background(), st, decisions, noProviderRouter())
	bear := bearOut.(ResearchOutput)
	if bear.Confidence != 0 {
		t.Errorf("expected zero confidence fallback, got %v", bear.Confidence)
	}
}

func TestClamp01BoundsToUnitInterval(t *testing.T) {
	if clamp01(-0.5) != 0 {
		t.Error("expected negative values clamped to 0")
	}
	if clamp01(1.5) != 1 {
		t.Error("expected values above 1 clamped to 1")
	}
	if clamp01(0.5) != 0.5 {
		t.Error("expected values within range to pass through unchanged")
	}
}
