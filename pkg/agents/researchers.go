package agents

import (
	"context"
	"fmt"

	"github.com/quantaflow/tradecore/pkg/llmrouter"
)

const researcherSystemPrompt = `You are a research analyst building a one-sided investment case. Reply with strict JSON only.`

func analystSummary(decisions map[Name]Output) string {
	summary := ""
	for _, name := range []Name{NameTechnical, NameFundamental, NameSentiment, NameMacro} {
		out, ok := decisions[name]
		if !ok {
			continue
		}
		summary += fmt.Sprintf("%s:%s status=%s; ", name, fmt.Sprint(out.Payload), out.Status)
	}
	return summary
}

// BullResearcher argues the bullish case from Stage A outputs.
type BullResearcher struct{}

func (BullResearcher) Name() Name { return NameBullResearcher }

func (BullResearcher) Run(ctx context.Context, st CycleState, decisions map[Name]Output, router *llmrouter.Router) (any, error) {
	prompt := fmt.Sprintf("Build the bullish case for %s from analyst outputs: %s. Provide JSON {\"thesis\":string,\"confidence\":float 0-1}.",
		st.Instrument.Key(), analystSummary(decisions))

	raw, err := askJSON(ctx, router, researcherSystemPrompt, prompt)
	if err != nil {
		return ResearchOutput{Thesis: "insufficient data for bull case", Confidence: 0}, nil
	}
	return ResearchOutput{
		Thesis:     extractString(raw, "thesis"),
		Confidence: clamp01(extractFloat(raw, "confidence")),
	}, nil
}

// BearResearcher argues the bearish case from Stage A outputs.
type BearResearcher struct{}

func (BearResearcher) Name() Name { return NameBearResearcher }

func (BearResearcher) Run(ctx context.Context, st CycleState, decisions map[Name]Output, router *llmrouter.Router) (any, error) {
	prompt := fmt.Sprintf("Build the bearish case for %s from analyst outputs: %s. Provide JSON {\"thesis\":string,\"confidence\":float 0-1}.",
		st.Instrument.Key(), analystSummary(decisions))

	raw, err := askJSON(ctx, router, researcherSystemPrompt, prompt)
	if err != nil {
		return ResearchOutput{Thesis: "insufficient data for bear case", Confidence: 0}, nil
	}
	return ResearchOutput{
		Thesis:     extractString(raw, "thesis"),
		Confidence: clamp01(extractFloat(raw, "confidence")),
	}, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
