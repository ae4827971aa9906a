package agents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/llmrouter"
)

const portfolioSystemPrompt = `You are the portfolio manager synthesizing analyst and researcher views into a single directional call. Reply with strict JSON only.`

// portfolioConfidenceFloor is the minimum spread between bullish_score and
// bearish_score below which the tentative signal is forced to HOLD (§4.5
// resolution rule: "PM confidence < 0.1 → force HOLD").
const portfolioConfidenceFloor = 0.1

// PortfolioManager aggregates Stage A+B into bullish/bearish scores and a
// tentative signal.
type PortfolioManager struct{}

func (PortfolioManager) Name() Name { return NamePortfolioManager }

func (PortfolioManager) Run(ctx context.Context, st CycleState, decisions map[Name]Output, bull, bear ResearchOutput, router *llmrouter.Router) (any, error) {
	var price decimal.Decimal
	if st.LatestTick != nil {
		price = st.LatestTick.LastPrice
	}

	prompt := fmt.Sprintf(
		"Instrument %s last price %s. Bull thesis (confidence %.2f): %s. Bear thesis (confidence %.2f): %s. Analyst context: %s. "+
			"Provide JSON {\"bullish_score\":float 0-1,\"bearish_score\":float 0-1,\"tentative_signal\":\"BUY|SELL|HOLD\",\"scenario_paths\":[string],\"executive_summary\":string}.",
		st.Instrument.Key(), price.String(), bull.Confidence, bull.Thesis, bear.Confidence, bear.Thesis, analystSummary(decisions))

	raw, err := askJSON(ctx, router, portfolioSystemPrompt, prompt)
	bullScore, bearScore := bull.Confidence, bear.Confidence
	signal := Action(ActionHold)
	scenarios := []string{}
	summary := "portfolio manager heuristic fallback"

	if err == nil {
		bullScore = clamp01(extractFloat(raw, "bullish_score"))
		bearScore = clamp01(extractFloat(raw, "bearish_score"))
		if s := extractString(raw, "tentative_signal"); s != "" {
			signal = Action(s)
		}
		summary = extractString(raw, "executive_summary")
		if arr, ok := raw["scenario_paths"].([]any); ok {
			for _, v := range arr {
				if s, ok := v.(string); ok {
					scenarios = append(scenarios, s)
				}
			}
		}
	} else if bullScore > bearScore {
		signal = ActionBuy
	} else if bearScore > bullScore {
		signal = ActionSell
	}

	if absFloat(bullScore-bearScore) < portfolioConfidenceFloor {
		signal = ActionHold
	}

	return PortfolioOutput{
		BullishScore:     bullScore,
		BearishScore:     bearScore,
		TentativeSignal:  signal,
		ScenarioPaths:    scenarios,
		Entry:            price,
		ExecutiveSummary: summary,
	}, nil
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
