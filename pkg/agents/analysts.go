package agents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/llmrouter"
)

const analystSystemPrompt = `You are a disciplined market analyst. Reply with strict JSON only, no prose outside the object.`

// TechnicalAgent derives trend/momentum/support/resistance from recent bars.
type TechnicalAgent struct{}

func (TechnicalAgent) Name() Name { return NameTechnical }

func (TechnicalAgent) Run(ctx context.Context, st CycleState, router *llmrouter.Router) (any, error) {
	if len(st.Bars5m) == 0 {
		return TechnicalOutput{Trend: "sideways", Narrative: "insufficient bar history"}, nil
	}
	last := st.Bars5m[len(st.Bars5m)-1]
	first := st.Bars5m[0]
	trend := "sideways"
	if last.Close.GreaterThan(first.Open) {
		trend = "up"
	} else if last.Close.LessThan(first.Open) {
		trend = "down"
	}

	prompt := fmt.Sprintf("Instrument %s, %d recent 5m bars, latest close %s, trend heuristic %q. Provide JSON {\"trend\":\"up|down|sideways\",\"momentum\":float,\"support\":number,\"resistance\":number,\"narrative\":string}.",
		st.Instrument.Key(), len(st.Bars5m), last.Close.String(), trend)

	raw, err := askJSON(ctx, router, analystSystemPrompt, prompt)
	if err != nil {
		return TechnicalOutput{Trend: trend, Narrative: "heuristic fallback: " + err.Error()}, nil
	}

	return TechnicalOutput{
		Trend:      orDefault(extractString(raw, "trend"), trend),
		Momentum:   extractFloat(raw, "momentum"),
		Support:    decimal.NewFromFloat(extractFloat(raw, "support")),
		Resistance: decimal.NewFromFloat(extractFloat(raw, "resistance")),
		Narrative:  extractString(raw, "narrative"),
	}, nil
}

// FundamentalAgent estimates fair value from the latest price context.
type FundamentalAgent struct{}

func (FundamentalAgent) Name() Name { return NameFundamental }

func (FundamentalAgent) Run(ctx context.Context, st CycleState, router *llmrouter.Router) (any, error) {
	var price decimal.Decimal
	if st.LatestTick != nil {
		price = st.LatestTick.LastPrice
	}
	prompt := fmt.Sprintf("Instrument %s last price %s. Provide JSON {\"fair_value\":number,\"narrative\":string}.",
		st.Instrument.Key(), price.String())

	raw, err := askJSON(ctx, router, analystSystemPrompt, prompt)
	if err != nil {
		return FundamentalOutput{FairValue: price, Narrative: "heuristic fallback: " + err.Error()}, nil
	}
	return FundamentalOutput{
		FairValue: decimal.NewFromFloat(extractFloat(raw, "fair_value")),
		Narrative: extractString(raw, "narrative"),
	}, nil
}

// SentimentAgent scores qualitative sentiment in [-1, 1].
type SentimentAgent struct{}

func (SentimentAgent) Name() Name { return NameSentiment }

func (SentimentAgent) Run(ctx context.Context, st CycleState, router *llmrouter.Router) (any, error) {
	prompt := fmt.Sprintf("Instrument %s. Provide JSON {\"score\":float between -1 and 1,\"narrative\":string} summarizing current sentiment.", st.Instrument.Key())

	raw, err := askJSON(ctx, router, analystSystemPrompt, prompt)
	if err != nil {
		return SentimentOutput{Score: 0, Narrative: "heuristic fallback: " + err.Error()}, nil
	}
	return SentimentOutput{
		Score:     extractFloat(raw, "score"),
		Narrative: extractString(raw, "narrative"),
	}, nil
}

// MacroAgent scores risk-on/risk-off macro conditions.
type MacroAgent struct{}

func (MacroAgent) Name() Name { return NameMacro }

func (MacroAgent) Run(ctx context.Context, st CycleState, router *llmrouter.Router) (any, error) {
	prompt := fmt.Sprintf("Instrument %s. Provide JSON {\"risk_on_off\":\"risk_on|risk_off|neutral\",\"score\":float,\"narrative\":string}.", st.Instrument.Key())

	raw, err := askJSON(ctx, router, analystSystemPrompt, prompt)
	if err != nil {
		return MacroOutput{RiskOnOff: "neutral", Narrative: "heuristic fallback: " + err.Error()}, nil
	}
	return MacroOutput{
		RiskOnOff: orDefault(extractString(raw, "risk_on_off"), "neutral"),
		Score:     extractFloat(raw, "score"),
		Narrative: extractString(raw, "narrative"),
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
