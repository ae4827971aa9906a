// Package agents implements the Agent Graph (C5): a fixed pipeline of
// analytical, research, portfolio, risk, execution, and learning agents
// over a shared CycleState, adapted from the teacher's
// pkg/trader/orchestrator Stage model and pkg/trader/agents forecasting
// types, generalized per SPEC_FULL.md §4.5.
package agents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/market"
)

// Name identifies one concrete agent in the graph.
type Name string

const (
	NameTechnical        Name = "technical"
	NameFundamental      Name = "fundamental"
	NameSentiment        Name = "sentiment"
	NameMacro            Name = "macro"
	NameBullResearcher   Name = "bull_researcher"
	NameBearResearcher   Name = "bear_researcher"
	NamePortfolioManager Name = "portfolio_manager"
	NameRiskAggressive   Name = "risk_aggressive"
	NameRiskConservative Name = "risk_conservative"
	NameRiskNeutral      Name = "risk_neutral"
	NameExecution        Name = "execution"
	NameLearning         Name = "learning"
)

// Status is the outcome of one agent's run within a cycle.
type Status string

const (
	StatusOK        Status = "ok"
	StatusTimedOut  Status = "timed_out"
	StatusError     Status = "error"
)

// Output is the tagged sum type every agent produces — never a
// loosely-keyed map (§4.5). Payload holds the agent-specific struct.
type Output struct {
	AgentName Name   `json:"agent_name"`
	Status    Status `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Action is the final trade decision an Agent Graph run resolves to.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// CycleState is the read-only snapshot every agent receives. It is built
// once per cycle by the Decision Scheduler and never mutated by agents.
type CycleState struct {
	CycleID    int64
	Instrument market.Instrument
	At         time.Time

	LatestTick *market.Tick
	Bars1m     []market.OHLCBar
	Bars5m     []market.OHLCBar
	Bars15m    []market.OHLCBar
	Depth      *market.DepthBook
	Chain      *market.OptionsChainSnapshot

	OpenPositionCount int
	RecentClosedPnL   decimal.Decimal

	TacticalOnly bool // true for the 3-minute tactical cycle (Technical+PM+Risk+Execution only)
}

// --- Stage A: analyst payloads ---

// TechnicalOutput is TechnicalAgent's payload.
type TechnicalOutput struct {
	Trend      string          `json:"trend"` // "up", "down", "sideways"
	Momentum   float64         `json:"momentum"`
	Support    decimal.Decimal `json:"support"`
	Resistance decimal.Decimal `json:"resistance"`
	Narrative  string          `json:"narrative"`
}

// FundamentalOutput is FundamentalAgent's payload.
type FundamentalOutput struct {
	FairValue decimal.Decimal `json:"fair_value"`
	Narrative string          `json:"narrative"`
}

// SentimentOutput is SentimentAgent's payload.
type SentimentOutput struct {
	Score     float64 `json:"score"` // -1..1
	Narrative string  `json:"narrative"`
}

// MacroOutput is MacroAgent's payload.
type MacroOutput struct {
	RiskOnOff string  `json:"risk_on_off"` // "risk_on", "risk_off", "neutral"
	Score     float64 `json:"score"`
	Narrative string  `json:"narrative"`
}

// --- Stage B: researcher payloads ---

// ResearchOutput is shared by BullResearcher and BearResearcher.
type ResearchOutput struct {
	Thesis     string  `json:"thesis"`
	Confidence float64 `json:"confidence"` // 0..1
}

// --- Stage C: portfolio manager payload ---

// PortfolioOutput is PortfolioManager's payload.
type PortfolioOutput struct {
	BullishScore   float64         `json:"bullish_score"`
	BearishScore   float64         `json:"bearish_score"`
	TentativeSignal Action         `json:"tentative_signal"`
	ScenarioPaths  []string        `json:"scenario_paths"`
	Entry          decimal.Decimal `json:"entry"`
	ExecutiveSummary string        `json:"executive_summary"`
}

// --- Stage D: risk payload ---

// RiskOutput is shared by the three risk agents.
type RiskOutput struct {
	Quantity   decimal.Decimal `json:"quantity"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Rationale  string          `json:"rationale"`
}

// --- Stage E: execution payload ---

// ExecutionOutput is ExecutionAgent's payload — the final resolved trade.
type ExecutionOutput struct {
	Signal     Action          `json:"signal"`
	Quantity   decimal.Decimal `json:"quantity"`
	Entry      decimal.Decimal `json:"entry"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Rejected   bool            `json:"rejected"`
	RejectReason string        `json:"reject_reason,omitempty"`
}

// --- Stage F: learning payload ---

// LearningOutput is LearningAgent's best-effort payload.
type LearningOutput struct {
	Note string `json:"note"`
}

// CycleResult is the full aggregation persisted after a graph run, per
// §3's CycleResult entity.
type CycleResult struct {
	CycleID          int64           `json:"cycle_id"`
	Instrument       string          `json:"instrument"`
	At               time.Time       `json:"at"`
	FinalSignal      Action          `json:"final_signal"`
	BullishScore     float64         `json:"bullish_score"`
	BearishScore     float64         `json:"bearish_score"`
	ExecutiveSummary string          `json:"executive_summary"`
	Quantity         decimal.Decimal `json:"quantity"`
	Entry            decimal.Decimal `json:"entry"`
	StopLoss         decimal.Decimal `json:"stop_loss"`
	TakeProfit       decimal.Decimal `json:"take_profit"`
	AgentDecisions   map[Name]Output `json:"agent_decisions"`
	IncompleteAgents []Name          `json:"incomplete_agents,omitempty"`
	Errors           []string        `json:"errors,omitempty"`
}
