package agents

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/llmrouter"
	"github.com/quantaflow/tradecore/pkg/metrics"
)

// Graph runs the fixed Stage A-F pipeline over a CycleState and resolves
// it into a CycleResult, per SPEC_FULL.md §4.5.
type Graph struct {
	router       *llmrouter.Router
	riskCfg      config.RiskConfig
	agentTimeout time.Duration
	graphTimeout time.Duration
	metrics      *metrics.Metrics
}

// New builds a Graph. agentTimeout bounds each individual agent call;
// graphTimeout bounds the whole run (§5 timeouts: 30s / 180s defaults).
func New(router *llmrouter.Router, cfg *config.Config, m *metrics.Metrics) *Graph {
	return &Graph{
		router:       router,
		riskCfg:      cfg.Risk,
		agentTimeout: cfg.Scheduler.AgentTimeout,
		graphTimeout: cfg.Scheduler.AgentGraphTimeout,
		metrics:      m,
	}
}

// Router exposes the graph's LLM Router so callers outside the agent
// package (the Decision Scheduler's Circuit Breaker wiring) can read its
// call-rate counters without threading a second router reference through
// construction.
func (g *Graph) Router() *llmrouter.Router {
	return g.router
}

// runAgent executes fn under a per-agent timeout and converts its result
// (or timeout, or panic-free error) into an Output tagged with name.
func (g *Graph) runAgent(ctx context.Context, name Name, fn func(context.Context) (any, error)) Output {
	callCtx, cancel := context.WithTimeout(ctx, g.agentTimeout)
	defer cancel()

	type result struct {
		payload any
		err     error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		payload, err := fn(callCtx)
		done <- result{payload, err}
	}()

	select {
	case <-callCtx.Done():
		if g.metrics != nil {
			g.metrics.AgentTimeouts.WithLabelValues(string(name)).Inc()
		}
		return Output{AgentName: name, Status: StatusTimedOut}
	case r := <-done:
		if g.metrics != nil {
			g.metrics.StageLatencySeconds.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())
		}
		if r.err != nil {
			if g.metrics != nil {
				g.metrics.AgentErrors.WithLabelValues(string(name)).Inc()
			}
			return Output{AgentName: name, Status: StatusError, Reason: r.err.Error()}
		}
		return Output{AgentName: name, Status: StatusOK, Payload: r.payload}
	}
}

// Run executes the full graph (or the tactical subset when
// st.TacticalOnly) and returns the resolved CycleResult.
func (g *Graph) Run(ctx context.Context, st CycleState, circuitBreakerHalted bool) CycleResult {
	ctx, cancel := context.WithTimeout(ctx, g.graphTimeout)
	defer cancel()

	decisions := make(map[Name]Output)
	var incomplete []Name
	record := func(o Output) {
		decisions[o.AgentName] = o
		if o.Status != StatusOK {
			incomplete = append(incomplete, o.AgentName)
		}
	}

	if st.TacticalOnly {
		out := g.runAgent(ctx, NameTechnical, func(c context.Context) (any, error) {
			return TechnicalAgent{}.Run(c, st, g.router)
		})
		record(out)
	} else {
		// Stage A: parallel analysts. All four complete or time out before
		// Stage B starts.
		var wg sync.WaitGroup
		var mu sync.Mutex
		stageA := []struct {
			name Name
			run  func(context.Context) (any, error)
		}{
			{NameTechnical, func(c context.Context) (any, error) { return TechnicalAgent{}.Run(c, st, g.router) }},
			{NameFundamental, func(c context.Context) (any, error) { return FundamentalAgent{}.Run(c, st, g.router) }},
			{NameSentiment, func(c context.Context) (any, error) { return SentimentAgent{}.Run(c, st, g.router) }},
			{NameMacro, func(c context.Context) (any, error) { return MacroAgent{}.Run(c, st, g.router) }},
		}
		for _, a := range stageA {
			wg.Add(1)
			go func(name Name, run func(context.Context) (any, error)) {
				defer wg.Done()
				out := g.runAgent(ctx, name, run)
				mu.Lock()
				record(out)
				mu.Unlock()
			}(a.name, a.run)
		}
		wg.Wait()
	}

	var bull, bear ResearchOutput
	if !st.TacticalOnly {
		// Stage B: parallel researchers.
		var wg sync.WaitGroup
		var mu sync.Mutex
		wg.Add(2)
		go func() {
			defer wg.Done()
			out := g.runAgent(ctx, NameBullResearcher, func(c context.Context) (any, error) {
				return BullResearcher{}.Run(c, st, decisions, g.router)
			})
			mu.Lock()
			record(out)
			mu.Unlock()
		}()
		go func() {
			defer wg.Done()
			out := g.runAgent(ctx, NameBearResearcher, func(c context.Context) (any, error) {
				return BearResearcher{}.Run(c, st, decisions, g.router)
			})
			mu.Lock()
			record(out)
			mu.Unlock()
		}()
		wg.Wait()
		if p, ok := decisions[NameBullResearcher].Payload.(ResearchOutput); ok {
			bull = p
		}
		if p, ok := decisions[NameBearResearcher].Payload.(ResearchOutput); ok {
			bear = p
		}
	}

	// Stage C: portfolio manager.
	pmOut := g.runAgent(ctx, NamePortfolioManager, func(c context.Context) (any, error) {
		return PortfolioManager{}.Run(c, st, decisions, bull, bear, g.router)
	})
	record(pmOut)
	var pm PortfolioOutput
	if p, ok := pmOut.Payload.(PortfolioOutput); ok {
		pm = p
	} else {
		pm = PortfolioOutput{TentativeSignal: ActionHold}
	}

	// Stage D: risk agents (deterministic, no LLM call — always completes
	// within the per-agent timeout).
	aggOut := g.runAgent(ctx, NameRiskAggressive, func(c context.Context) (any, error) {
		return RiskAggressive{Config: g.riskCfg}.Run(c, pm)
	})
	neutralOut := g.runAgent(ctx, NameRiskNeutral, func(c context.Context) (any, error) {
		return RiskNeutral{Config: g.riskCfg}.Run(c, pm)
	})
	consOut := g.runAgent(ctx, NameRiskConservative, func(c context.Context) (any, error) {
		return RiskConservative{Config: g.riskCfg}.Run(c, pm)
	})
	record(aggOut)
	record(neutralOut)
	record(consOut)

	toRisk := func(o Output) RiskOutput {
		if p, ok := o.Payload.(RiskOutput); ok {
			return p
		}
		return RiskOutput{Quantity: decimal.Zero}
	}
	finalRisk := resolveRisk(toRisk(aggOut), toRisk(neutralOut), toRisk(consOut))

	// Stage E: execution.
	execOut := g.runAgent(ctx, NameExecution, func(c context.Context) (any, error) {
		return ExecutionAgent{}.Run(c, pm, finalRisk, circuitBreakerHalted)
	})
	record(execOut)
	exec, _ := execOut.Payload.(ExecutionOutput)

	// Stage F: learning — best-effort, never blocks or affects the result.
	go func() {
		learnCtx, cancel := context.WithTimeout(context.Background(), g.agentTimeout)
		defer cancel()
		LearningAgent{}.Run(learnCtx, st.RecentClosedPnL, st.OpenPositionCount)
	}()

	return CycleResult{
		CycleID:          st.CycleID,
		Instrument:       st.Instrument.Key(),
		At:               st.At,
		FinalSignal:      exec.Signal,
		BullishScore:      pm.BullishScore,
		BearishScore:      pm.BearishScore,
		ExecutiveSummary: pm.ExecutiveSummary,
		Quantity:         exec.Quantity,
		Entry:            exec.Entry,
		StopLoss:         exec.StopLoss,
		TakeProfit:       exec.TakeProfit,
		AgentDecisions:   decisions,
		IncompleteAgents: incomplete,
	}
}

