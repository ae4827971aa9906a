// Package scheduler implements the Decision Scheduler (C6): the
// per-instrument strategic and tactical cycle loops that snapshot the
// Market Store, run the Agent Graph, apply the Circuit Breaker, persist
// the result, and hand actionable signals to the Paper Broker, adapted
// from the teacher's pkg/trader/orchestrator ticker-loop/runStage model
// generalized per SPEC_FULL.md §4.6.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/agents"
	"github.com/quantaflow/tradecore/pkg/broker"
	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/market"
	"github.com/quantaflow/tradecore/pkg/metrics"
	"github.com/quantaflow/tradecore/pkg/monitor"
	"github.com/quantaflow/tradecore/pkg/persistence"
	"github.com/quantaflow/tradecore/pkg/risk"
	"github.com/quantaflow/tradecore/pkg/snapshot"
)

// AbortReason names why a cycle produced no trade decision.
type AbortReason string

const (
	AbortNone       AbortReason = ""
	AbortStaleData  AbortReason = "STALE_DATA"
	AbortInProgress AbortReason = "CYCLE_IN_PROGRESS"
)

// CycleOutcome is what the Scheduler reports to OnCycleComplete after
// every attempted cycle, successful or aborted.
type CycleOutcome struct {
	Instrument string
	Tactical   bool
	Aborted    AbortReason
	Result     agents.CycleResult
	Duration   time.Duration
}

// instrumentRuntime holds the per-instrument mutable state the loops
// share: the cycle mutex (no overlapping runs per §4.6 step 1) and the
// monotonic cycle id counter.
type instrumentRuntime struct {
	mu      sync.Mutex
	cycleID int64
}

// Scheduler drives the strategic and tactical cycle loops for every
// configured instrument.
type Scheduler struct {
	cfg     *config.Config
	store   *market.Store
	graph   *agents.Graph
	brk     *broker.Broker
	cb      *risk.CircuitBreaker
	monitor *monitor.Monitor
	snaps   *snapshot.Builder
	persist persistence.Store
	metrics *metrics.Metrics

	runtimes map[string]*instrumentRuntime

	onCycleComplete func(CycleOutcome)
}

// New builds a Scheduler over the already-constructed components. cb may
// be nil if the Circuit Breaker is not wired for a given deployment.
func New(cfg *config.Config, store *market.Store, graph *agents.Graph, brk *broker.Broker, cb *risk.CircuitBreaker, mon *monitor.Monitor, snaps *snapshot.Builder, persist persistence.Store, m *metrics.Metrics) *Scheduler {
	runtimes := make(map[string]*instrumentRuntime, len(cfg.Instruments))
	for _, ic := range cfg.Instruments {
		runtimes[market.Instrument{Symbol: ic.Symbol, Exchange: ic.Exchange}.Key()] = &instrumentRuntime{}
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		graph:    graph,
		brk:      brk,
		cb:       cb,
		monitor:  mon,
		snaps:    snaps,
		persist:  persist,
		metrics:  m,
		runtimes: runtimes,
	}
}

// OnCycleComplete registers a callback invoked after every attempted
// cycle, mirroring the teacher's OnStageComplete hook.
func (s *Scheduler) OnCycleComplete(fn func(CycleOutcome)) {
	s.onCycleComplete = fn
}

// Run launches the strategic and tactical loops for every configured
// instrument and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ic := range s.cfg.Instruments {
		ic := ic
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.loop(ctx, ic, false, s.cfg.Scheduler.StrategicCyclePeriod)
		}()
		go func() {
			defer wg.Done()
			s.loop(ctx, ic, true, s.cfg.Scheduler.TacticalCyclePeriod)
		}()
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, ic config.InstrumentConfig, tactical bool, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome := s.RunCycle(ctx, ic, tactical)
			if s.onCycleComplete != nil {
				s.onCycleComplete(outcome)
			}
		}
	}
}

// RunCycle executes exactly one decision cycle for instrument, following
// the lifecycle in §4.6: acquire the per-instrument mutex, snapshot the
// Market Store, check freshness, run the Agent Graph, apply the Circuit
// Breaker, persist, and hand off to the Broker.
func (s *Scheduler) RunCycle(ctx context.Context, ic config.InstrumentConfig, tactical bool) CycleOutcome {
	start := time.Now()
	instrument := market.Instrument{Symbol: ic.Symbol, Exchange: ic.Exchange, Kind: market.Kind(ic.Kind)}
	key := instrument.Key()

	rt := s.runtimes[key]
	if rt == nil {
		rt = &instrumentRuntime{}
		s.runtimes[key] = rt
	}

	if !rt.mu.TryLock() {
		if s.metrics != nil {
			s.metrics.CyclesAborted.WithLabelValues(key, string(AbortInProgress)).Inc()
		}
		return CycleOutcome{Instrument: key, Tactical: tactical, Aborted: AbortInProgress}
	}
	defer rt.mu.Unlock()

	cycleCtx, cancel := context.WithTimeout(ctx, s.cfg.Scheduler.AgentGraphTimeout+5*time.Second)
	defer cancel()

	age := s.store.Age(key)
	if age > ic.MaxDataAge {
		log.Printf("[scheduler] %s: aborting cycle, stale data (age=%s > max=%s)", key, age, ic.MaxDataAge)
		if s.metrics != nil {
			s.metrics.CyclesAborted.WithLabelValues(key, string(AbortStaleData)).Inc()
		}
		result := agents.CycleResult{
			CycleID:     atomic.AddInt64(&rt.cycleID, 1),
			Instrument:  key,
			At:          time.Now(),
			FinalSignal: agents.ActionHold,
			Errors:      []string{string(AbortStaleData)},
		}
		s.persistCycle(cycleCtx, result)
		return CycleOutcome{Instrument: key, Tactical: tactical, Aborted: AbortStaleData, Result: result, Duration: time.Since(start)}
	}

	cycleID := atomic.AddInt64(&rt.cycleID, 1)
	st := s.buildCycleState(key, instrument, cycleID, tactical)

	if s.cb != nil {
		s.cb.Evaluate(s.buildRiskInputs(key, ic, age))
	}
	halted := s.cb != nil && s.cb.Status().ShouldHalt
	if halted {
		s.recordHaltAlert(cycleCtx, key, s.cb.Status())
	}

	if !tactical {
		s.applyStrategyParamOverrides(cycleCtx, key, &ic)
	}

	result := s.graph.Run(cycleCtx, st, halted)

	if halted && result.FinalSignal != agents.ActionHold {
		result.FinalSignal = agents.ActionHold
	}

	s.persistCycle(cycleCtx, result)

	if s.snaps != nil {
		s.snaps.RecordSignal(key, result.FinalSignal)
	}

	if result.FinalSignal != agents.ActionHold && !result.Quantity.IsZero() && s.brk != nil {
		s.handOff(cycleCtx, key, result)
	}

	if s.metrics != nil {
		s.metrics.CyclesRun.WithLabelValues(key, cycleKindLabel(tactical)).Inc()
	}

	return CycleOutcome{Instrument: key, Tactical: tactical, Result: result, Duration: time.Since(start)}
}

func cycleKindLabel(tactical bool) string {
	if tactical {
		return "tactical"
	}
	return "strategic"
}

func (s *Scheduler) buildCycleState(key string, instrument market.Instrument, cycleID int64, tactical bool) agents.CycleState {
	var latestTick *market.Tick
	if t, ok := s.store.LatestTick(key); ok {
		latestTick = &t
	}

	var chain *market.OptionsChainSnapshot
	if c, ok := s.store.OptionsChain(key, 60*time.Second); ok {
		chain = &c
	}

	openCount := 0
	recentPnL := decimal.Zero
	if s.brk != nil {
		for _, p := range s.brk.OpenPositions() {
			if p.Instrument == key {
				openCount++
			}
		}
		recentPnL = s.brk.RecentClosedPnL(10)
	}

	return agents.CycleState{
		CycleID:           cycleID,
		Instrument:        instrument,
		At:                time.Now(),
		LatestTick:        latestTick,
		Bars1m:            s.store.RecentBars(key, market.TF1m, 200),
		Bars5m:            s.store.RecentBars(key, market.TF5m, 200),
		Bars15m:           s.store.RecentBars(key, market.TF15m, 200),
		Depth:             s.store.Depth(key),
		Chain:             chain,
		OpenPositionCount: openCount,
		RecentClosedPnL:   recentPnL,
		TacticalOnly:      tactical,
	}
}

// buildRiskInputs gathers the Circuit Breaker's Inputs from the Broker's
// ledger, the Market Store's freshness, the LLM Router's recent call
// volume, and the configured trading session (§4.9). No volatility feed
// is wired into this repository, so CurrentVolatilityVIX stays zero —
// the high_volatility check trips only when
// config.RiskConfig.HighVolatilityVIX is set below zero.
func (s *Scheduler) buildRiskInputs(key string, ic config.InstrumentConfig, dataFeedAge time.Duration) risk.Inputs {
	in := risk.Inputs{
		DataFeedAge:    dataFeedAge,
		StaleThreshold: ic.MaxDataAge,
		MarketOpen:     s.cfg.MarketHours.IsOpen(time.Now()),
	}
	if s.brk != nil {
		in.Capital = s.brk.Capital()
		in.RealizedPnLToday = s.brk.PnLToday()
		in.ConsecutiveLosses = s.brk.ConsecutiveLosses()
		in.OpenNotional = s.brk.OpenNotional()
	}
	if s.graph != nil {
		if r := s.graph.Router(); r != nil {
			in.LLMCallsPerMinute = r.CallsInLastMinute()
		}
	}
	return in
}

func (s *Scheduler) persistCycle(ctx context.Context, result agents.CycleResult) {
	if s.persist == nil {
		return
	}
	err := persistence.WithRetry(ctx, func() error {
		return s.persist.Insert(ctx, persistence.CollectionAgentDecisions, result)
	})
	if err != nil {
		log.Printf("[scheduler] %s: failed to persist cycle %d after retries: %v", result.Instrument, result.CycleID, err)
	}
}

// handOff places an order for an actionable, non-conflicting signal. A
// signal conflicts if the Position Monitor already holds an open
// position for the instrument in the same direction (§4.6 step 7).
func (s *Scheduler) handOff(ctx context.Context, instrument string, result agents.CycleResult) {
	for _, p := range s.brk.OpenPositions() {
		if p.Instrument != instrument {
			continue
		}
		if (p.Side == broker.SideLong && result.FinalSignal == agents.ActionBuy) ||
			(p.Side == broker.SideShort && result.FinalSignal == agents.ActionSell) {
			log.Printf("[scheduler] %s: skipping handoff, conflicting open position %s", instrument, p.TradeID)
			return
		}
	}

	lastPrice, ok := s.store.LatestPrice(instrument)
	if !ok {
		return
	}

	res, err := s.brk.PlaceOrder(ctx, instrument, result.FinalSignal, result.Quantity, lastPrice, result.StopLoss, result.TakeProfit)
	if err != nil {
		log.Printf("[scheduler] %s: place order error: %v", instrument, err)
		return
	}
	if res.Status != "filled" {
		log.Printf("[scheduler] %s: order rejected: %s", instrument, res.RejectionReason)
		return
	}
	log.Printf("[scheduler] %s: filled %s %s @ %s (trade %s)", instrument, result.FinalSignal, result.Quantity.String(), res.FillPrice.String(), res.TradeID)
}

// recordHaltAlert persists a circuit-breaker-tripped alert, restoring the
// original's alerts collection (SPEC_FULL.md §12) without blocking the
// cycle on persistence latency.
func (s *Scheduler) recordHaltAlert(ctx context.Context, key string, state risk.State) {
	if s.persist == nil {
		return
	}
	err := persistence.WithRetry(ctx, func() error {
		return s.persist.Insert(ctx, persistence.CollectionAlerts, map[string]any{
			"instrument":   key,
			"severity":     "circuit_breaker",
			"triggered_at": time.Now(),
			"checks":       state.Checks,
		})
	})
	if err != nil {
		log.Printf("[scheduler] %s: failed to persist halt alert: %v", key, err)
	}
}

// applyStrategyParamOverrides reads the strategy_parameters collection for
// instrument at each strategic cycle boundary (SPEC_FULL.md §12) and
// copies strike_step/strike_window into ic, this cycle's copy of the
// instrument config. No later step of the cycle reads StrikeStep or
// StrikeWindow, so the overrides do not change the cycle's result.
func (s *Scheduler) applyStrategyParamOverrides(ctx context.Context, key string, ic *config.InstrumentConfig) {
	if s.persist == nil {
		return
	}
	doc, ok, err := s.persist.FindOne(ctx, persistence.CollectionStrategyParams, persistence.Query{"instrument": key}, nil)
	if err != nil || !ok {
		return
	}
	if step, ok := doc["strike_step"].(float64); ok && step > 0 {
		ic.StrikeStep = int(step)
	}
	if window, ok := doc["strike_window"].(float64); ok && window > 0 {
		ic.StrikeWindow = int(window)
	}
}

// Status summarizes the scheduler's per-instrument cycle counters, for
// the HTTP status endpoint.
type Status struct {
	Instruments []string
}

// String implements fmt.Stringer for log lines.
func (s Status) String() string {
	return fmt.Sprintf("scheduler tracking %d instruments", len(s.Instruments))
}
