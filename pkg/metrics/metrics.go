// Package metrics provides the Prometheus instrumentation shared across
// components (ambient stack, SPEC_FULL.md §10). Adapted from the teacher
// corpus's dedicated-registry pattern: one registry per process, one
// struct of pre-registered vectors, Record*/Update* helpers rather than
// scattering prometheus.MustRegister calls through business logic.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics bundles every counter/gauge/histogram the trading core exposes
// at /metrics.
type Metrics struct {
	registry *prometheus.Registry

	TicksIngested      *prometheus.CounterVec
	IngestionErrors     *prometheus.CounterVec
	InstrumentAgeSeconds *prometheus.GaugeVec

	LLMCalls          *prometheus.CounterVec
	LLMTokensUsed     *prometheus.CounterVec
	LLMProviderStatus *prometheus.GaugeVec

	StageLatencySeconds *prometheus.HistogramVec
	AgentTimeouts       *prometheus.CounterVec
	AgentErrors         *prometheus.CounterVec

	CyclesRun       *prometheus.CounterVec
	CyclesAborted   *prometheus.CounterVec

	TradesOpened  *prometheus.CounterVec
	TradesClosed  *prometheus.CounterVec
	RealizedPnL   *prometheus.CounterVec
	OpenPositions *prometheus.GaugeVec

	CircuitBreakerTrips *prometheus.CounterVec

	SnapshotBuildSeconds prometheus.Histogram
}

// New creates a Metrics bundle registered against its own Registry (not the
// global default), matching the teacher's isolation so tests can build
// fresh instances without collector-already-registered panics.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		TicksIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_ingested_total", Help: "Ticks ingested per instrument.",
		}, []string{"instrument"}),
		IngestionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingestion_errors_total", Help: "Transient provider errors per instrument.",
		}, []string{"instrument"}),
		InstrumentAgeSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "instrument_age_seconds", Help: "Seconds since latest tick per instrument.",
		}, []string{"instrument"}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_calls_total", Help: "LLM calls per provider and outcome.",
		}, []string{"provider", "outcome"}),
		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "llm_tokens_used_total", Help: "Tokens consumed per provider.",
		}, []string{"provider"}),
		LLMProviderStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "llm_provider_status", Help: "1 if available, 0 otherwise, per provider.",
		}, []string{"provider"}),
		StageLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "agent_stage_latency_seconds", Help: "Agent Graph stage wall time.",
		}, []string{"stage"}),
		AgentTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "agent_timeouts_total", Help: "Per-agent timeouts.",
		}, []string{"agent"}),
		AgentErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "agent_errors_total", Help: "Per-agent failures.",
		}, []string{"agent"}),
		CyclesRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_run_total", Help: "Completed decision cycles per instrument and type.",
		}, []string{"instrument", "cycle_type"}),
		CyclesAborted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_aborted_total", Help: "Aborted decision cycles per instrument and reason.",
		}, []string{"instrument", "reason"}),
		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_opened_total", Help: "Positions opened per instrument and side.",
		}, []string{"instrument", "side"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trades_closed_total", Help: "Positions closed per instrument and exit reason.",
		}, []string{"instrument", "reason"}),
		RealizedPnL: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "realized_pnl_total", Help: "Realized PnL accumulator (sign folded into two series).",
		}, []string{"instrument", "sign"}),
		OpenPositions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_positions", Help: "Currently open positions per instrument.",
		}, []string{"instrument"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "circuit_breaker_trips_total", Help: "Circuit breaker check trips.",
		}, []string{"check"}),
		SnapshotBuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "snapshot_build_seconds", Help: "Snapshot Builder wall time.",
		}),
	}
	m.registerAll()
	return m
}

func (m *Metrics) registerAll() {
	m.registry.MustRegister(
		m.TicksIngested, m.IngestionErrors, m.InstrumentAgeSeconds,
		m.LLMCalls, m.LLMTokensUsed, m.LLMProviderStatus,
		m.StageLatencySeconds, m.AgentTimeouts, m.AgentErrors,
		m.CyclesRun, m.CyclesAborted,
		m.TradesOpened, m.TradesClosed, m.RealizedPnL, m.OpenPositions,
		m.CircuitBreakerTrips, m.SnapshotBuildSeconds,
	)
}

// Registry returns the underlying prometheus.Registry for use with
// promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRealizedPnL folds a signed decimal PnL into the two-series
// "sign"-labeled counter (Counters cannot go negative).
func (m *Metrics) RecordRealizedPnL(instrument string, pnl decimal.Decimal) {
	if pnl.IsNegative() {
		m.RealizedPnL.WithLabelValues(instrument, "loss").Add(DecimalToFloat64(pnl.Abs()))
		return
	}
	m.RealizedPnL.WithLabelValues(instrument, "gain").Add(DecimalToFloat64(pnl))
}

// DecimalToFloat64 converts a decimal.Decimal to float64 for Prometheus,
// which only accepts float64 observations.
func DecimalToFloat64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

var (
	defaultOnce sync.Once
	defaultInst *Metrics
)

// Default returns a process-wide Metrics instance, created once.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultInst = New("tradecore") })
	return defaultInst
}
