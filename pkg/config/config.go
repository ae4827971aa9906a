// Package config defines the single injected configuration structure used
// across the trading core. Nothing below this package reads the environment
// directly; callers (cmd/traderd, tests) build a Config explicitly and pass
// it into every component constructor.
package config

import "time"

// InstrumentKind enumerates the tradeable asset classes the core supports.
type InstrumentKind string

const (
	KindIndex  InstrumentKind = "index"
	KindFuture InstrumentKind = "future"
	KindOption InstrumentKind = "option"
	KindSpot   InstrumentKind = "spot"
)

// SelectionStrategy is the LLM Router's tie-break policy among equally
// eligible providers.
type SelectionStrategy string

const (
	SelectPriority   SelectionStrategy = "priority"
	SelectHash       SelectionStrategy = "hash"
	SelectRoundRobin SelectionStrategy = "round_robin"
)

// MarketHours bounds the trading session for non-24/7 instruments.
type MarketHours struct {
	Open    string // "HH:MM"
	Close   string // "HH:MM"
	TZ      string // IANA timezone name
	Is24x7  bool
}

// IsOpen reports whether t falls inside the configured trading session,
// sourcing the Circuit Breaker's market_halted check. 24x7 instruments are
// always open; a malformed Open/Close/TZ falls back to "open" rather than
// spuriously halting the book.
func (mh MarketHours) IsOpen(t time.Time) bool {
	if mh.Is24x7 {
		return true
	}
	loc := time.UTC
	if mh.TZ != "" {
		if l, err := time.LoadLocation(mh.TZ); err == nil {
			loc = l
		}
	}
	open, errOpen := time.Parse("15:04", mh.Open)
	close, errClose := time.Parse("15:04", mh.Close)
	if errOpen != nil || errClose != nil {
		return true
	}
	local := t.In(loc)
	minutes := local.Hour()*60 + local.Minute()
	openMinutes := open.Hour()*60 + open.Minute()
	closeMinutes := close.Hour()*60 + close.Minute()
	return minutes >= openMinutes && minutes < closeMinutes
}

// InstrumentConfig describes one tradeable instrument and its strike
// parameters (for options-class instruments).
type InstrumentConfig struct {
	Symbol      string
	Exchange    string
	Kind        InstrumentKind
	MaxDataAge  time.Duration // freshness threshold, e.g. 120s equities / 10s crypto
	StrikeStep  int           // options chain strike spacing, e.g. 100 for index options
	StrikeWindow int          // number of strikes either side of ATM to retain
}

// TradingConfig bounds order sizing and execution mode.
type TradingConfig struct {
	PaperMode               bool
	MaxPositionSizePct      float64
	MaxLeverage             float64
	MaxConcurrentPositions  int
	MarginFraction          float64
	CommissionPerTrade      float64
	SlippageBps             int64
}

// RiskConfig parameterizes the Circuit Breaker's thresholds.
type RiskConfig struct {
	DailyLossLimitPct     float64
	DefaultStopLossPct    float64
	DefaultTakeProfitPct  float64
	MaxConsecutiveLosses  int
	HighVolatilityVIX     float64
	MaxLeverageSlack      float64 // multiplier applied to MaxLeverage, e.g. 1.1
	APIRateLimitPerMinute int
	MaxOrderNotional      float64 // upper bound on a single risk agent's sized notional
}

// SchedulerConfig sets cycle cadence.
type SchedulerConfig struct {
	StrategicCyclePeriod time.Duration
	TacticalCyclePeriod  time.Duration
	AgentGraphTimeout    time.Duration
	AgentTimeout         time.Duration
	AgentBudget          time.Duration
	ShutdownGrace        time.Duration
}

// LLMProviderConfig is one entry of the ordered provider list.
type LLMProviderConfig struct {
	Name            string
	Priority        int
	APIKey          string
	BaseURL         string
	Model           string
	DailyTokenQuota int64
}

// LLMConfig configures the multi-provider router.
type LLMConfig struct {
	Providers         []LLMProviderConfig
	SelectionStrategy SelectionStrategy
	CallTimeout       time.Duration
	HealthCheckPeriod time.Duration
}

// LoggingConfig controls the verbosity of the ambient logger.
type LoggingConfig struct {
	Level string // "debug", "info", "warn", "error"
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PersistenceConfig selects and configures the document store driver.
type PersistenceConfig struct {
	Driver string // "memory" is the only driver shipped; others are pluggable
	DSN    string
}

// Config is the single process-wide configuration value. It is built once
// at startup and passed by reference into every component; no component
// re-reads it from a global or from the environment.
type Config struct {
	Instruments []InstrumentConfig
	MarketHours MarketHours
	Trading     TradingConfig
	Risk        RiskConfig
	Scheduler   SchedulerConfig
	LLM         LLMConfig
	Logging     LoggingConfig
	Metrics     MetricsConfig
	HTTP        HTTPConfig
	Persistence PersistenceConfig
}

// Default returns a Config with conservative defaults matching §6.3 and
// §10.3 of the specification. Callers override fields before constructing
// components.
func Default() *Config {
	return &Config{
		MarketHours: MarketHours{Is24x7: true},
		Trading: TradingConfig{
			PaperMode:              true,
			MaxPositionSizePct:     0.1,
			MaxLeverage:            3.0,
			MaxConcurrentPositions: 5,
			MarginFraction:         1.0,
			CommissionPerTrade:     20.0,
			SlippageBps:            5,
		},
		Risk: RiskConfig{
			DailyLossLimitPct:     2.0,
			DefaultStopLossPct:    0.5,
			DefaultTakeProfitPct:  1.0,
			MaxConsecutiveLosses:  5,
			HighVolatilityVIX:     25.0,
			MaxLeverageSlack:      1.1,
			APIRateLimitPerMinute: 60,
			MaxOrderNotional:      10000.0,
		},
		Scheduler: SchedulerConfig{
			StrategicCyclePeriod: 12 * time.Minute,
			TacticalCyclePeriod:  3 * time.Minute,
			AgentGraphTimeout:    180 * time.Second,
			AgentTimeout:         30 * time.Second,
			AgentBudget:          30 * time.Second,
			ShutdownGrace:        5 * time.Second,
		},
		LLM: LLMConfig{
			SelectionStrategy: SelectPriority,
			CallTimeout:       60 * time.Second,
			HealthCheckPeriod: 5 * time.Minute,
		},
		Logging:     LoggingConfig{Level: "info"},
		Metrics:     MetricsConfig{Enabled: true, Namespace: "tradecore"},
		HTTP:        HTTPConfig{Addr: ":8080", ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		Persistence: PersistenceConfig{Driver: "memory"},
	}
}
