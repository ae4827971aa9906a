// Package risk implements the Circuit Breaker (C9): a set of named halt
// conditions evaluated every cycle and on demand, grounded on
// original_source/monitoring/circuit_breakers.py's check table and the
// teacher's pkg/trader/policy.PolicyEngine threshold-tracking mechanics,
// generalized per SPEC_FULL.md §4.9.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/metrics"
)

// CheckName identifies one circuit breaker condition.
type CheckName string

const (
	CheckDailyLoss          CheckName = "daily_loss"
	CheckConsecutiveLosses  CheckName = "consecutive_losses"
	CheckDataFeedDown       CheckName = "data_feed_down"
	CheckAPIRateLimit       CheckName = "api_rate_limit"
	CheckMarketHalted       CheckName = "market_halted"
	CheckHighVolatility     CheckName = "high_volatility"
	CheckOverLeveraged      CheckName = "over_leveraged"
)

var allChecks = []CheckName{
	CheckDailyLoss, CheckConsecutiveLosses, CheckDataFeedDown,
	CheckAPIRateLimit, CheckMarketHalted, CheckHighVolatility, CheckOverLeveraged,
}

// Inputs is the per-evaluation observation set the caller gathers from
// the rest of the system (Market Store age, Broker ledger, LLM Router
// call rate, an external market-open signal, a volatility feed).
type Inputs struct {
	Capital               decimal.Decimal
	RealizedPnLToday      decimal.Decimal
	ConsecutiveLosses     int
	DataFeedAge           time.Duration
	StaleThreshold        time.Duration
	LLMCallsPerMinute     int
	MarketOpen            bool
	CurrentVolatilityVIX  float64
	OpenNotional          decimal.Decimal
}

// State is the result of the most recent evaluation: a map of check name
// to triggered, plus the combined should_halt flag (§3 CircuitBreakerState).
type State struct {
	Checks     map[CheckName]bool
	ShouldHalt bool
}

// CircuitBreaker evaluates halt conditions against configured thresholds.
type CircuitBreaker struct {
	cfg     config.RiskConfig
	leverage float64 // Trading.MaxLeverage, multiplied by cfg.MaxLeverageSlack

	mu    sync.RWMutex
	state State

	metrics *metrics.Metrics
}

// New builds a CircuitBreaker from the risk thresholds and the trading
// config's max leverage.
func New(riskCfg config.RiskConfig, maxLeverage float64, m *metrics.Metrics) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:      riskCfg,
		leverage: maxLeverage,
		state:    State{Checks: make(map[CheckName]bool)},
		metrics:  m,
	}
}

// Evaluate runs every check against in and updates the cached state,
// returning the combined result (§4.9).
func (c *CircuitBreaker) Evaluate(in Inputs) State {
	checks := make(map[CheckName]bool, len(allChecks))

	dailyLossLimit := in.Capital.Mul(decimal.NewFromFloat(c.cfg.DailyLossLimitPct / 100.0))
	checks[CheckDailyLoss] = in.RealizedPnLToday.LessThan(dailyLossLimit.Neg())

	checks[CheckConsecutiveLosses] = in.ConsecutiveLosses >= c.cfg.MaxConsecutiveLosses

	staleThreshold := in.StaleThreshold
	if staleThreshold == 0 {
		staleThreshold = 120 * time.Second
	}
	checks[CheckDataFeedDown] = in.DataFeedAge > staleThreshold

	checks[CheckAPIRateLimit] = in.LLMCallsPerMinute > c.cfg.APIRateLimitPerMinute

	checks[CheckMarketHalted] = !in.MarketOpen

	checks[CheckHighVolatility] = in.CurrentVolatilityVIX > c.cfg.HighVolatilityVIX

	if in.Capital.IsPositive() {
		observedLeverage, _ := in.OpenNotional.Div(in.Capital).Float64()
		checks[CheckOverLeveraged] = observedLeverage > c.leverage*c.cfg.MaxLeverageSlack
	}

	shouldHalt := false
	for name, triggered := range checks {
		if triggered {
			shouldHalt = true
			if c.metrics != nil {
				c.metrics.CircuitBreakerTrips.WithLabelValues(string(name)).Inc()
			}
		}
	}

	state := State{Checks: checks, ShouldHalt: shouldHalt}

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	return state
}

// Status returns the most recently evaluated state without recomputing.
func (c *CircuitBreaker) Status() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}
