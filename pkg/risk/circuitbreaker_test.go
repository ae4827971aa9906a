package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/config"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		DailyLossLimitPct:     2.0,
		MaxConsecutiveLosses:  5,
		HighVolatilityVIX:     25.0,
		MaxLeverageSlack:      1.1,
		APIRateLimitPerMinute: 60,
	}
}

func baseInputs() Inputs {
	return Inputs{
		Capital:              decimal.NewFromInt(100000),
		RealizedPnLToday:     decimal.Zero,
		ConsecutiveLosses:    0,
		DataFeedAge:          time.Second,
		StaleThreshold:       120 * time.Second,
		LLMCallsPerMinute:    1,
		MarketOpen:           true,
		CurrentVolatilityVIX: 15.0,
		OpenNotional:         decimal.NewFromInt(10000),
	}
}

func TestEvaluateAllClearDoesNotHalt(t *testing.T) {
	cb := New(testRiskConfig(), 3.0, nil)
	state := cb.Evaluate(baseInputs())
	if state.ShouldHalt {
		t.Fatalf("expected no halt, got %+v", state.Checks)
	}
	for name, triggered := range state.Checks {
		if triggered {
			t.Errorf("check %s unexpectedly triggered", name)
		}
	}
}

func TestEvaluateDailyLossTripsOnExceedingLimit(t *testing.T) {
	cb := New(testRiskConfig(), 3.0, nil)
	in := baseInputs()
	// 2% of 100000 = 2000; a loss of 2500 exceeds the limit.
	in.RealizedPnLToday = decimal.NewFromInt(-2500)
	state := cb.Evaluate(in)
	if !state.Checks[CheckDailyLoss] {
		t.Error("expected daily_loss check to trip")
	}
	if !state.ShouldHalt {
		t.Error("expected ShouldHalt true")
	}
}

func TestEvaluateConsecutiveLossesThreshold(t *testing.T) {
	cb := New(testRiskConfig(), 3.0, nil)
	in := baseInputs()
	in.ConsecutiveLosses = 5
	state := cb.Evaluate(in)
	if !state.Checks[CheckConsecutiveLosses] {
		t.Error("expected consecutive_losses check to trip at threshold")
	}

	in.ConsecutiveLosses = 4
	state = cb.Evaluate(in)
	if state.Checks[CheckConsecutiveLosses] {
		t.Error("expected consecutive_losses check not to trip below threshold")
	}
}

func TestEvaluateDataFeedDown(t *testing.T) {
	cb := New(testRiskConfig(), 3.0, nil)
	in := baseInputs()
	in.DataFeedAge = 200 * time.Second
	state := cb.Evaluate(in)
	if !state.Checks[CheckDataFeedDown] {
		t.Error("expected data_feed_down to trip when age exceeds stale threshold")
	}
}

func TestEvaluateMarketHalted(t *testing.T) {
	cb := New(testRiskConfig(), 3.0, nil)
	in := baseInputs()
	in.MarketOpen = false
	state := cb.Evaluate(in)
	if !state.Checks[CheckMarketHalted] {
		t.Error("expected market_halted to trip when market is closed")
	}
}

func TestEvaluateOverLeveraged(t *testing.T) {
	cb := New(testRiskConfig(), 3.0, nil)
	in := baseInputs()
	// leverage*slack = 3.3; notional/capital must exceed that.
	in.Capital = decimal.NewFromInt(1000)
	in.OpenNotional = decimal.NewFromInt(4000) // 4x leverage > 3.3
	state := cb.Evaluate(in)
	if !state.Checks[CheckOverLeveraged] {
		t.Error("expected over_leveraged to trip past leverage*slack")
	}
}

func TestStatusReturnsMostRecentEvaluation(t *testing.T) {
	cb := New(testRiskConfig(), 3.0, nil)
	if cb.Status().ShouldHalt {
		t.Fatal("expected initial status to not halt before any Evaluate call")
	}
	in := baseInputs()
	in.MarketOpen = false
	cb.Evaluate(in)
	if !cb.Status().ShouldHalt {
		t.Error("expected Status() to reflect the last Evaluate() result")
	}
}
