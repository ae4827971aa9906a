package monitor

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/broker"
	"github.com/quantaflow/tradecore/pkg/config"
)

func tradingConfig() config.TradingConfig {
	return config.TradingConfig{
		PaperMode:              true,
		MaxPositionSizePct:     0.1,
		MaxLeverage:            3.0,
		MaxConcurrentPositions: 5,
		MarginFraction:         1.0,
		CommissionPerTrade:     0,
		SlippageBps:            0,
	}
}

func TestEvaluateOneClosesLongOnStopLoss(t *testing.T) {
	brk := broker.New(tradingConfig(), decimal.NewFromInt(100000), nil)
	brk.AllowSymbol("NIFTY")
	res, err := brk.PlaceOrder(context.Background(), "NIFTY", "BUY", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromInt(95), decimal.NewFromInt(110))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	m := New(nil, brk, nil)
	pos := brk.OpenPositions()[0]
	_ = res

	m.evaluateOne(context.Background(), pos, decimal.NewFromInt(94), false)

	if len(brk.OpenPositions()) != 0 {
		t.Fatal("expected position closed on stop loss breach")
	}
}

func TestEvaluateOneClosesLongOnTakeProfit(t *testing.T) {
	brk := broker.New(tradingConfig(), decimal.NewFromInt(100000), nil)
	brk.AllowSymbol("NIFTY")
	brk.PlaceOrder(context.Background(), "NIFTY", "BUY", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromInt(95), decimal.NewFromInt(110))

	m := New(nil, brk, nil)
	pos := brk.OpenPositions()[0]

	m.evaluateOne(context.Background(), pos, decimal.NewFromInt(111), false)

	if len(brk.OpenPositions()) != 0 {
		t.Fatal("expected position closed on take profit breach")
	}
}

func TestEvaluateOneLeavesPositionOpenWithinBand(t *testing.T) {
	brk := broker.New(tradingConfig(), decimal.NewFromInt(100000), nil)
	brk.AllowSymbol("NIFTY")
	brk.PlaceOrder(context.Background(), "NIFTY", "BUY", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromInt(95), decimal.NewFromInt(110))

	m := New(nil, brk, nil)
	pos := brk.OpenPositions()[0]

	m.evaluateOne(context.Background(), pos, decimal.NewFromInt(102), false)

	if len(brk.OpenPositions()) != 1 {
		t.Fatal("expected position to remain open within the SL/TP band")
	}
}

func TestEvaluateOneClosesShortOnStopLoss(t *testing.T) {
	brk := broker.New(tradingConfig(), decimal.NewFromInt(100000), nil)
	brk.AllowSymbol("NIFTY")
	brk.PlaceOrder(context.Background(), "NIFTY", "SELL", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromInt(105), decimal.NewFromInt(90))

	m := New(nil, brk, nil)
	pos := brk.OpenPositions()[0]

	m.evaluateOne(context.Background(), pos, decimal.NewFromInt(106), false)

	if len(brk.OpenPositions()) != 0 {
		t.Fatal("expected short position closed when price rises past its stop loss")
	}
}

func TestEvaluateOneForceFlatOverridesSLTP(t *testing.T) {
	brk := broker.New(tradingConfig(), decimal.NewFromInt(100000), nil)
	brk.AllowSymbol("NIFTY")
	brk.PlaceOrder(context.Background(), "NIFTY", "BUY", decimal.NewFromInt(10), decimal.NewFromInt(100), decimal.NewFromInt(95), decimal.NewFromInt(110))

	m := New(nil, brk, nil)
	pos := brk.OpenPositions()[0]

	// Price is well inside the SL/TP band, but a halt signal forces closure.
	m.evaluateOne(context.Background(), pos, decimal.NewFromInt(101), true)

	if len(brk.OpenPositions()) != 0 {
		t.Fatal("expected force-flat to close the position regardless of SL/TP")
	}
	closed := brk.RecentClosedPnL(1)
	_ = closed
}
