// Package monitor implements the Position Monitor (C7): a continuous
// SL/TP watcher over a broker's open positions, per SPEC_FULL.md §4.7. It
// polls the Market Store's latest prices every pollInterval; it registers
// no tick callback, so an individual tick does not trigger a check.
package monitor

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/broker"
	"github.com/quantaflow/tradecore/pkg/market"
)

// pollInterval is the fixed period at which the monitor re-checks every
// open position, whether or not a tick has arrived.
const pollInterval = 100 * time.Millisecond

// CircuitBreakerSignal reports whether the circuit breaker currently
// demands force-flat liquidation.
type CircuitBreakerSignal func() bool

// Monitor watches one Broker's open positions against the latest price in
// a Store and closes them on SL/TP/force-flat triggers.
type Monitor struct {
	store   *market.Store
	brk     *broker.Broker
	forceFlat CircuitBreakerSignal
}

// New builds a Monitor over store and brk. forceFlat may be nil, meaning
// the circuit breaker never forces liquidation.
func New(store *market.Store, brk *broker.Broker, forceFlat CircuitBreakerSignal) *Monitor {
	return &Monitor{store: store, brk: brk, forceFlat: forceFlat}
}

// Run polls every pollInterval until ctx is cancelled, evaluating every
// open position on each pass. Exit checks compare the latest stored price
// with SL/TP and read no clock; the polling runs on wall-clock time, so
// during a replay the number of replayed ticks between two checks depends
// on how fast the replay is driven.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evaluateAll(ctx)
		}
	}
}

func (m *Monitor) evaluateAll(ctx context.Context) {
	halt := m.forceFlat != nil && m.forceFlat()
	for _, pos := range m.brk.OpenPositions() {
		price, ok := m.store.LatestPrice(pos.Instrument)
		if !ok && !halt {
			continue
		}
		m.evaluateOne(ctx, pos, price, halt)
	}
}

// evaluateOne checks one position for an exit condition. Exit uses the
// protective price (SL or TP), not the crossing last price, modeling a
// conservative fill (§4.7).
func (m *Monitor) evaluateOne(ctx context.Context, pos broker.Position, lastPrice decimal.Decimal, haltSignal bool) {
	if haltSignal {
		m.brk.ClosePosition(ctx, pos.TradeID, lastPrice, broker.ExitRiskHalt)
		return
	}

	switch pos.Side {
	case broker.SideLong:
		if !pos.StopLoss.IsZero() && lastPrice.LessThanOrEqual(pos.StopLoss) {
			m.brk.ClosePosition(ctx, pos.TradeID, pos.StopLoss, broker.ExitStopLoss)
			return
		}
		if !pos.TakeProfit.IsZero() && lastPrice.GreaterThanOrEqual(pos.TakeProfit) {
			m.brk.ClosePosition(ctx, pos.TradeID, pos.TakeProfit, broker.ExitTakeProfit)
			return
		}
	case broker.SideShort:
		if !pos.StopLoss.IsZero() && lastPrice.GreaterThanOrEqual(pos.StopLoss) {
			m.brk.ClosePosition(ctx, pos.TradeID, pos.StopLoss, broker.ExitStopLoss)
			return
		}
		if !pos.TakeProfit.IsZero() && lastPrice.LessThanOrEqual(pos.TakeProfit) {
			m.brk.ClosePosition(ctx, pos.TradeID, pos.TakeProfit, broker.ExitTakeProfit)
			return
		}
	}
}
