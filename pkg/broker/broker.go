// Package broker implements the Paper Broker (C8): a simulated fill
// engine and capital ledger, adapted from the teacher's
// pkg/trader/paper Account/Position model — generalized from a
// continuous net-position book to the spec's discrete LONG/SHORT
// position-with-SL/TP model (§4.8).
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/agents"
	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/metrics"
)

// Side is the position direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Status is a position's lifecycle state.
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusClosed    Status = "CLOSED"
	StatusCancelled Status = "CANCELLED"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitManual     ExitReason = "MANUAL"
	ExitRiskHalt   ExitReason = "RISK_HALT"
)

// Position is a single paper trade, matching §3's Position entity.
type Position struct {
	TradeID    string
	Instrument string
	Side       Side
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	Status     Status
	EntryAt    time.Time
	ExitAt     time.Time
	ExitPrice  decimal.Decimal
	ExitReason ExitReason
	Paper      bool
	PnL        decimal.Decimal
	PnLPct     decimal.Decimal

	entryMargin decimal.Decimal
}

// direction returns +1 for LONG, -1 for SHORT, matching §4.7's pnl formula.
func (p *Position) direction() decimal.Decimal {
	if p.Side == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// PlaceResult is place_order's return shape (§4.8).
type PlaceResult struct {
	Status           string
	TradeID          string
	FillPrice        decimal.Decimal
	RejectionReason  string
}

// CloseResult is close_position's return shape (§4.8).
type CloseResult struct {
	Status string
	PnL    decimal.Decimal
}

var (
	ErrSymbolNotAllowed  = errors.New("broker: symbol not allowed")
	ErrHalted            = errors.New("broker: halted")
	ErrInsufficientFunds = errors.New("broker: insufficient capital")
	ErrTooManyPositions  = errors.New("broker: max concurrent positions reached")
	ErrPositionNotFound  = errors.New("broker: position not found")
)

// Broker is the Paper Broker: a capital ledger plus open/closed position
// books, guarded by a single writer (§5 shared-resource policy).
type Broker struct {
	mu sync.Mutex

	initialCapital decimal.Decimal
	capital        decimal.Decimal
	availableCash  decimal.Decimal

	commissionPerTrade decimal.Decimal
	slippageBps        int64
	marginFraction     decimal.Decimal
	maxConcurrent      int
	allowedSymbols     map[string]bool // empty means all symbols allowed

	halted bool

	open   map[string]*Position // trade_id -> position
	closed []*Position

	metrics *metrics.Metrics
}

// New builds a Broker funded with initialCapital, sized and throttled per
// the trading config.
func New(cfg config.TradingConfig, initialCapital decimal.Decimal, m *metrics.Metrics) *Broker {
	return &Broker{
		initialCapital:     initialCapital,
		capital:            initialCapital,
		availableCash:      initialCapital,
		commissionPerTrade: decimal.NewFromFloat(cfg.CommissionPerTrade),
		slippageBps:        cfg.SlippageBps,
		marginFraction:     decimal.NewFromFloat(cfg.MarginFraction),
		maxConcurrent:      cfg.MaxConcurrentPositions,
		allowedSymbols:     make(map[string]bool),
		open:               make(map[string]*Position),
		metrics:            m,
	}
}

// AllowSymbol adds instrument to the allow-list; once any symbol is
// allow-listed, only listed symbols may be traded.
func (b *Broker) AllowSymbol(instrument string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowedSymbols[instrument] = true
}

// SetHalted toggles whether new orders are accepted; Position Monitor
// still force-flats existing positions independent of this flag.
func (b *Broker) SetHalted(halted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.halted = halted
}

// PlaceOrder opens a position from a resolved execution signal, per
// §4.8's contract.
func (b *Broker) PlaceOrder(ctx context.Context, instrument string, signal agents.Action, quantity, lastPrice, stopLoss, takeProfit decimal.Decimal) (PlaceResult, error) {
	if signal != agents.ActionBuy && signal != agents.ActionSell {
		return PlaceResult{}, fmt.Errorf("broker: signal must be BUY or SELL, got %s", signal)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halted {
		return PlaceResult{Status: "rejected", RejectionReason: "halted"}, nil
	}
	if len(b.allowedSymbols) > 0 && !b.allowedSymbols[instrument] {
		return PlaceResult{Status: "rejected", RejectionReason: "symbol_not_allowed"}, nil
	}
	if len(b.open) >= b.maxConcurrent {
		return PlaceResult{Status: "rejected", RejectionReason: "max_concurrent_positions"}, nil
	}

	side := SideLong
	sign := decimal.NewFromInt(1)
	if signal == agents.ActionSell {
		side = SideShort
		sign = decimal.NewFromInt(-1)
	}

	fillPrice := lastPrice.Mul(decimal.NewFromInt(1).Add(sign.Mul(decimal.NewFromInt(b.slippageBps)).Div(decimal.NewFromInt(10000))))
	requiredMargin := fillPrice.Mul(quantity).Mul(b.marginFraction)

	if b.availableCash.LessThan(requiredMargin.Add(b.commissionPerTrade)) {
		return PlaceResult{Status: "rejected", RejectionReason: "insufficient_capital"}, nil
	}

	tradeID := uuid.NewString()
	pos := &Position{
		TradeID:    tradeID,
		Instrument: instrument,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: fillPrice,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		Status:     StatusOpen,
		EntryAt:    time.Now(),
		Paper:      true,
	}
	pos.entryMargin = requiredMargin

	b.availableCash = b.availableCash.Sub(requiredMargin).Sub(b.commissionPerTrade)
	b.open[tradeID] = pos

	if b.metrics != nil {
		b.metrics.TradesOpened.WithLabelValues(instrument, string(side)).Inc()
		b.metrics.OpenPositions.WithLabelValues(instrument).Set(float64(b.countOpenForInstrument(instrument)))
	}

	return PlaceResult{Status: "filled", TradeID: tradeID, FillPrice: fillPrice}, nil
}

func (b *Broker) countOpenForInstrument(instrument string) int {
	n := 0
	for _, p := range b.open {
		if p.Instrument == instrument {
			n++
		}
	}
	return n
}

// ClosePosition closes an OPEN position at exitPrice for reason. Closing
// an already-CLOSED position is idempotent: it returns the recorded
// result without recomputation (§4.8).
func (b *Broker) ClosePosition(ctx context.Context, tradeID string, exitPrice decimal.Decimal, reason ExitReason) (CloseResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pos, ok := b.open[tradeID]; ok {
		return b.closeLocked(pos, exitPrice, reason), nil
	}
	for _, pos := range b.closed {
		if pos.TradeID == tradeID {
			return CloseResult{Status: "closed", PnL: pos.PnL}, nil
		}
	}
	return CloseResult{}, ErrPositionNotFound
}

func (b *Broker) closeLocked(pos *Position, exitPrice decimal.Decimal, reason ExitReason) CloseResult {
	pnl := exitPrice.Sub(pos.EntryPrice).Mul(pos.Quantity).Mul(pos.direction())

	pos.Status = StatusClosed
	pos.ExitAt = time.Now()
	pos.ExitPrice = exitPrice
	pos.ExitReason = reason
	pos.PnL = pnl
	if !pos.EntryPrice.IsZero() {
		pos.PnLPct = pnl.Div(pos.EntryPrice.Mul(pos.Quantity))
	}

	b.capital = b.capital.Add(pnl).Sub(b.commissionPerTrade)
	b.availableCash = b.availableCash.Add(pos.entryMargin).Add(pnl).Sub(b.commissionPerTrade)

	delete(b.open, pos.TradeID)
	b.closed = append(b.closed, pos)

	if b.metrics != nil {
		b.metrics.TradesClosed.WithLabelValues(pos.Instrument, string(reason)).Inc()
		b.metrics.RecordRealizedPnL(pos.Instrument, pnl)
		b.metrics.OpenPositions.WithLabelValues(pos.Instrument).Set(float64(b.countOpenForInstrument(pos.Instrument)))
	}

	return CloseResult{Status: "closed", PnL: pnl}
}

// OpenPositions returns a snapshot of currently open positions (readers
// use a consistent snapshot per §5).
func (b *Broker) OpenPositions() []Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Position, 0, len(b.open))
	for _, p := range b.open {
		out = append(out, *p)
	}
	return out
}

// Capital returns the current capital ledger value: initial + sum(closed
// pnl) - sum(commission), enforced by construction rather than recomputed
// (§8 invariant).
func (b *Broker) Capital() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capital
}

// RecentClosedPnL sums realized pnl across the last n closed positions.
func (b *Broker) RecentClosedPnL(n int) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	sum := decimal.Zero
	start := 0
	if len(b.closed) > n {
		start = len(b.closed) - n
	}
	for _, p := range b.closed[start:] {
		sum = sum.Add(p.PnL)
	}
	return sum
}

// PnLToday sums realized pnl for positions closed since the start of the
// current UTC calendar day, sourcing the Circuit Breaker's daily_loss
// check.
func (b *Broker) PnLToday() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now().UTC().Truncate(24 * time.Hour)
	sum := decimal.Zero
	for _, p := range b.closed {
		if !p.ExitAt.Before(start) {
			sum = sum.Add(p.PnL)
		}
	}
	return sum
}

// OpenNotional sums entry_price*quantity across every open position,
// sourcing the Circuit Breaker's over_leveraged check.
func (b *Broker) OpenNotional() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()

	sum := decimal.Zero
	for _, p := range b.open {
		sum = sum.Add(p.EntryPrice.Mul(p.Quantity))
	}
	return sum
}

// ConsecutiveLosses counts trailing closed positions with negative pnl,
// used by the Circuit Breaker's consecutive_losses check.
func (b *Broker) ConsecutiveLosses() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for i := len(b.closed) - 1; i >= 0; i-- {
		if b.closed[i].PnL.IsNegative() {
			count++
			continue
		}
		break
	}
	return count
}
