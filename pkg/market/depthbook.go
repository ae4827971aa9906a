package market

import (
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Side is the side of a simulated fill against the book.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// MaxDepthLevels bounds the retained ladder per side (§3 Tick invariant:
// bid_depth/ask_depth ≤ 5).
const MaxDepthLevels = 5

// DepthBook is an L2 depth ladder for one instrument, bounded to
// MaxDepthLevels per side. It backs the Market Store's depth reads; the
// Paper Broker does not use it and prices fills from the last price plus
// its slippage bps.
type DepthBook struct {
	Instrument string

	mu   sync.RWMutex
	bids []PriceLevel // sorted descending by price (best bid first)
	asks []PriceLevel // sorted ascending by price (best ask first)
}

// NewDepthBook creates an empty book for the given instrument.
func NewDepthBook(instrument string) *DepthBook {
	return &DepthBook{Instrument: instrument}
}

// SetLevels replaces both sides, truncating to MaxDepthLevels and sorting
// into best-first order.
func (d *DepthBook) SetLevels(bids, asks []PriceLevel) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.bids = sortedCopy(bids, true)
	d.asks = sortedCopy(asks, false)
	if len(d.bids) > MaxDepthLevels {
		d.bids = d.bids[:MaxDepthLevels]
	}
	if len(d.asks) > MaxDepthLevels {
		d.asks = d.asks[:MaxDepthLevels]
	}
}

func sortedCopy(levels []PriceLevel, descending bool) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	copy(out, levels)
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// BestBid returns the best bid level, or a zero level if the book is empty.
func (d *DepthBook) BestBid() PriceLevel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.bids) == 0 {
		return PriceLevel{}
	}
	return d.bids[0]
}

// BestAsk returns the best ask level, or a zero level if the book is empty.
func (d *DepthBook) BestAsk() PriceLevel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.asks) == 0 {
		return PriceLevel{}
	}
	return d.asks[0]
}

// Spread returns best-ask minus best-bid, or zero if either side is empty.
func (d *DepthBook) Spread() decimal.Decimal {
	bid, ask := d.BestBid(), d.BestAsk()
	if bid.Price.IsZero() || ask.Price.IsZero() {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// Imbalance computes (bid_qty_total - ask_qty_total) / (bid_qty_total +
// ask_qty_total), the decision-snapshot depth-imbalance metric.
func (d *DepthBook) Imbalance() decimal.Decimal {
	d.mu.RLock()
	defer d.mu.RUnlock()

	bidTotal, askTotal := decimal.Zero, decimal.Zero
	for _, l := range d.bids {
		bidTotal = bidTotal.Add(l.Size)
	}
	for _, l := range d.asks {
		askTotal = askTotal.Add(l.Size)
	}
	sum := bidTotal.Add(askTotal)
	if sum.IsZero() {
		return decimal.Zero
	}
	return bidTotal.Sub(askTotal).Div(sum)
}

// LargeOrders returns price levels (from both sides) whose size exceeds
// multiple times the level-average size on their side.
func (d *DepthBook) LargeOrders(multiple decimal.Decimal) []PriceLevel {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []PriceLevel
	out = append(out, largeOnSide(d.bids, multiple)...)
	out = append(out, largeOnSide(d.asks, multiple)...)
	return out
}

func largeOnSide(levels []PriceLevel, multiple decimal.Decimal) []PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Size)
	}
	avg := total.Div(decimal.NewFromInt(int64(len(levels))))
	threshold := avg.Mul(multiple)
	var out []PriceLevel
	for _, l := range levels {
		if l.Size.GreaterThan(threshold) {
			out = append(out, l)
		}
	}
	return out
}

// VolumeWeightedPrice returns the average fill price to fill size on the
// given side by walking the book, without mutating it.
func (d *DepthBook) VolumeWeightedPrice(side Side, size decimal.Decimal) (decimal.Decimal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	levels := d.asks
	if side == SideSell {
		levels = d.bids
	}
	if len(levels) == 0 {
		return decimal.Zero, fmt.Errorf("no liquidity on %s side", side)
	}

	remaining := size
	totalCost := decimal.Zero
	for _, level := range levels {
		if remaining.IsZero() {
			break
		}
		fillSize := level.Size
		if fillSize.GreaterThan(remaining) {
			fillSize = remaining
		}
		totalCost = totalCost.Add(level.Price.Mul(fillSize))
		remaining = remaining.Sub(fillSize)
	}
	if remaining.GreaterThan(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("insufficient liquidity: needed %s, missing %s", size, remaining)
	}
	return totalCost.Div(size), nil
}
