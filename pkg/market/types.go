// Package market implements the Market Store (C1): the in-memory hot store
// of per-instrument latest state — ticks, OHLC bars, depth and options chain
// snapshots — plus the L2 depth book behind its depth reads.
package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upper = cases.Upper(language.Und)

// Instrument identifies one tradeable symbol. Immutable once created.
type Instrument struct {
	Symbol   string
	Exchange string
	Kind     Kind
}

// Kind enumerates the supported asset classes.
type Kind string

const (
	KindIndex  Kind = "index"
	KindFuture Kind = "future"
	KindOption Kind = "option"
	KindSpot   Kind = "spot"
)

// Key returns the canonical store key: uppercase symbol, separators removed.
func (i Instrument) Key() string {
	s := upper.String(i.Symbol)
	s = strings.NewReplacer("-", "", "_", "", " ", "", "/", "").Replace(s)
	return s
}

// Tick is a single market data update for one instrument at one instant.
type Tick struct {
	Instrument    string
	Timestamp     time.Time
	LastPrice     decimal.Decimal
	Volume        decimal.Decimal
	BidDepth      []PriceLevel // at most 5 levels
	AskDepth      []PriceLevel // at most 5 levels
	BidQtyTotal   decimal.Decimal
	AskQtyTotal   decimal.Decimal
}

// PriceLevel is one rung of a depth ladder.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Timeframe is an OHLC bar width.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// Duration returns the wall-clock width of the timeframe.
func (t Timeframe) Duration() time.Duration {
	switch t {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	default:
		return time.Minute
	}
}

// OHLCBar is an open/high/low/close/volume window for one (instrument,
// timeframe) pair.
type OHLCBar struct {
	Instrument string
	Timeframe  Timeframe
	StartAt    time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     decimal.Decimal
	Closed     bool // true once finalized; false while still the open bar
}

// AlignBoundary floors t to the start of its timeframe window.
func AlignBoundary(t time.Time, tf Timeframe) time.Time {
	d := tf.Duration()
	return t.Truncate(d)
}

// OptionStrike carries one strike row of an options chain.
type OptionStrike struct {
	CELTP    decimal.Decimal
	CEOI     decimal.Decimal
	CEVolume decimal.Decimal
	PELTP    decimal.Decimal
	PEOI     decimal.Decimal
	PEVolume decimal.Decimal
}

// OptionsChainSnapshot is the at-most-one-current, TTL-bounded options view
// for an instrument.
type OptionsChainSnapshot struct {
	Instrument   string
	At           time.Time
	FuturesPrice decimal.Decimal
	Strikes      map[int]OptionStrike
	Expiry       time.Time
}

// Clock abstracts wall-clock vs. historical-replay virtual time. The Store
// consults it in Age, so freshness checks (the Decision Scheduler's
// included) follow whichever clock the Store was built with; the Position
// Monitor does not read it.
type Clock interface {
	Now() time.Time
}

// WallClock is the live Clock implementation.
type WallClock struct{}

// Now returns time.Now().
func (WallClock) Now() time.Time { return time.Now() }
