package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const ringCapacity = 1000
const barsPerTimeframe = 500

// BarCallback is invoked whenever the store receives a tick, after the
// latest-tick/price bookkeeping has been updated. The Ingestion Pipeline's
// OHLC aggregator registers one of these to fold ticks into bars.
type BarCallback func(Tick)

type instrumentState struct {
	mu sync.RWMutex

	latestTick Tick
	hasTick    bool

	ticks    []Tick // bounded ring, oldest-first
	ticksPos int

	bars map[Timeframe][]OHLCBar // oldest-first per timeframe, most recent bar last

	depth    *DepthBook
	depthAt  time.Time
	hasDepth bool
	chain    *OptionsChainSnapshot
}

// Store is the Market Store (C1): an in-memory, per-instrument hot cache of
// latest tick, OHLC bars, depth and options chain state. Many readers,
// single writer per instrument.
type Store struct {
	clock Clock

	mu    sync.RWMutex
	state map[string]*instrumentState

	barMu     sync.RWMutex
	barHook   BarCallback
}

// NewStore creates an empty Market Store. clock is consulted by Age; pass
// market.WallClock{} for live operation or a replay's virtual clock during
// historical replay.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = WallClock{}
	}
	return &Store{clock: clock, state: make(map[string]*instrumentState)}
}

// OnBar registers the callback invoked after every PutTick. Only one
// callback is kept: the Ingestion Pipeline and the ReplayRunner each
// register their aggregator here, and a later registration replaces the
// earlier one.
func (s *Store) OnBar(cb BarCallback) {
	s.barMu.Lock()
	defer s.barMu.Unlock()
	s.barHook = cb
}

func (s *Store) stateFor(instrument string) *instrumentState {
	s.mu.RLock()
	st, ok := s.state[instrument]
	s.mu.RUnlock()
	if ok {
		return st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok = s.state[instrument]; ok {
		return st
	}
	st = &instrumentState{
		ticks: make([]Tick, 0, ringCapacity),
		bars:  make(map[Timeframe][]OHLCBar),
		depth: NewDepthBook(instrument),
	}
	s.state[instrument] = st
	return st
}

// PutTick records a tick as the latest state for its instrument and appends
// it to the bounded ring. latest_price and latest_ts are updated under the
// same lock so a reader never observes a stale latest_ts with a fresh
// latest_price (§4.1 freshness contract).
func (s *Store) PutTick(t Tick) {
	st := s.stateFor(t.Instrument)

	st.mu.Lock()
	st.latestTick = t
	st.hasTick = true
	if len(st.ticks) < ringCapacity {
		st.ticks = append(st.ticks, t)
	} else {
		st.ticks[st.ticksPos] = t
		st.ticksPos = (st.ticksPos + 1) % ringCapacity
	}
	if len(t.BidDepth) > 0 || len(t.AskDepth) > 0 {
		st.depth.SetLevels(t.BidDepth, t.AskDepth)
		st.depthAt = t.Timestamp
		st.hasDepth = true
	}
	st.mu.Unlock()

	s.barMu.RLock()
	hook := s.barHook
	s.barMu.RUnlock()
	if hook != nil {
		hook(t)
	}
}

// PutBar appends or replaces the bar for its (instrument, timeframe),
// keeping at most barsPerTimeframe entries.
func (s *Store) PutBar(b OHLCBar) {
	st := s.stateFor(b.Instrument)

	st.mu.Lock()
	defer st.mu.Unlock()

	bars := st.bars[b.Timeframe]
	if n := len(bars); n > 0 && !bars[n-1].Closed && bars[n-1].StartAt.Equal(b.StartAt) {
		bars[n-1] = b // update the still-open bar in place
	} else {
		bars = append(bars, b)
		if len(bars) > barsPerTimeframe {
			bars = bars[len(bars)-barsPerTimeframe:]
		}
	}
	st.bars[b.Timeframe] = bars
}

// PutDepth replaces the depth ladder for an instrument, recording at as
// the depth snapshot's timestamp for DepthAge.
func (s *Store) PutDepth(instrument string, bids, asks []PriceLevel, at time.Time) {
	st := s.stateFor(instrument)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.depth.SetLevels(bids, asks)
	st.depthAt = at
	st.hasDepth = true
}

// PutOptionsChain replaces the current options chain snapshot.
func (s *Store) PutOptionsChain(snap OptionsChainSnapshot) {
	st := s.stateFor(snap.Instrument)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.chain = &snap
}

// LatestPrice returns the last known price for an instrument.
func (s *Store) LatestPrice(instrument string) (decimal.Decimal, bool) {
	st := s.stateFor(instrument)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.hasTick {
		return decimal.Zero, false
	}
	return st.latestTick.LastPrice, true
}

// LatestTick returns the last received tick for an instrument.
func (s *Store) LatestTick(instrument string) (Tick, bool) {
	st := s.stateFor(instrument)
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.latestTick, st.hasTick
}

// Depth returns the live depth book for an instrument (shared, not a copy;
// callers use its own locking).
func (s *Store) Depth(instrument string) *DepthBook {
	return s.stateFor(instrument).depth
}

// OptionsChain returns the current options chain snapshot, if any and not
// expired beyond ttl.
func (s *Store) OptionsChain(instrument string, ttl time.Duration) (OptionsChainSnapshot, bool) {
	st := s.stateFor(instrument)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.chain == nil {
		return OptionsChainSnapshot{}, false
	}
	if ttl > 0 && s.clock.Now().Sub(st.chain.At) > ttl {
		return OptionsChainSnapshot{}, false
	}
	return *st.chain, true
}

// RecentBars returns up to limit bars for (instrument, timeframe),
// oldest-first, as required for indicator calculation (§4.1).
func (s *Store) RecentBars(instrument string, tf Timeframe, limit int) []OHLCBar {
	st := s.stateFor(instrument)
	st.mu.RLock()
	defer st.mu.RUnlock()

	bars := st.bars[tf]
	if limit <= 0 || limit >= len(bars) {
		out := make([]OHLCBar, len(bars))
		copy(out, bars)
		return out
	}
	out := make([]OHLCBar, limit)
	copy(out, bars[len(bars)-limit:])
	return out
}

// Age returns the elapsed time since the latest tick for an instrument.
// An instrument with no ticks yet reports a very large age so freshness
// checks fail closed.
func (s *Store) Age(instrument string) time.Duration {
	st := s.stateFor(instrument)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.hasTick {
		return time.Duration(1<<62 - 1)
	}
	return s.clock.Now().Sub(st.latestTick.Timestamp)
}

// DepthAge returns the elapsed time since the last depth-ladder update for
// an instrument. An instrument with no depth snapshot yet reports a very
// large age so freshness checks fail closed, matching Age.
func (s *Store) DepthAge(instrument string) time.Duration {
	st := s.stateFor(instrument)
	st.mu.RLock()
	defer st.mu.RUnlock()
	if !st.hasDepth {
		return time.Duration(1<<62 - 1)
	}
	return s.clock.Now().Sub(st.depthAt)
}
