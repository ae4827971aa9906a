package provider

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/quantaflow/tradecore/pkg/market"
)

// ReplaySource is one pre-recorded candle series fed into a
// HistoricalReplay provider, keyed by symbol.
type ReplaySource struct {
	Symbol  string
	Candles []Candle
}

// HistoricalReplay drives a deterministic replay of pre-recorded candles,
// exposing a virtual clock (Now, a market.Clock) that a Market Store can be
// built over so its freshness reads follow replay time instead of
// wall-clock time (§4.3).
type HistoricalReplay struct {
	mu      sync.RWMutex
	series  map[string][]Candle
	cursors map[string]int
	speed   float64 // 0 = as fast as possible; >0 = real_time * speed
	virtual time.Time
}

// NewHistoricalReplay builds a replay provider over sources, starting the
// virtual clock at the earliest candle timestamp across all series.
func NewHistoricalReplay(sources []ReplaySource, speed float64) *HistoricalReplay {
	series := make(map[string][]Candle, len(sources))
	cursors := make(map[string]int, len(sources))
	var earliest time.Time
	for _, src := range sources {
		cs := append([]Candle(nil), src.Candles...)
		sort.Slice(cs, func(i, j int) bool { return cs[i].Timestamp.Before(cs[j].Timestamp) })
		series[src.Symbol] = cs
		cursors[src.Symbol] = 0
		if len(cs) > 0 && (earliest.IsZero() || cs[0].Timestamp.Before(earliest)) {
			earliest = cs[0].Timestamp
		}
	}
	return &HistoricalReplay{series: series, cursors: cursors, speed: speed, virtual: earliest}
}

// Now returns the replay's current virtual time, satisfying market.Clock.
func (r *HistoricalReplay) Now() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.virtual
}

// Advance emits the next candle for symbol as a Quote and moves the virtual
// clock forward to its timestamp. Returns ok=false once the series is
// exhausted. If speed > 0 the caller should sleep real_time*speed between
// calls itself; Advance does not sleep.
func (r *HistoricalReplay) Advance(symbol string) (Quote, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs := r.series[symbol]
	i := r.cursors[symbol]
	if i >= len(cs) {
		return Quote{}, false
	}
	c := cs[i]
	r.cursors[symbol] = i + 1
	if c.Timestamp.After(r.virtual) {
		r.virtual = c.Timestamp
	}
	return Quote{Symbol: symbol, LastPrice: c.Close, Timestamp: c.Timestamp}, true
}

// Quote implements Provider by returning the most recently advanced price
// for each requested symbol without advancing the cursor.
func (r *HistoricalReplay) Quote(_ context.Context, symbols []string) (map[string]Quote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		cs := r.series[s]
		i := r.cursors[s]
		if i == 0 || i > len(cs) {
			continue
		}
		c := cs[i-1]
		out[s] = Quote{Symbol: s, LastPrice: c.Close, Timestamp: c.Timestamp}
	}
	return out, nil
}

// Historical implements Provider by slicing the recorded series.
func (r *HistoricalReplay) Historical(_ context.Context, symbol string, from, to time.Time, _ market.Timeframe) ([]Candle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Candle
	for _, c := range r.series[symbol] {
		if !c.Timestamp.Before(from) && c.Timestamp.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// PlaceOrder implements Provider; replay has no live order entry.
func (r *HistoricalReplay) PlaceOrder(_ context.Context, _ Order) (string, error) {
	return "", ErrOrdersUnsupported
}

// Profile implements Provider.
func (r *HistoricalReplay) Profile() Profile { return Profile{Name: "historical_replay", Live: false} }
