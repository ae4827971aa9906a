package ingestion

import (
	"sync"

	"github.com/quantaflow/tradecore/pkg/market"
)

// Aggregator maintains one open OHLC bar per (instrument, timeframe) and
// finalizes it when a tick crosses the next timeframe boundary (§4.3).
// Replaying the same tick stream through a fresh Aggregator always
// produces identical bars — it is a pure function of the tick stream plus
// timeframe (§8 round-trip property).
type Aggregator struct {
	store      *market.Store
	timeframes []market.Timeframe

	mu   sync.Mutex
	open map[key]*market.OHLCBar
}

type key struct {
	instrument string
	tf         market.Timeframe
}

// NewAggregator creates an Aggregator that will maintain bars for the given
// timeframes as ticks are ingested.
func NewAggregator(store *market.Store, timeframes []market.Timeframe) *Aggregator {
	return &Aggregator{store: store, timeframes: timeframes, open: make(map[key]*market.OHLCBar)}
}

// Ingest folds one tick into every configured timeframe's open bar,
// finalizing and emitting the previous bar when the tick's timestamp
// crosses a new boundary. A tick landing exactly on the boundary belongs
// to the new bar (§8 boundary behavior).
func (a *Aggregator) Ingest(t market.Tick) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, tf := range a.timeframes {
		k := key{t.Instrument, tf}
		start := market.AlignBoundary(t.Timestamp, tf)

		bar, ok := a.open[k]
		if ok && bar.StartAt.Equal(start) {
			if t.LastPrice.GreaterThan(bar.High) {
				bar.High = t.LastPrice
			}
			if t.LastPrice.LessThan(bar.Low) {
				bar.Low = t.LastPrice
			}
			bar.Close = t.LastPrice
			bar.Volume = bar.Volume.Add(t.Volume)
			a.store.PutBar(*bar)
			continue
		}

		if ok {
			bar.Closed = true
			a.store.PutBar(*bar)
		}

		newBar := &market.OHLCBar{
			Instrument: t.Instrument,
			Timeframe:  tf,
			StartAt:    start,
			Open:       t.LastPrice,
			High:       t.LastPrice,
			Low:        t.LastPrice,
			Close:      t.LastPrice,
			Volume:     t.Volume,
			Closed:     false,
		}
		a.open[k] = newBar
		a.store.PutBar(*newBar)
	}
}
