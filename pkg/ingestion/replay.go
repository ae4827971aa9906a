package ingestion

import (
	"context"
	"time"

	"github.com/quantaflow/tradecore/pkg/market"
	"github.com/quantaflow/tradecore/pkg/provider"
)

// ReplayRunner drives a HistoricalReplay provider's virtual clock into the
// Market Store, emitting ticks at either real_time*speed (speed>0) or as
// fast as possible (speed=0), per §4.3 mode 2.
type ReplayRunner struct {
	instrument string
	replay     *provider.HistoricalReplay
	store      *market.Store
	agg        *Aggregator
	speed      float64
}

// NewReplayRunner builds a ReplayRunner for one instrument.
func NewReplayRunner(instrument string, replay *provider.HistoricalReplay, store *market.Store, timeframes []market.Timeframe, speed float64) *ReplayRunner {
	r := &ReplayRunner{instrument: instrument, replay: replay, store: store, speed: speed}
	r.agg = NewAggregator(store, timeframes)
	store.OnBar(func(t market.Tick) {
		if t.Instrument == instrument {
			r.agg.Ingest(t)
		}
	})
	return r
}

// Run emits every remaining candle in the replay as a tick until the
// series is exhausted or ctx is cancelled.
func (r *ReplayRunner) Run(ctx context.Context) {
	var lastTs time.Time
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		q, ok := r.replay.Advance(r.instrument)
		if !ok {
			return
		}

		if r.speed > 0 && !lastTs.IsZero() {
			wait := time.Duration(float64(q.Timestamp.Sub(lastTs)) * r.speed)
			if wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}
		lastTs = q.Timestamp

		r.store.PutTick(market.Tick{
			Instrument: r.instrument,
			Timestamp:  q.Timestamp,
			LastPrice:  q.LastPrice,
		})
	}
}
