// Package ingestion implements the Ingestion Pipeline (C3): drives a
// Provider into the Market Store, aggregates ticks into OHLC bars, and
// tracks per-instrument health for the Circuit Breaker's data_feed_down
// check.
package ingestion

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quantaflow/tradecore/pkg/market"
	"github.com/quantaflow/tradecore/pkg/persistence"
	"github.com/quantaflow/tradecore/pkg/provider"
)

const (
	pollInterval    = 5 * time.Second // quotes and depth, both ≤5s per §4.3
	backoffBase     = 100 * time.Millisecond
	backoffFactor   = 2
	backoffCap      = 60 * time.Second
	unhealthyAfter  = 5 // consecutive failures
)

// Pipeline owns one instrument's live data ingestion task.
type Pipeline struct {
	instrument string
	prov       provider.Provider
	store      *market.Store
	persist    persistence.Store
	agg        *Aggregator

	limiter *rate.Limiter // caps poll attempts at pollInterval even if the ticker backs up

	mu               sync.Mutex
	consecutiveFails int
}

// New creates a Pipeline for one instrument. timeframes lists which OHLC
// timeframes the aggregator maintains for it.
func New(instrument string, prov provider.Provider, store *market.Store, persist persistence.Store, timeframes []market.Timeframe) *Pipeline {
	p := &Pipeline{instrument: instrument, prov: prov, store: store, persist: persist}
	p.limiter = rate.NewLimiter(rate.Every(pollInterval), 1)
	p.agg = NewAggregator(store, timeframes)
	store.OnBar(func(t market.Tick) {
		if t.Instrument == instrument {
			p.agg.Ingest(t)
		}
	})
	return p
}

// Healthy reports whether the pipeline has fewer than unhealthyAfter
// consecutive provider failures.
func (p *Pipeline) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveFails < unhealthyAfter
}

// Run drives the live ingestion loop until ctx is cancelled: poll → validate
// → Store.put_tick → Persistence.append, with exponential backoff on
// transient provider errors (§4.3 failure semantics).
func (p *Pipeline) Run(ctx context.Context) {
	backoff := backoffBase
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
			if err := p.pollOnce(ctx); err != nil {
				p.mu.Lock()
				p.consecutiveFails++
				fails := p.consecutiveFails
				p.mu.Unlock()
				if fails >= unhealthyAfter {
					log.Printf("[ingestion] %s unhealthy after %d consecutive failures: %v", p.instrument, fails, err)
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff *= backoffFactor
				if backoff > backoffCap {
					backoff = backoffCap
				}
				continue
			}
			p.mu.Lock()
			p.consecutiveFails = 0
			p.mu.Unlock()
			backoff = backoffBase
		}
	}
}

func (p *Pipeline) pollOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	quotes, err := p.prov.Quote(ctx, []string{p.instrument})
	if err != nil {
		return err
	}
	q, ok := quotes[p.instrument]
	if !ok {
		return nil
	}

	tick := market.Tick{
		Instrument: p.instrument,
		Timestamp:  q.Timestamp,
		LastPrice:  q.LastPrice,
		BidDepth:   q.BidDepth,
		AskDepth:   q.AskDepth,
	}
	if !validate(tick) {
		return nil
	}

	p.store.PutTick(tick)
	if p.persist != nil {
		_ = p.persist.Insert(ctx, persistence.CollectionOHLCHistory, tick) // best-effort; PersistenceTransient handled by Store impl
	}
	return nil
}

// validate applies the minimal tick sanity checks before it reaches the
// store: non-empty instrument and a positive last price.
func validate(t market.Tick) bool {
	return t.Instrument != "" && t.LastPrice.IsPositive()
}
