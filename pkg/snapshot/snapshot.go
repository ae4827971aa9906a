// Package snapshot implements the Snapshot Builder (C10): a periodic
// aggregator that samples the Market Store and Broker into the compact
// decision-snapshot shape consumed by external dashboards, cached with a
// short TTL per SPEC_FULL.md §4.10.
package snapshot

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/agents"
	"github.com/quantaflow/tradecore/pkg/broker"
	"github.com/quantaflow/tradecore/pkg/market"
	"github.com/quantaflow/tradecore/pkg/metrics"
)

const cacheTTL = 60 * time.Second

// DepthView is the compact depth shape in a snapshot.
type DepthView struct {
	BestBid     decimal.Decimal `json:"best_bid"`
	BestAsk     decimal.Decimal `json:"best_ask"`
	Spread      decimal.Decimal `json:"spread"`
	Imbalance   decimal.Decimal `json:"imbalance"`
	LargeOrders int             `json:"large_orders"`
}

// OptionsView is the compact options-chain shape in a snapshot, matching
// §12's restored imbalance/PCR formulas.
type OptionsView struct {
	FuturesPrice decimal.Decimal `json:"futures_price"`
	ATMStrike    int             `json:"atm_strike"`
	PCR          decimal.Decimal `json:"pcr"`
	TotalCEOI    decimal.Decimal `json:"total_ce_oi"`
	TotalPEOI    decimal.Decimal `json:"total_pe_oi"`
}

// Snapshot is the compact JSON-shaped decision snapshot from §4.10.
type Snapshot struct {
	Instrument          string          `json:"instrument"`
	At                  time.Time       `json:"at"`
	LastPrice           decimal.Decimal `json:"ltp"`
	Depth               *DepthView      `json:"depth,omitempty"`
	Options             *OptionsView    `json:"options,omitempty"`
	LatestSignal        agents.Action   `json:"latest_signal"`
	OpenPositionsCount  int             `json:"open_positions_count"`
	RecentPnL           decimal.Decimal `json:"recent_pnl"`
}

type cacheEntry struct {
	snap     Snapshot
	builtAt  time.Time
}

// Builder samples a Store + Broker into Snapshots, caching each
// instrument's result for cacheTTL.
type Builder struct {
	store *market.Store
	brk   *broker.Broker

	mu          sync.Mutex
	cache       map[string]cacheEntry
	lastSignal  map[string]agents.Action

	metrics *metrics.Metrics
}

// New builds a Builder over store and brk.
func New(store *market.Store, brk *broker.Broker, m *metrics.Metrics) *Builder {
	return &Builder{
		store:      store,
		brk:        brk,
		cache:      make(map[string]cacheEntry),
		lastSignal: make(map[string]agents.Action),
		metrics:    m,
	}
}

// RecordSignal updates the latest signal surfaced for instrument; the
// Decision Scheduler calls this after each completed cycle.
func (b *Builder) RecordSignal(instrument string, signal agents.Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSignal[instrument] = signal
}

// Build returns the cached snapshot for instrument if still fresh,
// otherwise rebuilds it.
func (b *Builder) Build(instrument string) Snapshot {
	b.mu.Lock()
	if entry, ok := b.cache[instrument]; ok && time.Since(entry.builtAt) < cacheTTL {
		defer b.mu.Unlock()
		return entry.snap
	}
	b.mu.Unlock()

	start := time.Now()
	snap := b.build(instrument)
	if b.metrics != nil {
		b.metrics.SnapshotBuildSeconds.Observe(time.Since(start).Seconds())
	}

	b.mu.Lock()
	b.cache[instrument] = cacheEntry{snap: snap, builtAt: time.Now()}
	b.mu.Unlock()

	return snap
}

func (b *Builder) build(instrument string) Snapshot {
	b.mu.Lock()
	signal := b.lastSignal[instrument]
	b.mu.Unlock()

	lastPrice, _ := b.store.LatestPrice(instrument)
	snap := Snapshot{
		Instrument:         instrument,
		At:                 time.Now(),
		LastPrice:          lastPrice,
		LatestSignal:       signal,
		OpenPositionsCount: b.countOpen(instrument),
		RecentPnL:          b.brk.RecentClosedPnL(10),
	}

	if depth := b.store.Depth(instrument); depth != nil {
		snap.Depth = &DepthView{
			BestBid:     depth.BestBid().Price,
			BestAsk:     depth.BestAsk().Price,
			Spread:      depth.Spread(),
			Imbalance:   depth.Imbalance(),
			LargeOrders: len(depth.LargeOrders(decimal.NewFromFloat(3.0))),
		}
	}

	if chain, ok := b.store.OptionsChain(instrument, cacheTTL); ok {
		snap.Options = buildOptionsView(&chain)
	}

	return snap
}

func (b *Builder) countOpen(instrument string) int {
	n := 0
	for _, p := range b.brk.OpenPositions() {
		if p.Instrument == instrument {
			n++
		}
	}
	return n
}

func buildOptionsView(chain *market.OptionsChainSnapshot) *OptionsView {
	totalCEOI := decimal.Zero
	totalPEOI := decimal.Zero
	atm := 0
	closest := decimal.Decimal{}
	first := true
	for strike, s := range chain.Strikes {
		totalCEOI = totalCEOI.Add(s.CEOI)
		totalPEOI = totalPEOI.Add(s.PEOI)

		diff := decimal.NewFromInt(int64(strike)).Sub(chain.FuturesPrice).Abs()
		if first || diff.LessThan(closest) || (diff.Equal(closest) && strike < atm) {
			closest = diff
			atm = strike
			first = false
		}
	}

	pcr := decimal.Zero
	if !totalCEOI.IsZero() {
		pcr = totalPEOI.Div(totalCEOI)
	}

	return &OptionsView{
		FuturesPrice: chain.FuturesPrice,
		ATMStrike:    atm,
		PCR:          pcr,
		TotalCEOI:    totalCEOI,
		TotalPEOI:    totalPEOI,
	}
}
