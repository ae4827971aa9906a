package provider

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/market"
)

// Mock is an in-memory Provider variant for tests and offline development.
// It generates a gentle random walk from a seed price per symbol.
type Mock struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
}

// NewMock creates a Mock provider.
func NewMock() *Mock {
	return &Mock{
		prices: make(map[string]decimal.Decimal),
		rng:    rand.New(rand.NewSource(1)),
	}
}

// Seed sets the starting price for a symbol.
func (m *Mock) Seed(symbol string, price decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = price
}

func (m *Mock) priceFor(symbol string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prices[symbol]
	if !ok {
		p = decimal.NewFromInt(100)
	}
	step := decimal.NewFromFloat((m.rng.Float64() - 0.5) * 0.2)
	p = p.Add(step)
	m.prices[symbol] = p
	return p
}

// Quote implements Provider.
func (m *Mock) Quote(_ context.Context, symbols []string) (map[string]Quote, error) {
	out := make(map[string]Quote, len(symbols))
	for _, s := range symbols {
		price := m.priceFor(s)
		out[s] = Quote{
			Symbol:    s,
			LastPrice: price,
			Timestamp: time.Now(),
			BidDepth:  []market.PriceLevel{{Price: price.Sub(decimal.NewFromFloat(0.1)), Size: decimal.NewFromInt(10)}},
			AskDepth:  []market.PriceLevel{{Price: price.Add(decimal.NewFromFloat(0.1)), Size: decimal.NewFromInt(10)}},
		}
	}
	return out, nil
}

// Historical implements Provider with a flat synthetic series.
func (m *Mock) Historical(_ context.Context, symbol string, from, to time.Time, interval market.Timeframe) ([]Candle, error) {
	var out []Candle
	step := interval.Duration()
	for t := from; t.Before(to); t = t.Add(step) {
		p := m.priceFor(symbol)
		out = append(out, Candle{Timestamp: t, Open: p, High: p, Low: p, Close: p, Volume: decimal.NewFromInt(1)})
	}
	return out, nil
}

// PlaceOrder implements Provider; Mock has no live order entry.
func (m *Mock) PlaceOrder(_ context.Context, _ Order) (string, error) {
	return "", ErrOrdersUnsupported
}

// Profile implements Provider.
func (m *Mock) Profile() Profile { return Profile{Name: "mock", Live: false} }
