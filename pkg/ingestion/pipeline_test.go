package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/market"
	"github.com/quantaflow/tradecore/pkg/provider"
)

type stubProvider struct {
	quotes map[string]provider.Quote
	err    error
}

func (s *stubProvider) Quote(_ context.Context, symbols []string) (map[string]provider.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.quotes, nil
}
func (s *stubProvider) Historical(context.Context, string, time.Time, time.Time, market.Timeframe) ([]provider.Candle, error) {
	return nil, nil
}
func (s *stubProvider) PlaceOrder(context.Context, provider.Order) (string, error) {
	return "", provider.ErrOrdersUnsupported
}
func (s *stubProvider) Profile() provider.Profile { return provider.Profile{Name: "stub"} }

func TestValidateRejectsEmptyInstrumentOrNonPositivePrice(t *testing.T) {
	if validate(market.Tick{Instrument: "", LastPrice: decimal.NewFromInt(100)}) {
		t.Error("expected empty instrument to fail validation")
	}
	if validate(market.Tick{Instrument: "NIFTY", LastPrice: decimal.Zero}) {
		t.Error("expected zero price to fail validation")
	}
	if validate(market.Tick{Instrument: "NIFTY", LastPrice: decimal.NewFromInt(-5)}) {
		t.Error("expected negative price to fail validation")
	}
	if !validate(market.Tick{Instrument: "NIFTY", LastPrice: decimal.NewFromInt(100)}) {
		t.Error("expected a valid tick to pass validation")
	}
}

func TestPollOncePutsValidatedTickIntoStore(t *testing.T) {
	store := market.NewStore(market.WallClock{})
	prov := &stubProvider{quotes: map[string]provider.Quote{
		"NIFTY": {Symbol: "NIFTY", LastPrice: decimal.NewFromInt(123), Timestamp: time.Now()},
	}}
	p := New("NIFTY", prov, store, nil, []market.Timeframe{market.TF1m})

	if err := p.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	price, ok := store.LatestPrice("NIFTY")
	if !ok || !price.Equal(decimal.NewFromInt(123)) {
		t.Errorf("LatestPrice = %s, ok=%v", price, ok)
	}
}

func TestHealthyReflectsConsecutiveFailureCount(t *testing.T) {
	store := market.NewStore(market.WallClock{})
	prov := &stubProvider{err: errors.New("boom")}
	p := New("NIFTY", prov, store, nil, nil)

	if !p.Healthy() {
		t.Fatal("expected a fresh pipeline to be healthy")
	}

	for i := 0; i < unhealthyAfter; i++ {
		p.pollOnce(context.Background())
		p.mu.Lock()
		p.consecutiveFails++
		p.mu.Unlock()
	}
	// pollOnce itself doesn't track failures (Run does); drive the counter
	// directly to confirm Healthy()'s threshold behavior.
	if p.Healthy() {
		t.Error("expected Healthy() to be false once consecutiveFails reaches unhealthyAfter")
	}
}
