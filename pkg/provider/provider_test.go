package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/config"
)

func TestFactoryPrefersLiveWhenCredentialsPresent(t *testing.T) {
	p := Factory(config.Default(), &LiveCredentials{APIKey: "k", BaseURL: "http://example.test"}, nil)
	if p.Profile().Name != "live_broker" {
		t.Errorf("Profile().Name = %q, want live_broker", p.Profile().Name)
	}
}

func TestFactoryFallsBackToReplayWhenNoCredentials(t *testing.T) {
	p := Factory(config.Default(), nil, []ReplaySource{{Symbol: "NIFTY"}})
	if p.Profile().Name != "historical_replay" {
		t.Errorf("Profile().Name = %q, want historical_replay", p.Profile().Name)
	}
}

func TestFactoryFallsBackToMockWithNothingConfigured(t *testing.T) {
	p := Factory(config.Default(), nil, nil)
	if p.Profile().Name != "mock" {
		t.Errorf("Profile().Name = %q, want mock", p.Profile().Name)
	}
}

func TestFactoryNeverReturnsNil(t *testing.T) {
	p := Factory(config.Default(), &LiveCredentials{}, nil)
	if p == nil {
		t.Fatal("Factory must never return a nil Provider (empty credentials should fall through)")
	}
	if p.Profile().Name != "mock" {
		t.Errorf("expected empty APIKey to fall through to mock, got %q", p.Profile().Name)
	}
}

func TestMockPlaceOrderIsUnsupported(t *testing.T) {
	m := NewMock()
	_, err := m.PlaceOrder(context.Background(), Order{})
	if !errors.Is(err, ErrOrdersUnsupported) {
		t.Errorf("expected ErrOrdersUnsupported, got %v", err)
	}
}

func TestMockQuoteWalksFromSeed(t *testing.T) {
	m := NewMock()
	m.Seed("NIFTY", decimal.NewFromInt(100))

	quotes, err := m.Quote(context.Background(), []string{"NIFTY"})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	q, ok := quotes["NIFTY"]
	if !ok {
		t.Fatal("expected a quote for NIFTY")
	}
	if q.BidDepth[0].Price.GreaterThanOrEqual(q.AskDepth[0].Price) {
		t.Errorf("expected bid < ask, got bid=%s ask=%s", q.BidDepth[0].Price, q.AskDepth[0].Price)
	}
}
