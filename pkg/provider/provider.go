// Package provider implements the Provider Adapter (C2): a polymorphic
// unified source of quotes, depth, and history from either a live broker,
// a deterministic historical replay, or an in-memory mock.
package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/market"
)

// Quote is a point-in-time price read for one symbol.
type Quote struct {
	Symbol    string
	LastPrice decimal.Decimal
	BidDepth  []market.PriceLevel
	AskDepth  []market.PriceLevel
	Timestamp time.Time
}

// Candle is one OHLCV row returned by Historical.
type Candle struct {
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
}

// Profile describes a provider for diagnostics/health reporting.
type Profile struct {
	Name string
	Live bool
}

// Order is the minimal live-order request shape; place_order is optional
// capability (only LiveBroker variants implement it meaningfully).
type Order struct {
	Instrument string
	Side       market.Side
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal // zero means market order
}

// Provider is the capability set every variant (LiveBroker, HistoricalReplay,
// Mock) satisfies. Callers depend only on this interface, never on a
// concrete variant type — the factory below is the sole place that chooses
// among them.
type Provider interface {
	Quote(ctx context.Context, symbols []string) (map[string]Quote, error)
	Historical(ctx context.Context, symbol string, from, to time.Time, interval market.Timeframe) ([]Candle, error)
	PlaceOrder(ctx context.Context, order Order) (string, error)
	Profile() Profile
}

// ErrOrdersUnsupported is returned by PlaceOrder on variants with no live
// order-entry capability (HistoricalReplay, Mock).
var ErrOrdersUnsupported = providerError("provider does not support order placement")

type providerError string

func (e providerError) Error() string { return string(e) }

// Factory selects the concrete Provider variant at startup. Live-broker
// credential bootstrap is out of scope (§1 non-goal: "Authentication to
// external broker APIs"), so liveCredentials is supplied by the caller
// after its own out-of-band bootstrap; an empty value means no live
// provider is usable and the factory falls back to HistoricalReplay (if
// replay sources were given) or Mock — never nil, so callers never need a
// nil-check branch (§4.2).
func Factory(cfg *config.Config, liveCredentials *LiveCredentials, replay []ReplaySource) Provider {
	if liveCredentials != nil && liveCredentials.APIKey != "" {
		return NewLiveBroker(cfg, *liveCredentials)
	}
	if len(replay) > 0 {
		return NewHistoricalReplay(replay, 1.0)
	}
	return NewMock()
}

// LiveCredentials bundles whatever a real broker integration needs to
// authenticate; the core treats this as an opaque, pre-bootstrapped value.
type LiveCredentials struct {
	APIKey  string
	BaseURL string
}
