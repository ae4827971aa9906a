package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/market"
)

// quoteTimeout is the provider quote-call bound from §5.
const quoteTimeout = 5 * time.Second

// LiveBroker talks to a real broker's quote/order HTTP API. Authentication
// bootstrap happens before construction (§1 non-goal); this type only
// carries the already-bootstrapped credentials.
type LiveBroker struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewLiveBroker builds a LiveBroker from bootstrapped credentials.
func NewLiveBroker(_ *config.Config, creds LiveCredentials) *LiveBroker {
	return &LiveBroker{
		baseURL: creds.BaseURL,
		apiKey:  creds.APIKey,
		client:  &http.Client{Timeout: quoteTimeout},
	}
}

type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last_price"`
}

// Quote implements Provider over HTTP, bounding each call to quoteTimeout.
func (b *LiveBroker) Quote(ctx context.Context, symbols []string) (map[string]Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, quoteTimeout)
	defer cancel()

	out := make(map[string]Quote, len(symbols))
	for _, sym := range symbols {
		q, err := b.fetchQuote(ctx, sym)
		if err != nil {
			return nil, fmt.Errorf("quote %s: %w", sym, err)
		}
		out[sym] = q
	}
	return out, nil
}

func (b *LiveBroker) fetchQuote(ctx context.Context, symbol string) (Quote, error) {
	url := fmt.Sprintf("%s/v1/quote?symbol=%s", b.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return Quote{}, err
	}
	return Quote{
		Symbol:    symbol,
		LastPrice: decimal.NewFromFloat(qr.Last),
		Timestamp: time.Now(),
	}, nil
}

// Historical implements Provider over HTTP.
func (b *LiveBroker) Historical(ctx context.Context, symbol string, from, to time.Time, interval market.Timeframe) ([]Candle, error) {
	url := fmt.Sprintf("%s/v1/candles?symbol=%s&from=%s&to=%s&interval=%s",
		b.baseURL, symbol, from.Format(time.RFC3339), to.Format(time.RFC3339), interval)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var rows []struct {
		T              time.Time `json:"timestamp"`
		O, H, L, C, V  float64
	}
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}
	out := make([]Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, Candle{
			Timestamp: r.T,
			Open:      decimal.NewFromFloat(r.O),
			High:      decimal.NewFromFloat(r.H),
			Low:       decimal.NewFromFloat(r.L),
			Close:     decimal.NewFromFloat(r.C),
			Volume:    decimal.NewFromFloat(r.V),
		})
	}
	return out, nil
}

// PlaceOrder implements Provider's optional live order-entry path.
func (b *LiveBroker) PlaceOrder(ctx context.Context, order Order) (string, error) {
	payload, err := json.Marshal(order)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+b.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("order rejected: status %d", resp.StatusCode)
	}
	var out struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.OrderID, nil
}

// Profile implements Provider.
func (b *LiveBroker) Profile() Profile { return Profile{Name: "live_broker", Live: true} }
