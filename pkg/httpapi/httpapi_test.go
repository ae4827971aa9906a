package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantaflow/tradecore/pkg/agents"
	"github.com/quantaflow/tradecore/pkg/market"
)

func TestHandleHealthReflectsFreshness(t *testing.T) {
	store := market.NewStore(market.WallClock{})
	store.PutTick(market.Tick{Instrument: "NIFTY", Timestamp: time.Now(), LastPrice: decimal.NewFromInt(100)})
	store.PutDepth("NIFTY", []market.PriceLevel{{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(10)}}, nil, time.Now())

	srv := New(":0", time.Second, time.Second, Sources{Store: store, Instrument: "NIFTY"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok for a fresh tick and fresh depth", body["status"])
	}
}

func TestHandleHealthDegradedWithStaleDepthDespiteFreshTick(t *testing.T) {
	store := market.NewStore(market.WallClock{})
	store.PutTick(market.Tick{Instrument: "NIFTY", Timestamp: time.Now(), LastPrice: decimal.NewFromInt(100)})
	store.PutDepth("NIFTY", []market.PriceLevel{{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(10)}}, nil, time.Now().Add(-10*time.Minute))

	srv := New(":0", time.Second, time.Second, Sources{Store: store, Instrument: "NIFTY"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	var body map[string]any
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded when depth_age_seconds exceeds the 180s threshold", body["status"])
	}
}

func TestHandleHealthDegradedWithoutAnyTicks(t *testing.T) {
	store := market.NewStore(market.WallClock{})
	srv := New(":0", time.Second, time.Second, Sources{Store: store, Instrument: "NIFTY"})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	var body map[string]any
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded with no ticks ingested", body["status"])
	}
}

func TestHandleLatestSignalWithoutACycleReturnsHold(t *testing.T) {
	srv := New(":0", time.Second, time.Second, Sources{Store: market.NewStore(market.WallClock{})})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/latest-signal", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	var body map[string]any
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["signal"] != string(agents.ActionHold) {
		t.Errorf("signal = %v, want HOLD when no cycle has run yet", body["signal"])
	}
}

func TestHandleLatestSignalAliasesEntryPrice(t *testing.T) {
	src := Sources{
		Store: market.NewStore(market.WallClock{}),
		LatestCycle: func() (agents.CycleResult, bool) {
			return agents.CycleResult{FinalSignal: agents.ActionBuy, Entry: decimal.NewFromInt(100)}, true
		},
	}
	srv := New(":0", time.Second, time.Second, src)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/latest-signal", nil)
	srv.srv.Handler.ServeHTTP(rr, req)

	var body map[string]any
	json.Unmarshal(rr.Body.Bytes(), &body)
	if _, ok := body["entryPrice"]; !ok {
		t.Errorf("expected the camelCase entryPrice alias in the response, got %v", body)
	}
}
