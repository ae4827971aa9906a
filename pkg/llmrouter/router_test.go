package llmrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quantaflow/tradecore/pkg/config"
)

func openAIServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status != http.StatusOK {
			w.Write([]byte(`{"error":"boom"}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
		})
	}))
}

func TestCallReturnsTextFromHighestPriorityProvider(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, "hello from primary")
	defer srv.Close()

	r := New([]Provider{
		{Name: "primary", Transport: "openai", BaseURL: srv.URL, Priority: 0, Timeout: 5 * time.Second},
	}, config.SelectPriority, nil)

	text, provider, tokens, err := r.Call(context.Background(), "sys", "hi", 100, 0.2)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if text != "hello from primary" || provider != "primary" || tokens != 15 {
		t.Errorf("got text=%q provider=%q tokens=%d", text, provider, tokens)
	}
}

func TestCallFallsOverToNextProviderOnFailure(t *testing.T) {
	bad := openAIServer(t, http.StatusInternalServerError, "")
	defer bad.Close()
	good := openAIServer(t, http.StatusOK, "from backup")
	defer good.Close()

	r := New([]Provider{
		{Name: "primary", Transport: "openai", BaseURL: bad.URL, Priority: 0, Timeout: 5 * time.Second},
		{Name: "backup", Transport: "openai", BaseURL: good.URL, Priority: 1, Timeout: 5 * time.Second},
	}, config.SelectPriority, nil)

	text, provider, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if provider != "backup" || text != "from backup" {
		t.Errorf("got provider=%q text=%q, want backup/from backup", provider, text)
	}
}

func TestCallReturnsErrAllProvidersUnavailableWhenEmpty(t *testing.T) {
	r := New(nil, config.SelectPriority, nil)
	_, _, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2)
	if err != ErrAllProvidersUnavailable {
		t.Errorf("got %v, want ErrAllProvidersUnavailable", err)
	}
}

func TestRateLimitedProviderIsSkippedUntilCooldownExpires(t *testing.T) {
	limited := openAIServer(t, http.StatusTooManyRequests, "")
	defer limited.Close()
	good := openAIServer(t, http.StatusOK, "from backup")
	defer good.Close()

	r := New([]Provider{
		{Name: "primary", Transport: "openai", BaseURL: limited.URL, Priority: 0, Timeout: 5 * time.Second},
		{Name: "backup", Transport: "openai", BaseURL: good.URL, Priority: 1, Timeout: 5 * time.Second},
	}, config.SelectPriority, nil)

	// First call: primary gets rate-limited and falls back to backup.
	_, provider, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2)
	if err != nil || provider != "backup" {
		t.Fatalf("first call: provider=%q err=%v", provider, err)
	}

	// Second call: primary should still be in cooldown, so only backup is a
	// candidate; confirm the router skips it without re-dialing it.
	candidates := r.selectCandidates("hi")
	if len(candidates) != 1 || candidates[0].cfg.Name != "backup" {
		t.Errorf("expected only backup to be available during cooldown, got %d candidates", len(candidates))
	}
}

func TestDailyTokenQuotaExhaustsProvider(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, "ok")
	defer srv.Close()

	r := New([]Provider{
		{Name: "capped", Transport: "openai", BaseURL: srv.URL, Priority: 0, Timeout: 5 * time.Second, DailyTokenQuota: 10},
	}, config.SelectPriority, nil)

	// First call consumes 15 tokens (10 prompt + 5 completion), exceeding
	// the 10-token daily quota.
	_, _, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}

	_, _, _, err = r.Call(context.Background(), "sys", "hi", 100, 0.2)
	if err != ErrAllProvidersUnavailable {
		t.Errorf("expected quota-exhausted provider to be unavailable, got %v", err)
	}
}

func TestPerProviderRateLimitThrottlesBurstyCalls(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, "ok")
	defer srv.Close()

	r := New([]Provider{
		{Name: "solo", Transport: "openai", BaseURL: srv.URL, Priority: 0, Timeout: 5 * time.Second, RequestsPerMinute: 6},
	}, config.SelectPriority, nil)

	// RequestsPerMinute: 6 -> burst of 1; the second call in the same
	// instant exhausts the provider's outbound rate limiter.
	if _, _, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, _, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2); err != ErrAllProvidersUnavailable {
		t.Errorf("second immediate call: got %v, want ErrAllProvidersUnavailable once the outbound limiter is exhausted", err)
	}
}

func TestRoundRobinStrategyRotatesAcrossAvailableProviders(t *testing.T) {
	a := openAIServer(t, http.StatusOK, "from a")
	defer a.Close()
	b := openAIServer(t, http.StatusOK, "from b")
	defer b.Close()

	r := New([]Provider{
		{Name: "a", Transport: "openai", BaseURL: a.URL, Priority: 0, Timeout: 5 * time.Second},
		{Name: "b", Transport: "openai", BaseURL: b.URL, Priority: 1, Timeout: 5 * time.Second},
	}, config.SelectRoundRobin, nil)

	_, first, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, second, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first == second {
		t.Errorf("round_robin selected %q both times, want it to rotate between a and b", first)
	}
}

func TestCallsInLastMinuteCountsRecentDispatches(t *testing.T) {
	srv := openAIServer(t, http.StatusOK, "ok")
	defer srv.Close()

	r := New([]Provider{
		{Name: "solo", Transport: "openai", BaseURL: srv.URL, Priority: 0, Timeout: 5 * time.Second, RequestsPerMinute: 6000},
	}, config.SelectPriority, nil)

	for i := 0; i < 3; i++ {
		if _, _, _, err := r.Call(context.Background(), "sys", "hi", 100, 0.2); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if got := r.CallsInLastMinute(); got != 3 {
		t.Errorf("CallsInLastMinute() = %d, want 3", got)
	}
}
