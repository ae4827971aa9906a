package llmrouter

import (
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantaflow/tradecore/pkg/config"
	"github.com/quantaflow/tradecore/pkg/metrics"
)

// ErrAllProvidersUnavailable is returned by Call when every configured
// provider is rate-limited, unhealthy, or over its daily quota (§4.4).
var ErrAllProvidersUnavailable = errors.New("llmrouter: all providers unavailable")

// Router selects a provider per call using priority order, skipping any
// provider presently rate-limited, unhealthy, or over quota, and falls
// back to the next candidate on failure (§4.4's ordered-fallback
// algorithm, generalized from pkg/trader/agents/forecaster.go's
// ForecastWithFallback and tools/llm_router.go's tier presets).
type Router struct {
	mu       sync.Mutex
	states   []*providerState
	client   *http.Client
	metrics  *metrics.Metrics
	strategy config.SelectionStrategy
	rrCursor uint64

	callMu    sync.Mutex
	callTimes []time.Time
}

// New builds a Router over the given providers, ordered by Priority
// ascending (ties keep input order, same as sort.SliceStable). strategy
// is the tie-break policy selectCandidates applies among providers that
// are all available at once (§6.3 llm.selection_strategy); the zero value
// behaves as SelectPriority.
func New(providers []Provider, strategy config.SelectionStrategy, m *metrics.Metrics) *Router {
	states := make([]*providerState, len(providers))
	for i, p := range providers {
		states[i] = newProviderState(p)
	}
	sort.SliceStable(states, func(i, j int) bool { return states[i].cfg.Priority < states[j].cfg.Priority })

	timeout := 60 * time.Second
	if len(states) > 0 && states[0].cfg.Timeout > 0 {
		timeout = states[0].cfg.Timeout
	}
	return &Router{states: states, client: newHTTPClient(timeout), metrics: m, strategy: strategy}
}

// Call sends prompt/system through the highest-priority available
// provider, falling over to the next candidate on failure, and reports
// (text, provider name used, tokens used).
func (r *Router) Call(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, string, int, error) {
	r.recordCall(time.Now())

	candidates := r.selectCandidates(userPrompt)
	if len(candidates) == 0 {
		return "", "", 0, ErrAllProvidersUnavailable
	}

	req := request{
		Messages:    []message{{Role: "user", Content: userPrompt}},
		System:      systemPrompt,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	var lastErr error
	for _, st := range candidates {
		callCtx := ctx
		cancel := func() {}
		if st.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, st.cfg.Timeout)
		}
		resp, class, err := dispatch(callCtx, r.client, st.cfg, req)
		cancel()

		if err != nil {
			r.recordFailure(st, class)
			if r.metrics != nil {
				r.metrics.LLMCalls.WithLabelValues(st.cfg.Name, "error").Inc()
			}
			lastErr = err
			continue
		}

		tokens := resp.PromptTokens + resp.CompletionTokens
		r.recordSuccess(st, tokens)
		if r.metrics != nil {
			r.metrics.LLMCalls.WithLabelValues(st.cfg.Name, "ok").Inc()
			r.metrics.LLMTokensUsed.WithLabelValues(st.cfg.Name).Add(float64(tokens))
		}
		return resp.Content, st.cfg.Name, tokens, nil
	}

	if lastErr != nil {
		return "", "", 0, lastErr
	}
	return "", "", 0, ErrAllProvidersUnavailable
}

// selectCandidates returns the currently-available providers, snapshotted
// under the lock and ordered per the router's SelectionStrategy. key ties
// SelectHash's ordering to the call's prompt so repeated, similar prompts
// keep landing on the same provider while it stays healthy.
func (r *Router) selectCandidates(key string) []*providerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	out := make([]*providerState, 0, len(r.states))
	for _, st := range r.states {
		if st.available(now) {
			out = append(out, st)
		}
	}
	if len(out) < 2 {
		return out
	}

	switch r.strategy {
	case config.SelectHash:
		h := fnv.New32a()
		h.Write([]byte(key))
		rotateLeft(out, int(h.Sum32())%len(out))
	case config.SelectRoundRobin:
		n := atomic.AddUint64(&r.rrCursor, 1)
		rotateLeft(out, int(n%uint64(len(out))))
	}
	return out
}

// rotateLeft reorders s in place so index n becomes the first candidate,
// preserving relative order otherwise (priority stays the tie-break among
// providers equally favored by the rotation).
func rotateLeft(s []*providerState, n int) {
	if n == 0 {
		return
	}
	rotated := make([]*providerState, 0, len(s))
	rotated = append(rotated, s[n:]...)
	rotated = append(rotated, s[:n]...)
	copy(s, rotated)
}

// recordCall timestamps one Call invocation and prunes entries older than
// a minute, sourcing CallsInLastMinute.
func (r *Router) recordCall(now time.Time) {
	r.callMu.Lock()
	defer r.callMu.Unlock()
	r.callTimes = append(r.callTimes, now)
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(r.callTimes) && r.callTimes[i].Before(cutoff) {
		i++
	}
	r.callTimes = r.callTimes[i:]
}

// CallsInLastMinute reports how many Call invocations were dispatched in
// the trailing 60 seconds, sourcing the Circuit Breaker's api_rate_limit
// check (§4.9).
func (r *Router) CallsInLastMinute() int {
	r.callMu.Lock()
	defer r.callMu.Unlock()
	cutoff := time.Now().Add(-time.Minute)
	i := 0
	for i < len(r.callTimes) && r.callTimes[i].Before(cutoff) {
		i++
	}
	return len(r.callTimes) - i
}

func (r *Router) recordFailure(st *providerState, class FailureClass) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	switch class {
	case FailureRateLimit:
		st.rateLimitedUntil = now.Add(cooldownRateLimit)
		st.consecutiveNetworkFailures = 0
	case FailureAuthConfig:
		st.unhealthyUntil = now.Add(cooldownAuthConfig)
		st.consecutiveNetworkFailures = 0
	case FailureNetwork:
		st.consecutiveNetworkFailures++
		if st.consecutiveNetworkFailures >= networkFailureStreakForCooldown {
			st.unhealthyUntil = now.Add(cooldownNetwork)
			st.consecutiveNetworkFailures = 0
		}
	}
}

func (r *Router) recordSuccess(st *providerState, tokens int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st.consecutiveNetworkFailures = 0
	day := time.Now().UTC().Format("2006-01-02")
	if st.quotaDay != day {
		st.quotaDay = day
		st.tokensUsedToday = 0
	}
	st.tokensUsedToday += int64(tokens)
}

// RunHealthChecks probes every currently-unhealthy provider every
// healthCheckPeriod with a trivial ping call, clearing its cooldown early
// on success, until ctx is cancelled (§4.4 health-check loop).
func (r *Router) RunHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(healthCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.probeUnhealthy(ctx)
		}
	}
}

func (r *Router) probeUnhealthy(ctx context.Context) {
	r.mu.Lock()
	now := time.Now()
	var toProbe []*providerState
	for _, st := range r.states {
		if now.Before(st.unhealthyUntil) && now.Sub(st.lastHealthCheck) >= healthCheckPeriod {
			toProbe = append(toProbe, st)
		}
	}
	r.mu.Unlock()

	for _, st := range toProbe {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, class, err := dispatch(callCtx, r.client, st.cfg, request{
			Messages: []message{{Role: "user", Content: "ping"}}, MaxTokens: 1,
		})
		cancel()

		r.mu.Lock()
		st.lastHealthCheck = time.Now()
		if err == nil || class == FailureNone {
			st.unhealthyUntil = time.Time{}
			st.consecutiveNetworkFailures = 0
		}
		r.mu.Unlock()

		if r.metrics != nil {
			status := 1.0
			if err != nil {
				status = 0.0
			}
			r.metrics.LLMProviderStatus.WithLabelValues(st.cfg.Name).Set(status)
		}
	}
}
