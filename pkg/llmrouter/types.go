// Package llmrouter implements the LLM Router (C4): a priority-ordered
// pool of LLM providers with cooldowns, daily quotas, and failover, in the
// style of the teacher's tools/llm_router.go preset table and
// tools/llm.go transport, generalized per SPEC_FULL.md §4.4.
package llmrouter

import (
	"time"

	"golang.org/x/time/rate"
)

// FailureClass buckets a transport failure so the Router can apply the
// right cooldown (§4.4 table).
type FailureClass int

const (
	FailureNone FailureClass = iota
	FailureRateLimit
	FailureAuthConfig
	FailureNetwork
)

const (
	cooldownRateLimit  = 60 * time.Second
	cooldownAuthConfig = 10 * time.Minute
	cooldownNetwork    = 2 * time.Minute // applied after 3 consecutive network failures
	networkFailureStreakForCooldown = 3
	healthCheckPeriod  = 5 * time.Minute
)

// Provider is the static configuration for one LLM endpoint — the
// generalized form of the teacher's ModelPreset.
type Provider struct {
	Name        string
	Transport   string // "openai", "anthropic", "ollama", "openrouter", "deepseek"
	Model       string
	BaseURL     string
	APIKey      string
	Priority    int // lower runs first
	DailyTokenQuota int64
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration

	// RequestsPerMinute caps this provider's outbound call rate. Zero uses
	// defaultRequestsPerMinute.
	RequestsPerMinute int
}

// defaultRequestsPerMinute bounds a Provider's outbound call rate when it
// doesn't set RequestsPerMinute explicitly.
const defaultRequestsPerMinute = 120

// providerState is the Router's mutable view of a Provider: cooldowns,
// consecutive failure streak, daily usage, and an outbound rate limiter.
// Guarded by Router.mu.
type providerState struct {
	cfg     Provider
	limiter *rate.Limiter

	rateLimitedUntil time.Time
	unhealthyUntil   time.Time
	consecutiveNetworkFailures int

	quotaDay    string // YYYY-MM-DD the tokensUsedToday counter applies to
	tokensUsedToday int64

	lastHealthCheck time.Time
}

// newProviderState builds a providerState with its per-provider outbound
// rate limiter sized off Provider.RequestsPerMinute (§4.4).
func newProviderState(p Provider) *providerState {
	rpm := p.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRequestsPerMinute
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &providerState{cfg: p, limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
}

func (s *providerState) available(now time.Time) bool {
	if now.Before(s.rateLimitedUntil) {
		return false
	}
	if now.Before(s.unhealthyUntil) {
		return false
	}
	if s.cfg.DailyTokenQuota > 0 {
		day := now.UTC().Format("2006-01-02")
		if s.quotaDay == day && s.tokensUsedToday >= s.cfg.DailyTokenQuota {
			return false
		}
	}
	if s.limiter != nil && !s.limiter.AllowN(now, 1) {
		return false
	}
	return true
}

// Result is what Call returns on success.
type Result struct {
	Text         string
	ProviderUsed string
	TokensUsed   int
}
