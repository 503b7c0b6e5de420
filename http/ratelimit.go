package http

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Backoff applied to a host after it throttles us.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0
	// BackoffCooldownPeriod is how long after the last throttle before the
	// original rate is restored.
	BackoffCooldownPeriod = 5 * time.Minute
	// MinRPSMultiplier is the floor for rate reduction (25% of configured).
	MinRPSMultiplier = 0.25
)

// RateLimiterConfig defines rate limiting behavior.
type RateLimiterConfig struct {
	// RequestsPerSecond applies to every host without a custom rate.
	// Zero disables limiting.
	RequestsPerSecond float64
	// HostRates overrides RequestsPerSecond for specific hosts.
	HostRates map[string]float64
	// EnableDynamicBackoff reduces a host's rate after it throttles us.
	EnableDynamicBackoff bool
}

// DefaultRateLimiterConfig returns a conservative rate for youtube.com and googleapis.com.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond:    2.5,
		HostRates:            make(map[string]float64),
		EnableDynamicBackoff: true,
	}
}

// BackoffState tracks throttling backoff for a host.
type BackoffState struct {
	CurrentBackoff    time.Duration
	LastError         time.Time
	ConsecutiveErrors int
	OriginalRPS       float64
	ReducedRPS        float64
}

// RateLimiter is a per-host token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	backoff  map[string]*BackoffState
	config   RateLimiterConfig
}

// NewRateLimiter creates a rate limiter with the given configuration.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.HostRates == nil {
		cfg.HostRates = make(map[string]float64)
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		backoff:  make(map[string]*BackoffState),
		config:   cfg,
	}
}

// Wait blocks until a request to urlStr is allowed, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, urlStr string) error {
	if rl == nil {
		return nil
	}
	limiter := rl.limiter(hostOf(urlStr))
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (rl *RateLimiter) limiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[host]; ok {
		return l
	}
	rps := rl.rps(host)
	if rps <= 0 {
		return nil
	}
	l := rate.NewLimiter(rate.Limit(rps), 1)
	rl.limiters[host] = l
	return l
}

// rps must be called with mu held.
func (rl *RateLimiter) rps(host string) float64 {
	if r, ok := rl.config.HostRates[host]; ok {
		return r
	}
	return rl.config.RequestsPerSecond
}

// RPS returns the configured rate for the host of urlStr.
func (rl *RateLimiter) RPS(urlStr string) float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.rps(hostOf(urlStr))
}

// SetHostRate overrides the rate for one host.
func (rl *RateLimiter) SetHostRate(host string, rps float64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.config.HostRates[host] = rps
	delete(rl.limiters, host)
}

// RecordRateLimitError notes a throttled response from the host of urlStr
// and returns how long to back off before the next attempt.
func (rl *RateLimiter) RecordRateLimitError(urlStr string, retryAfter time.Duration) time.Duration {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		if retryAfter > 0 {
			return retryAfter
		}
		return InitialBackoff
	}

	host := hostOf(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoff[host]
	if !ok {
		state = &BackoffState{CurrentBackoff: InitialBackoff, OriginalRPS: rl.rps(host)}
		rl.backoff[host] = state
	}
	state.LastError = time.Now()
	state.ConsecutiveErrors++

	if state.ConsecutiveErrors > 1 {
		state.CurrentBackoff = time.Duration(float64(state.CurrentBackoff) * BackoffMultiplier)
		if state.CurrentBackoff > MaxBackoff {
			state.CurrentBackoff = MaxBackoff
		}
	}
	if retryAfter > state.CurrentBackoff {
		state.CurrentBackoff = retryAfter
	}

	factor := 0.75
	switch {
	case state.ConsecutiveErrors >= 3:
		factor = MinRPSMultiplier
	case state.ConsecutiveErrors == 2:
		factor = 0.5
	}
	state.ReducedRPS = state.OriginalRPS * factor
	if l, ok := rl.limiters[host]; ok && state.ReducedRPS > 0 {
		l.SetLimit(rate.Limit(state.ReducedRPS))
	}

	return state.CurrentBackoff
}

// RecordSuccess lets a throttled host recover its rate.
func (rl *RateLimiter) RecordSuccess(urlStr string) {
	if rl == nil || !rl.config.EnableDynamicBackoff {
		return
	}

	host := hostOf(urlStr)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, ok := rl.backoff[host]
	if !ok {
		return
	}

	if time.Since(state.LastError) > BackoffCooldownPeriod {
		if l, ok := rl.limiters[host]; ok && state.OriginalRPS > 0 {
			l.SetLimit(rate.Limit(state.OriginalRPS))
		}
		delete(rl.backoff, host)
		return
	}

	if state.ConsecutiveErrors > 0 {
		state.ConsecutiveErrors--
		if state.ConsecutiveErrors == 0 {
			half := state.OriginalRPS * 0.5
			if half > state.ReducedRPS {
				state.ReducedRPS = half
				if l, ok := rl.limiters[host]; ok {
					l.SetLimit(rate.Limit(half))
				}
			}
		}
	}
}

// BackoffState returns a copy of the backoff state for the host of urlStr, or nil.
func (rl *RateLimiter) BackoffState(urlStr string) *BackoffState {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if s, ok := rl.backoff[hostOf(urlStr)]; ok {
		cp := *s
		return &cp
	}
	return nil
}

// WaitForBackoff blocks until the current backoff for the host has elapsed.
func (rl *RateLimiter) WaitForBackoff(ctx context.Context, urlStr string) error {
	state := rl.BackoffState(urlStr)
	if state == nil {
		return nil
	}
	remaining := state.CurrentBackoff - time.Since(state.LastError)
	if remaining <= 0 {
		return nil
	}

	t := time.NewTimer(remaining)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// hostOf returns the host of urlStr without its port.
func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	host := u.Host
	if i := strings.LastIndex(host, ":"); i != -1 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}
