package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig describes a provider's request quota as a token bucket.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
}

// LimiterRegistry holds one token bucket per provider. Limiters are shared
// process-wide so concurrent pipelines contend for the same real quota.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	timeout  time.Duration
}

// NewLimiterRegistry creates a registry. acquireTimeout bounds how long a
// caller may block waiting for a token.
func NewLimiterRegistry(acquireTimeout time.Duration) *LimiterRegistry {
	if acquireTimeout <= 0 {
		acquireTimeout = 30 * time.Second
	}
	return &LimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		timeout:  acquireTimeout,
	}
}

// Register installs a token bucket for the named provider. Capacity equals
// the provider's requests-per-window, refilled continuously over the window.
func (r *LimiterRegistry) Register(name string, cfg RateLimitConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.RequestsPerWindow <= 0 || cfg.Window <= 0 {
		r.limiters[name] = rate.NewLimiter(rate.Inf, 1)
		return
	}
	refill := rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds())
	r.limiters[name] = rate.NewLimiter(refill, cfg.RequestsPerWindow)
}

// Acquire blocks until a token for the named provider is available, the
// acquire timeout elapses, or ctx is cancelled. Unregistered providers are
// unlimited.
func (r *LimiterRegistry) Acquire(ctx context.Context, name string) error {
	r.mu.Lock()
	limiter, ok := r.limiters[name]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("rate limit token for %s not acquired within %s: %w", name, r.timeout, err)
	}
	return nil
}
