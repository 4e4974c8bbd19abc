package providers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/models"
)

// FallbackConfig tunes the retry behavior applied to each provider before
// the client advances to the next one in the priority list.
type FallbackConfig struct {
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultFallbackConfig returns the standard retry settings: up to 3 calls
// per provider (the initial attempt plus MaxRetries further tries) with
// exponential backoff from 1s capped at 30s.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// FallbackClient tries an ordered list of providers until one returns data.
// It is shared process-wide; per-request state lives in a Session.
type FallbackClient struct {
	providers []DataProvider
	limiters  *LimiterRegistry
	cfg       FallbackConfig
	logger    *logrus.Logger
}

// NewFallbackClient creates a fallback client over the given providers in
// priority order. A zero-value config selects the defaults; an explicit
// MaxRetries of 0 with backoff values set means one attempt per provider.
func NewFallbackClient(provs []DataProvider, limiters *LimiterRegistry, cfg FallbackConfig, logger *logrus.Logger) *FallbackClient {
	if cfg == (FallbackConfig{}) {
		cfg = DefaultFallbackConfig()
	}
	return &FallbackClient{
		providers: provs,
		limiters:  limiters,
		cfg:       cfg,
		logger:    logger,
	}
}

// Providers returns the configured provider names in priority order.
func (c *FallbackClient) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// NewSession creates a fetch session. Providers that fail with AuthError or
// InvalidSymbolError are disabled for the remainder of the session, so one
// update request does not keep hammering a vendor that already rejected it.
func (c *FallbackClient) NewSession() *Session {
	return &Session{
		client:   c,
		disabled: make(map[string]error),
	}
}

// Session is the per-request view of the fallback client. Safe for use by
// multiple pipeline goroutines of the same request.
type Session struct {
	client   *FallbackClient
	mu       sync.Mutex
	disabled map[string]error
}

func (s *Session) isDisabled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.disabled[name]
	return ok
}

func (s *Session) disable(name string, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled[name] = cause
}

// DisabledProviders returns the providers excluded so far with their causes.
func (s *Session) DisabledProviders() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]error, len(s.disabled))
	for k, v := range s.disabled {
		out[k] = v
	}
	return out
}

// Fetch asks each usable provider in priority order for candles covering
// [start, end). It returns the candles and the name of the provider that
// supplied them. When every provider is disabled, exhausted, or out of data,
// it returns *DataUnavailableError.
func (s *Session) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, string, error) {
	c := s.client
	for _, p := range c.providers {
		if s.isDisabled(p.Name()) {
			continue
		}
		candles, err := c.fetchWithRetry(ctx, s, p, symbol, start, end)
		if err == nil {
			return candles, p.Name(), nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}

		var authErr *AuthError
		var symErr *InvalidSymbolError
		switch {
		case errors.As(err, &authErr), errors.As(err, &symErr):
			s.disable(p.Name(), err)
			c.logger.WithFields(logrus.Fields{
				"provider": p.Name(),
				"symbol":   symbol,
			}).WithError(err).Warn("Provider disabled for remainder of request")
		default:
			c.logger.WithFields(logrus.Fields{
				"provider": p.Name(),
				"symbol":   symbol,
			}).WithError(err).Debug("Provider exhausted, trying next")
		}
	}
	return nil, "", &DataUnavailableError{Provider: "all", Symbol: symbol, Start: start, End: end}
}

// fetchWithRetry runs one provider with bounded exponential backoff. Rate
// limit and transient network errors are retried; everything else aborts
// immediately.
func (c *FallbackClient) fetchWithRetry(ctx context.Context, s *Session, p DataProvider, symbol string, start, end time.Time) ([]models.Candle, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.MaxElapsedTime = 0

	var candles []models.Candle
	op := func() error {
		if err := c.limiters.Acquire(ctx, p.Name()); err != nil {
			return backoff.Permanent(err)
		}
		out, err := p.Fetch(ctx, symbol, start, end)
		if err == nil {
			candles = out
			return nil
		}

		var rateErr *RateLimitExceededError
		var netErr *TransientNetworkError
		switch {
		case errors.As(err, &rateErr):
			if rateErr.RetryAfter > 0 {
				// Honor the provider-specified wait before the next attempt.
				select {
				case <-time.After(rateErr.RetryAfter):
				case <-ctx.Done():
					return backoff.Permanent(ctx.Err())
				}
			}
			return err
		case errors.As(err, &netErr):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return candles, nil
}
