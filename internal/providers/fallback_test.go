package providers

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simutrador/marketdata/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// stubProvider returns scripted results, one per call, repeating the last.
type stubProvider struct {
	name    string
	mu      sync.Mutex
	calls   int
	results []stubResult
}

type stubResult struct {
	candles []models.Candle
	err     error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	r := s.results[idx]
	return r.candles, r.err
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testCandles(n int) []models.Candle {
	base := time.Date(2025, time.January, 2, 13, 30, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Open:      decimal.NewFromInt(100),
			High:      decimal.NewFromInt(101),
			Low:       decimal.NewFromInt(99),
			Close:     decimal.NewFromInt(100),
			Volume:    1000,
		}
	}
	return out
}

func fastConfig() FallbackConfig {
	return FallbackConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestFallbackFirstProviderWins(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []stubResult{{candles: testCandles(3)}}}
	secondary := &stubProvider{name: "secondary", results: []stubResult{{candles: testCandles(3)}}}

	client := NewFallbackClient([]DataProvider{primary, secondary}, NewLimiterRegistry(time.Second), fastConfig(), testLogger())
	session := client.NewSession()

	candles, provider, err := session.Fetch(context.Background(), "AAPL", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "primary", provider)
	assert.Len(t, candles, 3)
	assert.Equal(t, 0, secondary.callCount())
}

func TestFallbackDisablesProviderOnAuthError(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []stubResult{{err: &AuthError{Provider: "primary"}}}}
	secondary := &stubProvider{name: "secondary", results: []stubResult{{candles: testCandles(2)}}}

	client := NewFallbackClient([]DataProvider{primary, secondary}, NewLimiterRegistry(time.Second), fastConfig(), testLogger())
	session := client.NewSession()

	_, provider, err := session.Fetch(context.Background(), "AAPL", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secondary", provider)

	// The failed provider must not be contacted again within the session.
	_, provider, err = session.Fetch(context.Background(), "AAPL", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secondary", provider)
	assert.Equal(t, 1, primary.callCount())
	assert.Len(t, session.DisabledProviders(), 1)
}

func TestFallbackDisablesProviderOnInvalidSymbol(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []stubResult{{err: &InvalidSymbolError{Provider: "primary", Symbol: "NOPE"}}}}
	secondary := &stubProvider{name: "secondary", results: []stubResult{{candles: testCandles(1)}}}

	client := NewFallbackClient([]DataProvider{primary, secondary}, NewLimiterRegistry(time.Second), fastConfig(), testLogger())
	session := client.NewSession()

	_, provider, err := session.Fetch(context.Background(), "NOPE", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secondary", provider)
	assert.Equal(t, 1, primary.callCount())
}

func TestFallbackRetriesTransientThenSucceeds(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []stubResult{
		{err: &TransientNetworkError{Provider: "primary"}},
		{err: &TransientNetworkError{Provider: "primary"}},
		{candles: testCandles(5)},
	}}

	client := NewFallbackClient([]DataProvider{primary}, NewLimiterRegistry(time.Second), fastConfig(), testLogger())
	session := client.NewSession()

	candles, provider, err := session.Fetch(context.Background(), "AAPL", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "primary", provider)
	assert.Len(t, candles, 5)
	assert.Equal(t, 3, primary.callCount())
}

func TestFallbackExhaustsRetriesThenAdvances(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []stubResult{{err: &TransientNetworkError{Provider: "primary"}}}}
	secondary := &stubProvider{name: "secondary", results: []stubResult{{candles: testCandles(1)}}}

	client := NewFallbackClient([]DataProvider{primary, secondary}, NewLimiterRegistry(time.Second), fastConfig(), testLogger())
	session := client.NewSession()

	_, provider, err := session.Fetch(context.Background(), "AAPL", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secondary", provider)
	// Initial attempt plus MaxRetries further tries.
	assert.Equal(t, 3, primary.callCount())
	// The provider is exhausted, not disabled: the next fetch tries it again.
	assert.Empty(t, session.DisabledProviders())
}

func TestFallbackZeroRetriesMakesSingleAttempt(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []stubResult{{err: &TransientNetworkError{Provider: "primary"}}}}
	secondary := &stubProvider{name: "secondary", results: []stubResult{{candles: testCandles(1)}}}

	cfg := FallbackConfig{InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	client := NewFallbackClient([]DataProvider{primary, secondary}, NewLimiterRegistry(time.Second), cfg, testLogger())
	session := client.NewSession()

	_, provider, err := session.Fetch(context.Background(), "AAPL", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "secondary", provider)
	assert.Equal(t, 1, primary.callCount())
}

func TestFallbackZeroValueConfigUsesDefaults(t *testing.T) {
	client := NewFallbackClient(nil, NewLimiterRegistry(time.Second), FallbackConfig{}, testLogger())
	assert.Equal(t, DefaultFallbackConfig(), client.cfg)
	// Default schedule: initial call plus two retries.
	assert.Equal(t, uint64(2), client.cfg.MaxRetries)
}

func TestFallbackAllProvidersUnavailable(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []stubResult{{err: &DataUnavailableError{Provider: "primary", Symbol: "AAPL"}}}}
	secondary := &stubProvider{name: "secondary", results: []stubResult{{err: &DataUnavailableError{Provider: "secondary", Symbol: "AAPL"}}}}

	client := NewFallbackClient([]DataProvider{primary, secondary}, NewLimiterRegistry(time.Second), fastConfig(), testLogger())
	session := client.NewSession()

	_, _, err := session.Fetch(context.Background(), "AAPL", time.Now().Add(-time.Hour), time.Now())
	var unavailable *DataUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "all", unavailable.Provider)
}

func TestFallbackRespectsContextCancellation(t *testing.T) {
	primary := &stubProvider{name: "primary", results: []stubResult{{err: &TransientNetworkError{Provider: "primary"}}}}

	client := NewFallbackClient([]DataProvider{primary}, NewLimiterRegistry(time.Second), fastConfig(), testLogger())
	session := client.NewSession()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := session.Fetch(ctx, "AAPL", time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimiterRegistryTimesOutWhenExhausted(t *testing.T) {
	registry := NewLimiterRegistry(20 * time.Millisecond)
	registry.Register("slow", RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour})

	require.NoError(t, registry.Acquire(context.Background(), "slow"))
	err := registry.Acquire(context.Background(), "slow")
	assert.Error(t, err)
}

func TestLimiterRegistryUnregisteredIsUnlimited(t *testing.T) {
	registry := NewLimiterRegistry(time.Millisecond)
	for i := 0; i < 100; i++ {
		assert.NoError(t, registry.Acquire(context.Background(), "unknown"))
	}
}
