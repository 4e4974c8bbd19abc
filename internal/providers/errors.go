package providers

import (
	"fmt"
	"time"
)

// AuthError indicates the provider rejected our credentials. The provider is
// unusable for the remainder of the request.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// InvalidSymbolError indicates the provider does not recognize the requested
// symbol. Treated like AuthError for fallback purposes.
type InvalidSymbolError struct {
	Provider string
	Symbol   string
}

func (e *InvalidSymbolError) Error() string {
	return fmt.Sprintf("provider %s: unknown symbol %s", e.Provider, e.Symbol)
}

// RateLimitExceededError indicates the provider throttled the request.
// RetryAfter is zero when the provider did not say how long to wait.
type RateLimitExceededError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s: rate limit exceeded, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s: rate limit exceeded", e.Provider)
}

// TransientNetworkError wraps timeouts, connection resets and 5xx responses.
type TransientNetworkError struct {
	Provider string
	Err      error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("provider %s: transient network error: %v", e.Provider, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// DataUnavailableError indicates the provider has no data for the requested
// range. Callers treat it as a recoverable empty result, not a hard failure.
type DataUnavailableError struct {
	Provider string
	Symbol   string
	Start    time.Time
	End      time.Time
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("provider %s: no data for %s in [%s, %s)",
		e.Provider, e.Symbol, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}
