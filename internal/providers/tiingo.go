package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/models"
)

const tiingoDefaultBaseURL = "https://api.tiingo.com"

// TiingoProvider fetches 1-minute bars from the Tiingo IEX endpoint. It is
// the secondary vendor behind Polygon.
type TiingoProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

// NewTiingoProvider creates a Tiingo client with the given API key.
func NewTiingoProvider(apiKey string, logger *logrus.Logger) *TiingoProvider {
	return &TiingoProvider{
		apiKey:  apiKey,
		baseURL: tiingoDefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// NewTiingoProviderWithBaseURL is used by tests to point at a stub server.
func NewTiingoProviderWithBaseURL(apiKey, baseURL string, logger *logrus.Logger) *TiingoProvider {
	p := NewTiingoProvider(apiKey, logger)
	p.baseURL = baseURL
	return p
}

// Name implements DataProvider.
func (t *TiingoProvider) Name() string { return "tiingo" }

type tiingoBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Fetch implements DataProvider.
func (t *TiingoProvider) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("startDate", start.UTC().Format("2006-01-02"))
	q.Set("endDate", end.UTC().Format("2006-01-02"))
	q.Set("resampleFreq", "1min")
	q.Set("columns", "open,high,low,close,volume")
	endpoint := fmt.Sprintf("%s/iex/%s/prices?%s", t.baseURL, url.PathEscape(symbol), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransientNetworkError{Provider: t.Name(), Err: err}
	}
	req.Header.Set("Authorization", "Token "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientNetworkError{Provider: t.Name(), Err: err}
	}
	defer resp.Body.Close()

	if err := t.classifyStatus(resp, symbol, start, end); err != nil {
		return nil, err
	}

	var bars []tiingoBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, &TransientNetworkError{Provider: t.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	candles := make([]models.Candle, 0, len(bars))
	for _, bar := range bars {
		ts, err := time.Parse(time.RFC3339, bar.Date)
		if err != nil {
			t.logger.WithField("date", bar.Date).Warn("Skipping bar with unparseable timestamp")
			continue
		}
		ts = ts.UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      decimal.NewFromFloat(bar.Open),
			High:      decimal.NewFromFloat(bar.High),
			Low:       decimal.NewFromFloat(bar.Low),
			Close:     decimal.NewFromFloat(bar.Close),
			Volume:    int64(bar.Volume),
		})
	}
	if len(candles) == 0 {
		return nil, &DataUnavailableError{Provider: t.Name(), Symbol: symbol, Start: start, End: end}
	}

	t.logger.WithFields(logrus.Fields{
		"provider": t.Name(),
		"symbol":   symbol,
		"candles":  len(candles),
	}).Debug("Fetched bars")
	return candles, nil
}

func (t *TiingoProvider) classifyStatus(resp *http.Response, symbol string, start, end time.Time) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: t.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return &InvalidSymbolError{Provider: t.Name(), Symbol: symbol}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitExceededError{Provider: t.Name(), RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return &TransientNetworkError{Provider: t.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return &DataUnavailableError{Provider: t.Name(), Symbol: symbol, Start: start, End: end}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
