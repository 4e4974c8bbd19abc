package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/models"
)

const fmpDefaultBaseURL = "https://financialmodelingprep.com/stable"

// FMPProvider fetches 1-minute bars from the Financial Modeling Prep
// historical-chart endpoint. It sits behind Polygon and Tiingo in the
// priority list.
type FMPProvider struct {
	apiKey  string
	baseURL string
	http    *http.Client
	loc     *time.Location
	logger  *logrus.Logger
}

// NewFMPProvider creates a Financial Modeling Prep client with the given
// API key.
func NewFMPProvider(apiKey string, logger *logrus.Logger) *FMPProvider {
	// FMP intraday timestamps carry no zone and are exchange local time.
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	return &FMPProvider{
		apiKey:  apiKey,
		baseURL: fmpDefaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		loc:     loc,
		logger:  logger,
	}
}

// NewFMPProviderWithBaseURL is used by tests to point at a stub server.
func NewFMPProviderWithBaseURL(apiKey, baseURL string, logger *logrus.Logger) *FMPProvider {
	p := NewFMPProvider(apiKey, logger)
	p.baseURL = baseURL
	return p
}

// Name implements DataProvider.
func (f *FMPProvider) Name() string { return "financial_modeling_prep" }

type fmpBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Fetch implements DataProvider. FMP returns bars newest first; ordering is
// left to the series constructors downstream.
func (f *FMPProvider) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("from", start.UTC().Format("2006-01-02"))
	q.Set("to", end.UTC().Format("2006-01-02"))
	q.Set("apikey", f.apiKey)
	endpoint := fmt.Sprintf("%s/historical-chart/1min?%s", f.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &TransientNetworkError{Provider: f.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientNetworkError{Provider: f.Name(), Err: err}
	}
	defer resp.Body.Close()

	if err := f.classifyStatus(resp, symbol, start, end); err != nil {
		return nil, err
	}

	var bars []fmpBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, &TransientNetworkError{Provider: f.Name(), Err: fmt.Errorf("decode response: %w", err)}
	}

	candles := make([]models.Candle, 0, len(bars))
	for _, bar := range bars {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", bar.Date, f.loc)
		if err != nil {
			f.logger.WithField("date", bar.Date).Warn("Skipping bar with unparseable timestamp")
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
		return nil, &DataUnavailableError{Provider: f.Name(), Symbol: symbol, Start: start, End: end}
	}

	f.logger.WithFields(logrus.Fields{
		"provider": f.Name(),
		"symbol":   symbol,
		"candles":  len(candles),
	}).Debug("Fetched bars")
	return candles, nil
}

func (f *FMPProvider) classifyStatus(resp *http.Response, symbol string, start, end time.Time) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Provider: f.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return &InvalidSymbolError{Provider: f.Name(), Symbol: symbol}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitExceededError{Provider: f.Name(), RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return &TransientNetworkError{Provider: f.Name(), Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return &DataUnavailableError{Provider: f.Name(), Symbol: symbol, Start: start, End: end}
	}
}
