package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	polymodels "github.com/polygon-io/client-go/rest/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/models"
)

const polygonMaxResults = 50000

// PolygonProvider fetches 1-minute aggregates from the Polygon.io REST API.
type PolygonProvider struct {
	client *polygon.Client
	logger *logrus.Logger
}

// NewPolygonProvider creates a Polygon client with the given API key.
func NewPolygonProvider(apiKey string, logger *logrus.Logger) *PolygonProvider {
	return &PolygonProvider{
		client: polygon.New(apiKey),
		logger: logger,
	}
}

// Name implements DataProvider.
func (p *PolygonProvider) Name() string { return "polygon" }

// Fetch implements DataProvider. Polygon treats the "to" bound as inclusive,
// so candles at or past end are dropped to keep the range half-open.
func (p *PolygonProvider) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error) {
	params := polymodels.ListAggsParams{
		Ticker:     symbol,
		Multiplier: 1,
		Timespan:   polymodels.Minute,
		From:       polymodels.Millis(start),
		To:         polymodels.Millis(end),
	}.WithOrder(polymodels.Asc).WithLimit(polygonMaxResults).WithAdjusted(true)

	candles := make([]models.Candle, 0)
	iter := p.client.ListAggs(ctx, params)
	for iter.Next() {
		agg := iter.Item()
		ts := time.Time(agg.Timestamp).UTC()
		if !ts.Before(end) {
			continue
		}
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      decimal.NewFromFloat(agg.Open),
			High:      decimal.NewFromFloat(agg.High),
			Low:       decimal.NewFromFloat(agg.Low),
			Close:     decimal.NewFromFloat(agg.Close),
			Volume:    int64(agg.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, p.classify(err, symbol, start, end)
	}
	if len(candles) == 0 {
		return nil, &DataUnavailableError{Provider: p.Name(), Symbol: symbol, Start: start, End: end}
	}

	p.logger.WithFields(logrus.Fields{
		"provider": p.Name(),
		"symbol":   symbol,
		"candles":  len(candles),
	}).Debug("Fetched aggregates")
	return candles, nil
}

func (p *PolygonProvider) classify(err error, symbol string, start, end time.Time) error {
	var errResp *polymodels.ErrorResponse
	if errors.As(err, &errResp) {
		switch {
		case errResp.StatusCode == http.StatusUnauthorized || errResp.StatusCode == http.StatusForbidden:
			return &AuthError{Provider: p.Name(), Err: err}
		case errResp.StatusCode == http.StatusNotFound:
			return &InvalidSymbolError{Provider: p.Name(), Symbol: symbol}
		case errResp.StatusCode == http.StatusTooManyRequests:
			return &RateLimitExceededError{Provider: p.Name()}
		case errResp.StatusCode >= 500:
			return &TransientNetworkError{Provider: p.Name(), Err: err}
		default:
			return &DataUnavailableError{Provider: p.Name(), Symbol: symbol, Start: start, End: end}
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransientNetworkError{Provider: p.Name(), Err: err}
}
