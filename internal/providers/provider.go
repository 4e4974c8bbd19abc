// Package providers contains the market data vendor clients and the fallback
// logic that tries them in priority order with per-vendor rate limiting.
package providers

import (
	"context"
	"time"

	"github.com/simutrador/marketdata/internal/models"
)

// DataProvider is the uniform capability every vendor client implements.
// Fetch returns raw 1-minute candles for [start, end), sorted ascending.
// An empty range must be reported as *DataUnavailableError rather than an
// empty slice so the fallback loop can distinguish "no data" from success.
type DataProvider interface {
	Name() string
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, error)
}
