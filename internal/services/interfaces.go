// Package services implements the update orchestration engine: the
// coordinator, the per-symbol pipeline, gap detection and filling,
// resampling, and completeness analysis.
package services

import (
	"context"
	"time"

	"github.com/simutrador/marketdata/internal/calendar"
	"github.com/simutrador/marketdata/internal/models"
)

// CandleStore is the persistence collaborator. The production implementation
// lives in internal/database; tests use in-memory fakes.
type CandleStore interface {
	Write(ctx context.Context, series models.CandleSeries) (int64, error)
	Read(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (models.CandleSeries, error)
	LastTimestamp(ctx context.Context, symbol string, timeframe models.Timeframe) (time.Time, bool, error)
}

// MarketCalendar answers trading-day questions. Satisfied by
// *calendar.Calendar.
type MarketCalendar interface {
	Classify(t time.Time) calendar.DayClass
	IsTradingDay(t time.Time) bool
	ExpectedCandleCount(t time.Time) int
	SessionBounds(t time.Time) (time.Time, time.Time)
	MinuteGrid(t time.Time) []time.Time
	TradingDays(start, end time.Time) []time.Time
	PrevTradingDay(t time.Time) time.Time
}

// Fetcher is the per-request view of the provider fallback client. Satisfied
// by *providers.Session.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, string, error)
}

// SessionFactory creates one Fetcher per update request so provider
// disabling stays scoped to that request.
type SessionFactory func() Fetcher
