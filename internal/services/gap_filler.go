package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/models"
)

// GapFiller recovers missing periods by re-fetching just the gap sub-range
// through the provider fallback client. Attempts are bounded per symbol so a
// stubbornly incomplete day cannot spin forever.
type GapFiller struct {
	detector *GapDetector
	logger   *logrus.Logger
}

func NewGapFiller(detector *GapDetector, logger *logrus.Logger) *GapFiller {
	return &GapFiller{detector: detector, logger: logger}
}

// Fill detects gaps across the given trading days and attempts to recover
// each one, spending at most budget attempts. The returned series includes
// everything recovered. Filling is idempotent: a complete series detects
// zero gaps and triggers no fetches.
//
// Fetch failures of any kind count as vendor_unavailable for that gap; only
// context cancellation aborts the run.
func (f *GapFiller) Fill(ctx context.Context, fetcher Fetcher, series models.CandleSeries, days []time.Time, budget int) (models.CandleSeries, models.GapStats, error) {
	stats := models.GapStats{}
	attempts := 0

	for _, day := range days {
		gaps := f.detector.DetectGaps(series, day)
		stats.GapsFound += len(gaps)

		for _, gap := range gaps {
			if err := ctx.Err(); err != nil {
				return series, stats, err
			}
			if attempts >= budget {
				stats.AttemptsExhausted++
				continue
			}
			attempts++

			candles, provider, err := fetcher.Fetch(ctx, series.Symbol, gap.Start, gap.End)
			if err != nil {
				if ctx.Err() != nil {
					return series, stats, ctx.Err()
				}
				stats.GapsUnavailable++
				f.logger.WithFields(logrus.Fields{
					"symbol": series.Symbol,
					"start":  gap.Start,
					"end":    gap.End,
				}).WithError(err).Debug("Gap not recoverable")
				continue
			}

			before := series.Len()
			series = series.Merge(candles)
			recovered := series.Len() - before
			if recovered > 0 {
				stats.GapsFilled++
				stats.CandlesRecovered += recovered
				f.logger.WithFields(logrus.Fields{
					"symbol":    series.Symbol,
					"start":     gap.Start,
					"end":       gap.End,
					"provider":  provider,
					"recovered": recovered,
				}).Debug("Gap filled")
			} else {
				stats.GapsUnavailable++
			}
		}
	}
	return series, stats, nil
}
