package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/models"
	"github.com/simutrador/marketdata/internal/providers"
)

// SymbolPipeline runs the five ordered stages for one symbol: fetch,
// validate, gap-detect, gap-fill, resample. A failure in any stage is
// isolated to that symbol and never aborts sibling pipelines.
type SymbolPipeline struct {
	store     CandleStore
	cal       MarketCalendar
	filler    *GapFiller
	targets   []models.Timeframe
	gapBudget int
	logger    *logrus.Logger
}

func NewSymbolPipeline(store CandleStore, cal MarketCalendar, filler *GapFiller, targets []models.Timeframe, gapBudget int, logger *logrus.Logger) *SymbolPipeline {
	return &SymbolPipeline{
		store:     store,
		cal:       cal,
		filler:    filler,
		targets:   targets,
		gapBudget: gapBudget,
		logger:    logger,
	}
}

// Run executes the pipeline for one symbol, publishing progress after every
// stage transition. The returned progress is terminal.
func (p *SymbolPipeline) Run(ctx context.Context, fetcher Fetcher, req models.UpdateRequest, symbol string, publish func(models.SymbolProgress)) models.SymbolProgress {
	started := time.Now().UTC()
	progress := models.SymbolProgress{Symbol: symbol, Step: models.StepFetching, StartedAt: &started}
	fail := func(err error) models.SymbolProgress {
		completed := time.Now().UTC()
		progress.Step = models.StepErrored
		progress.Error = err.Error()
		progress.CompletedAt = &completed
		publish(progress)
		p.logger.WithFields(logrus.Fields{"symbol": symbol}).WithError(err).Warn("Symbol pipeline failed")
		return progress
	}

	start, end, err := p.resolveRange(ctx, symbol, req)
	if err != nil {
		return fail(err)
	}
	days := p.cal.TradingDays(start, end)
	if len(days) == 0 {
		// Nothing to do across weekends and holidays.
		completed := time.Now().UTC()
		progress.Step = models.StepDone
		progress.CompletedAt = &completed
		publish(progress)
		return progress
	}

	// Fetch
	publish(progress)
	sessionOpen, _ := p.cal.SessionBounds(days[0])
	_, sessionClose := p.cal.SessionBounds(days[len(days)-1])
	raw, provider, err := fetcher.Fetch(ctx, symbol, sessionOpen, sessionClose)
	if err != nil {
		var unavailable *providers.DataUnavailableError
		if !errors.As(err, &unavailable) {
			return fail(err)
		}
		// No data anywhere is not a fetch failure; gap filling decides what
		// is actually recoverable.
		raw = nil
	}
	series := models.NewCandleSeries(symbol, models.TimeframeOneMin, raw)
	p.logger.WithFields(logrus.Fields{
		"symbol":   symbol,
		"provider": provider,
		"candles":  series.Len(),
		"days":     len(days),
	}).Debug("Fetched raw series")

	// Validate
	progress.Step = models.StepValidating
	publish(progress)
	validation := ValidateSeries(series, req.ForceValidation)
	series = validation.Series

	// Gap-detect and fill
	progress.Step = models.StepGapFilling
	publish(progress)
	series, stats, err := p.filler.Fill(ctx, fetcher, series, days, p.gapBudget)
	progress.GapStats = stats
	if err != nil {
		return fail(err)
	}

	if _, err := p.store.Write(ctx, series); err != nil {
		return fail(err)
	}
	progress.CandlesProcessed = series.Len()

	// Resample
	if req.EnableResampling {
		progress.Step = models.StepResampling
		publish(progress)
		for _, target := range p.targets {
			resampled, err := Resample(series, target)
			if err != nil {
				return fail(err)
			}
			if _, err := p.store.Write(ctx, resampled); err != nil {
				return fail(err)
			}
			progress.ResampledCandles += resampled.Len()
		}
	}

	completed := time.Now().UTC()
	progress.Step = models.StepDone
	progress.CompletedAt = &completed
	publish(progress)
	return progress
}

// resolveRange fills in missing date bounds: the end defaults to the last
// completed trading day, the start to the day after the newest stored candle
// (or a 30 day lookback when nothing is stored yet).
func (p *SymbolPipeline) resolveRange(ctx context.Context, symbol string, req models.UpdateRequest) (time.Time, time.Time, error) {
	start, end := req.StartDate, req.EndDate
	if end.IsZero() {
		end = p.cal.PrevTradingDay(time.Now().UTC().AddDate(0, 0, -1))
	}
	if start.IsZero() {
		last, ok, err := p.store.LastTimestamp(ctx, symbol, models.TimeframeOneMin)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		if ok {
			start = last.AddDate(0, 0, 1)
		} else {
			start = end.AddDate(0, 0, -30)
		}
	}
	return start, end, nil
}
