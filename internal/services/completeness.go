package services

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/cache"
	"github.com/simutrador/marketdata/internal/calendar"
	"github.com/simutrador/marketdata/internal/models"
)

// attentionThreshold is the completeness percentage below which a symbol is
// flagged in symbols_needing_attention.
const attentionThreshold = 95.0

// AnalyzeOptions tunes a completeness analysis run.
type AnalyzeOptions struct {
	IncludeDetails     bool
	AutoFillGaps       bool
	MaxGapFillAttempts int
}

// Analyzer re-derives completeness from stored series, independent of any
// active update, and can optionally run gap filling inline.
type Analyzer struct {
	store    CandleStore
	cal      MarketCalendar
	detector *GapDetector
	filler   *GapFiller
	sessions SessionFactory
	reports  *cache.RedisReportCache
	budget   int
	logger   *logrus.Logger
}

// NewAnalyzer creates a completeness analyzer. reports may be nil to disable
// caching, defaultBudget bounds auto-fill attempts per symbol when the
// caller does not override it.
func NewAnalyzer(store CandleStore, cal MarketCalendar, sessions SessionFactory, reports *cache.RedisReportCache, defaultBudget int, logger *logrus.Logger) *Analyzer {
	detector := NewGapDetector(cal)
	return &Analyzer{
		store:    store,
		cal:      cal,
		detector: detector,
		filler:   NewGapFiller(detector, logger),
		sessions: sessions,
		reports:  reports,
		budget:   defaultBudget,
		logger:   logger,
	}
}

// Analyze builds a completeness report for the symbols over [start, end]
// inclusive.
func (a *Analyzer) Analyze(ctx context.Context, symbols []string, start, end time.Time, opts AnalyzeOptions) (*models.CompletenessReport, error) {
	if len(symbols) == 0 {
		return nil, &InvalidRequestError{Field: "symbols", Reason: "at least one symbol required"}
	}
	if start.IsZero() || end.IsZero() {
		return nil, &InvalidRequestError{Field: "date_range", Reason: "start_date and end_date are required"}
	}
	if start.After(end) {
		return nil, &InvalidRequestError{Field: "date_range", Reason: "start_date after end_date"}
	}
	if opts.MaxGapFillAttempts <= 0 {
		opts.MaxGapFillAttempts = a.budget
	}

	// Cached plain reports can be served as-is; anything that fills gaps or
	// carries per-day details is computed fresh.
	cacheable := a.reports != nil && !opts.AutoFillGaps && !opts.IncludeDetails
	var cacheKey string
	if cacheable {
		cacheKey = a.reports.Key(symbols, start, end)
		if cached, found := a.reports.Get(ctx, cacheKey); found {
			return cached, nil
		}
	}

	report := &models.CompletenessReport{
		StartDate:          dayOf(start),
		EndDate:            dayOf(end),
		GeneratedAt:        time.Now().UTC(),
		SymbolCompleteness: make(map[string]models.SymbolCompleteness, len(symbols)),
	}

	var session Fetcher
	if opts.AutoFillGaps {
		session = a.sessions()
	}

	days := a.cal.TradingDays(start, end)
	for _, symbol := range symbols {
		sc, err := a.analyzeSymbol(ctx, symbol, days, start, end, opts, session)
		if err != nil {
			return nil, err
		}
		report.SymbolCompleteness[symbol] = sc
		report.TotalExpectedCandles += sc.TotalExpectedCandles
		report.TotalActualCandles += sc.TotalActualCandles
		if sc.CompletenessPct < attentionThreshold {
			report.SymbolsNeedingAttention = append(report.SymbolsNeedingAttention, symbol)
		}
	}
	sort.Strings(report.SymbolsNeedingAttention)
	report.OverallCompletenessPct = CompletenessPercentage(report.TotalActualCandles, report.TotalExpectedCandles)

	if cacheable {
		if err := a.reports.Set(ctx, cacheKey, report); err != nil {
			a.logger.WithError(err).Warn("Failed to cache completeness report")
		}
	}
	return report, nil
}

func (a *Analyzer) analyzeSymbol(ctx context.Context, symbol string, days []time.Time, start, end time.Time, opts AnalyzeOptions, session Fetcher) (models.SymbolCompleteness, error) {
	sc := models.SymbolCompleteness{Symbol: symbol, TotalTradingDays: len(days)}

	readStart := dayOf(start)
	readEnd := dayOf(end).AddDate(0, 0, 1)
	series, err := a.store.Read(ctx, symbol, models.TimeframeOneMin, readStart, readEnd)
	if err != nil {
		return sc, err
	}

	if opts.AutoFillGaps {
		filled, stats, err := a.filler.Fill(ctx, session, series, days, opts.MaxGapFillAttempts)
		if err != nil {
			return sc, err
		}
		sc.GapFillAttempted = true
		sc.TotalGapsFound = stats.GapsFound
		sc.GapsFilledSuccess = stats.GapsFilled
		sc.GapsVendorUnavailable = stats.GapsUnavailable
		sc.CandlesRecovered = stats.CandlesRecovered
		if stats.CandlesRecovered > 0 {
			if _, err := a.store.Write(ctx, filled); err != nil {
				return sc, err
			}
			if a.reports != nil {
				if err := a.reports.Invalidate(ctx); err != nil {
					a.logger.WithError(err).Warn("Failed to invalidate cached reports after gap fill")
				}
			}
		}
		// Re-validate against the filled series.
		series = filled
	}

	for _, day := range days {
		validation := a.detector.ValidateDay(series, day)
		switch a.cal.Classify(day) {
		case calendar.Half:
			sc.HalfDays++
		case calendar.Full:
			sc.FullDays++
		}
		if validation.IsValid {
			sc.ValidDays++
		} else {
			sc.InvalidDays++
		}
		if len(validation.MissingPeriods) > 0 {
			sc.DaysWithGaps++
		}
		sc.TotalExpectedCandles += validation.ExpectedCandles
		sc.TotalActualCandles += validation.ActualCandles
		sc.MissingCandles += validation.MissingCandles
		if opts.IncludeDetails {
			sc.Days = append(sc.Days, validation)
		}
	}
	sc.CompletenessPct = CompletenessPercentage(sc.TotalActualCandles, sc.TotalExpectedCandles)
	return sc, nil
}
