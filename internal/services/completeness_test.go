package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simutrador/marketdata/internal/models"
	"github.com/simutrador/marketdata/internal/providers"
)

func newTestAnalyzer(fetcher Fetcher, store CandleStore) *Analyzer {
	return NewAnalyzer(store, testCalendar(), sessionsFor(fetcher), nil, 50, testLogger())
}

func seedDay(t *testing.T, store CandleStore, symbol string, day time.Time, skip ...int) {
	t.Helper()
	series := models.NewCandleSeries(symbol, models.TimeframeOneMin, sessionCandles(testCalendar(), day, skip...))
	_, err := store.Write(context.Background(), series)
	require.NoError(t, err)
}

func noFetcher(t *testing.T) fetcherFunc {
	return func(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, string, error) {
		t.Fatal("unexpected provider fetch")
		return nil, "", nil
	}
}

func TestAnalyzeCompleteDay(t *testing.T) {
	store := newMemStore()
	seedDay(t, store, "AAPL", tradingDay)
	analyzer := newTestAnalyzer(noFetcher(t), store)

	report, err := analyzer.Analyze(context.Background(), []string{"AAPL"}, tradingDay, tradingDay, AnalyzeOptions{})
	require.NoError(t, err)

	sc := report.SymbolCompleteness["AAPL"]
	assert.Equal(t, 100.0, sc.CompletenessPct)
	assert.Equal(t, 390, sc.TotalExpectedCandles)
	assert.Equal(t, 390, sc.TotalActualCandles)
	assert.Equal(t, 1, sc.ValidDays)
	assert.Zero(t, sc.DaysWithGaps)
	assert.Equal(t, 100.0, report.OverallCompletenessPct)
	assert.Empty(t, report.SymbolsNeedingAttention)
}

func TestAnalyzeWithAutoFill(t *testing.T) {
	store := newMemStore()
	seedDay(t, store, "AAPL", tradingDay, 100, 101, 102, 103, 104, 105, 106, 107, 108, 109)

	fetcher := fetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, string, error) {
		return rangeCandles(start, end), "tiingo", nil
	})
	analyzer := newTestAnalyzer(fetcher, store)

	report, err := analyzer.Analyze(context.Background(), []string{"AAPL"}, tradingDay, tradingDay,
		AnalyzeOptions{AutoFillGaps: true})
	require.NoError(t, err)

	sc := report.SymbolCompleteness["AAPL"]
	assert.True(t, sc.GapFillAttempted)
	assert.Equal(t, 1, sc.TotalGapsFound)
	assert.Equal(t, 1, sc.GapsFilledSuccess)
	assert.Equal(t, 10, sc.CandlesRecovered)
	// Post-fill re-validation sees the complete day.
	assert.Equal(t, 100.0, sc.CompletenessPct)
	assert.Equal(t, 390, store.count("AAPL", models.TimeframeOneMin))
}

func TestAnalyzeVendorUnavailable(t *testing.T) {
	store := newMemStore()
	seedDay(t, store, "AAPL", tradingDay, 100, 101, 102, 103, 104, 105, 106, 107, 108, 109)

	fetcher := fetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, string, error) {
		return nil, "", &providers.DataUnavailableError{Provider: "all", Symbol: symbol, Start: start, End: end}
	})
	analyzer := newTestAnalyzer(fetcher, store)

	report, err := analyzer.Analyze(context.Background(), []string{"AAPL"}, tradingDay, tradingDay,
		AnalyzeOptions{AutoFillGaps: true})
	require.NoError(t, err)

	sc := report.SymbolCompleteness["AAPL"]
	assert.Equal(t, 1, sc.GapsVendorUnavailable)
	assert.Zero(t, sc.CandlesRecovered)
	assert.Less(t, sc.CompletenessPct, 100.0)
}

func TestAnalyzeFlagsSymbolsNeedingAttention(t *testing.T) {
	store := newMemStore()
	seedDay(t, store, "AAPL", tradingDay)
	// MSFT is missing 30 of 390 minutes: 92.31% completeness.
	skip := make([]int, 30)
	for i := range skip {
		skip[i] = i
	}
	seedDay(t, store, "MSFT", tradingDay, skip...)
	analyzer := newTestAnalyzer(noFetcher(t), store)

	report, err := analyzer.Analyze(context.Background(), []string{"AAPL", "MSFT"}, tradingDay, tradingDay, AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"MSFT"}, report.SymbolsNeedingAttention)
	assert.InDelta(t, 92.31, report.SymbolCompleteness["MSFT"].CompletenessPct, 0.001)
}

func TestAnalyzeSkipsClosedDays(t *testing.T) {
	store := newMemStore()
	seedDay(t, store, "AAPL", tradingDay)
	seedDay(t, store, "AAPL", time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC))
	analyzer := newTestAnalyzer(noFetcher(t), store)

	// Jan 2 (Thu) through Jan 5 (Sun): only two trading days count.
	report, err := analyzer.Analyze(context.Background(), []string{"AAPL"},
		tradingDay, time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC), AnalyzeOptions{})
	require.NoError(t, err)

	sc := report.SymbolCompleteness["AAPL"]
	assert.Equal(t, 2, sc.TotalTradingDays)
	assert.Equal(t, 780, sc.TotalExpectedCandles)
	assert.Equal(t, 100.0, sc.CompletenessPct)
}

func TestAnalyzeIncludeDetails(t *testing.T) {
	store := newMemStore()
	seedDay(t, store, "AAPL", tradingDay, 42)
	analyzer := newTestAnalyzer(noFetcher(t), store)

	report, err := analyzer.Analyze(context.Background(), []string{"AAPL"}, tradingDay, tradingDay,
		AnalyzeOptions{IncludeDetails: true})
	require.NoError(t, err)

	sc := report.SymbolCompleteness["AAPL"]
	require.Len(t, sc.Days, 1)
	assert.Equal(t, tradingDay, sc.Days[0].Date)
	require.Len(t, sc.Days[0].MissingPeriods, 1)
	assert.Equal(t, 1, sc.Days[0].MissingPeriods[0].Minutes())
}

func TestAnalyzeRejectsMalformedInput(t *testing.T) {
	analyzer := newTestAnalyzer(noFetcher(t), newMemStore())
	ctx := context.Background()

	var invalid *InvalidRequestError

	_, err := analyzer.Analyze(ctx, nil, tradingDay, tradingDay, AnalyzeOptions{})
	assert.ErrorAs(t, err, &invalid)

	_, err = analyzer.Analyze(ctx, []string{"AAPL"}, time.Time{}, tradingDay, AnalyzeOptions{})
	assert.ErrorAs(t, err, &invalid)

	_, err = analyzer.Analyze(ctx, []string{"AAPL"}, tradingDay.AddDate(0, 0, 3), tradingDay, AnalyzeOptions{})
	assert.ErrorAs(t, err, &invalid)
}

func TestAnalyzeAutoFillIsIdempotent(t *testing.T) {
	store := newMemStore()
	seedDay(t, store, "AAPL", tradingDay, 7, 8, 9)

	var calls int32
	fetcher := fetcherFunc(func(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, string, error) {
		atomic.AddInt32(&calls, 1)
		return rangeCandles(start, end), "polygon", nil
	})
	analyzer := newTestAnalyzer(fetcher, store)
	opts := AnalyzeOptions{AutoFillGaps: true}

	first, err := analyzer.Analyze(context.Background(), []string{"AAPL"}, tradingDay, tradingDay, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, first.SymbolCompleteness["AAPL"].CandlesRecovered)

	second, err := analyzer.Analyze(context.Background(), []string{"AAPL"}, tradingDay, tradingDay, opts)
	require.NoError(t, err)
	assert.Zero(t, second.SymbolCompleteness["AAPL"].CandlesRecovered)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
