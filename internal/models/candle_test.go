package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candleAt(ts time.Time, close float64) Candle {
	return Candle{
		Timestamp: ts,
		Open:      decimal.NewFromFloat(close),
		High:      decimal.NewFromFloat(close + 0.5),
		Low:       decimal.NewFromFloat(close - 0.5),
		Close:     decimal.NewFromFloat(close),
		Volume:    1000,
	}
}

func TestCandleValidate(t *testing.T) {
	base := time.Date(2025, 1, 2, 13, 30, 0, 0, time.UTC)

	assert.NoError(t, candleAt(base, 100).Validate())

	bad := candleAt(base, 100)
	bad.High = decimal.NewFromFloat(99)
	bad.Low = decimal.NewFromFloat(101)
	assert.Error(t, bad.Validate())

	outside := candleAt(base, 100)
	outside.Close = decimal.NewFromFloat(200)
	assert.Error(t, outside.Validate())

	negVol := candleAt(base, 100)
	negVol.Volume = -1
	assert.Error(t, negVol.Validate())
}

func TestNewCandleSeriesSortsAndDedupes(t *testing.T) {
	base := time.Date(2025, 1, 2, 13, 30, 0, 0, time.UTC)
	series := NewCandleSeries("AAPL", TimeframeOneMin, []Candle{
		candleAt(base.Add(2*time.Minute), 102),
		candleAt(base, 100),
		candleAt(base.Add(time.Minute), 101),
		candleAt(base, 999), // duplicate timestamp, first occurrence wins
	})

	require.Equal(t, 3, series.Len())
	assert.Equal(t, base, series.Candles[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Minute), series.Candles[2].Timestamp)
	assert.True(t, series.Candles[0].Close.Equal(decimal.NewFromFloat(102)))
}

func TestMergeExistingWins(t *testing.T) {
	base := time.Date(2025, 1, 2, 13, 30, 0, 0, time.UTC)
	series := NewCandleSeries("AAPL", TimeframeOneMin, []Candle{
		candleAt(base, 100),
		candleAt(base.Add(2*time.Minute), 102),
	})

	merged := series.Merge([]Candle{
		candleAt(base, 555), // collides, must lose to the stored candle
		candleAt(base.Add(time.Minute), 101),
	})

	require.Equal(t, 3, merged.Len())
	assert.True(t, merged.Candles[0].Close.Equal(decimal.NewFromFloat(100)))
	assert.True(t, merged.Candles[1].Close.Equal(decimal.NewFromFloat(101)))

	// Source series untouched
	assert.Equal(t, 2, series.Len())
}

func TestSliceHalfOpen(t *testing.T) {
	base := time.Date(2025, 1, 2, 13, 30, 0, 0, time.UTC)
	var candles []Candle
	for i := 0; i < 10; i++ {
		candles = append(candles, candleAt(base.Add(time.Duration(i)*time.Minute), 100))
	}
	series := NewCandleSeries("AAPL", TimeframeOneMin, candles)

	got := series.Slice(base.Add(2*time.Minute), base.Add(5*time.Minute))
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(2*time.Minute), got[0].Timestamp)
	assert.Equal(t, base.Add(4*time.Minute), got[2].Timestamp)
}

func TestGapMinutes(t *testing.T) {
	start := time.Date(2025, 1, 2, 14, 0, 0, 0, time.UTC)
	g := Gap{Symbol: "AAPL", Start: start, End: start.Add(10 * time.Minute)}
	assert.Equal(t, 10, g.Minutes())
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 5MIN ")
	require.NoError(t, err)
	assert.Equal(t, TimeframeFiveMin, tf)

	_, err = ParseTimeframe("7min")
	assert.Error(t, err)
}

func TestTimeframeTruncate(t *testing.T) {
	ts := time.Date(2025, 1, 2, 13, 33, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 1, 2, 13, 30, 0, 0, time.UTC), TimeframeFiveMin.Truncate(ts))
	assert.Equal(t, time.Date(2025, 1, 2, 13, 0, 0, 0, time.UTC), TimeframeOneHour.Truncate(ts))
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), TimeframeDaily.Truncate(ts))
}

func TestRequestRecordSnapshotIsDeepCopy(t *testing.T) {
	started := time.Date(2025, 1, 2, 4, 0, 0, 0, time.UTC)
	rec := &RequestRecord{
		RequestID: "req-1",
		Status:    StatusRunning,
		Symbols: map[string]*SymbolProgress{
			"AAPL": {Symbol: "AAPL", Step: StepFetching},
		},
		StartedAt: started,
		Progress:  OverallProgress{SymbolsInProgress: []string{"AAPL"}},
	}

	snap := rec.Snapshot()

	rec.Symbols["AAPL"].Step = StepDone
	rec.Progress.SymbolsInProgress[0] = "MSFT"

	assert.Equal(t, StepFetching, snap.Symbols["AAPL"].Step)
	assert.Equal(t, []string{"AAPL"}, snap.Progress.SymbolsInProgress)
}
