package services

import (
	"fmt"

	"github.com/simutrador/marketdata/internal/models"
)

// Resample aggregates a 1-minute series into the target timeframe. Source
// candles are partitioned into consecutive windows aligned to the target
// boundary; each non-empty window emits one candle with open from the first
// source candle, max high, min low, close from the last, and summed volume.
// Empty windows are omitted, never synthesized. The source series is not
// mutated.
func Resample(series models.CandleSeries, target models.Timeframe) (models.CandleSeries, error) {
	out := models.CandleSeries{Symbol: series.Symbol, Timeframe: target}

	if _, err := models.ParseTimeframe(string(target)); err != nil {
		return out, err
	}
	if target.Duration() <= series.Timeframe.Duration() {
		return out, fmt.Errorf("target timeframe %s is not coarser than source %s", target, series.Timeframe)
	}
	if series.Len() == 0 {
		return out, nil
	}

	// Candles are already sorted, so windows close as soon as a candle
	// truncates to a new boundary.
	var window *models.Candle
	var windowStart = target.Truncate(series.Candles[0].Timestamp)
	for _, c := range series.Candles {
		boundary := target.Truncate(c.Timestamp)
		if window != nil && !boundary.Equal(windowStart) {
			out.Candles = append(out.Candles, *window)
			window = nil
		}
		if window == nil {
			windowStart = boundary
			window = &models.Candle{
				Timestamp: boundary,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			}
			continue
		}
		if c.High.GreaterThan(window.High) {
			window.High = c.High
		}
		if c.Low.LessThan(window.Low) {
			window.Low = c.Low
		}
		window.Close = c.Close
		window.Volume += c.Volume
	}
	if window != nil {
		out.Candles = append(out.Candles, *window)
	}
	return out, nil
}
