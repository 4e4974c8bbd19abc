package services

import (
	"fmt"
	"math"
	"time"

	"github.com/simutrador/marketdata/internal/calendar"
	"github.com/simutrador/marketdata/internal/models"
)

// SeriesValidation is the outcome of candle shape validation for one series.
type SeriesValidation struct {
	Series            models.CandleSeries
	DroppedCandles    int
	ZeroVolumeCandles int
	// InvalidatedDays lists trading days removed wholesale because
	// force_validation was set and the day contained at least one bad candle.
	InvalidatedDays []time.Time
	Warnings        []string
}

// ValidateSeries drops candles that violate the OHLC shape invariant and
// flags zero-volume candles without removing them. With force set, any
// violation invalidates the candle's whole trading day: every candle of that
// day is removed so gap detection treats it as fully missing.
func ValidateSeries(series models.CandleSeries, force bool) SeriesValidation {
	result := SeriesValidation{}

	badDays := make(map[time.Time]struct{})
	kept := make([]models.Candle, 0, series.Len())
	for _, c := range series.Candles {
		if err := c.Validate(); err != nil {
			result.DroppedCandles++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("dropped candle at %s: %v", c.Timestamp.Format(time.RFC3339), err))
			if force {
				badDays[dayOf(c.Timestamp)] = struct{}{}
			}
			continue
		}
		if c.Volume == 0 {
			result.ZeroVolumeCandles++
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("zero volume at %s", c.Timestamp.Format(time.RFC3339)))
		}
		kept = append(kept, c)
	}

	if force && len(badDays) > 0 {
		filtered := kept[:0]
		for _, c := range kept {
			if _, bad := badDays[dayOf(c.Timestamp)]; bad {
				result.DroppedCandles++
				continue
			}
			filtered = append(filtered, c)
		}
		kept = filtered
		for day := range badDays {
			result.InvalidatedDays = append(result.InvalidatedDays, day)
		}
	}

	result.Series = models.NewCandleSeries(series.Symbol, series.Timeframe, kept)
	return result
}

// GapDetector finds expected-but-missing minutes against the calendar
// baseline.
type GapDetector struct {
	cal MarketCalendar
}

func NewGapDetector(cal MarketCalendar) *GapDetector {
	return &GapDetector{cal: cal}
}

// DetectGaps walks the expected minute grid for the trading day and merges
// consecutive missing minutes into gaps. A day with no candles at all yields
// a single full-day gap. Closed days yield nothing.
func (d *GapDetector) DetectGaps(series models.CandleSeries, day time.Time) []models.Gap {
	grid := d.cal.MinuteGrid(day)
	if len(grid) == 0 {
		return nil
	}

	open, close := d.cal.SessionBounds(day)
	present := make(map[int64]struct{})
	for _, c := range series.Slice(open, close) {
		present[c.Timestamp.Unix()] = struct{}{}
	}

	var gaps []models.Gap
	cur := -1
	for _, minute := range grid {
		if _, ok := present[minute.Unix()]; ok {
			cur = -1
			continue
		}
		if cur >= 0 && gaps[cur].End.Equal(minute) {
			gaps[cur].End = minute.Add(time.Minute)
			continue
		}
		gaps = append(gaps, models.Gap{Symbol: series.Symbol, Start: minute, End: minute.Add(time.Minute)})
		cur = len(gaps) - 1
	}
	return gaps
}

// ValidateDay builds the per-day completeness detail for one trading day.
func (d *GapDetector) ValidateDay(series models.CandleSeries, day time.Time) models.DayValidation {
	expected := d.cal.ExpectedCandleCount(day)
	open, close := d.cal.SessionBounds(day)

	validation := models.DayValidation{
		Symbol:          series.Symbol,
		Date:            dayOf(day),
		IsHalfDay:       d.cal.Classify(day) == calendar.Half,
		ExpectedCandles: expected,
	}
	if expected == 0 {
		validation.IsValid = true
		validation.CompletenessPct = 100
		return validation
	}

	validation.ActualCandles = len(series.Slice(open, close))
	validation.MissingPeriods = d.DetectGaps(series, day)
	for _, gap := range validation.MissingPeriods {
		validation.MissingCandles += gap.Minutes()
		if gap.Minutes() > validation.LargestGapMinutes {
			validation.LargestGapMinutes = gap.Minutes()
		}
	}
	validation.CompletenessPct = CompletenessPercentage(validation.ActualCandles, expected)
	validation.IsValid = validation.MissingCandles == 0
	if !validation.IsValid {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("%d of %d expected candles missing", validation.MissingCandles, expected))
	}
	return validation
}

// CompletenessPercentage computes actual/expected*100 rounded to two
// decimals and clamped to [0, 100].
func CompletenessPercentage(actual, expected int) float64 {
	if expected <= 0 {
		return 100
	}
	pct := float64(actual) / float64(expected) * 100
	pct = math.Round(pct*100) / 100
	return math.Min(100, math.Max(0, pct))
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
