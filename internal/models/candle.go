package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a single OHLCV observation over a fixed interval.
// Raw vendor data is minute-aligned UTC.
type Candle struct {
	Timestamp time.Time       `json:"timestamp" db:"ts"`
	Open      decimal.Decimal `json:"open" db:"open"`
	High      decimal.Decimal `json:"high" db:"high"`
	Low       decimal.Decimal `json:"low" db:"low"`
	Close     decimal.Decimal `json:"close" db:"close"`
	Volume    int64           `json:"volume" db:"volume"`
}

// Validate checks the OHLC shape invariant: low <= open,close <= high.
func (c Candle) Validate() error {
	if c.High.LessThan(c.Low) {
		return fmt.Errorf("high %s < low %s", c.High, c.Low)
	}
	if c.Open.LessThan(c.Low) || c.Open.GreaterThan(c.High) {
		return fmt.Errorf("open %s outside [%s, %s]", c.Open, c.Low, c.High)
	}
	if c.Close.LessThan(c.Low) || c.Close.GreaterThan(c.High) {
		return fmt.Errorf("close %s outside [%s, %s]", c.Close, c.Low, c.High)
	}
	if c.Open.Sign() <= 0 || c.High.Sign() <= 0 || c.Low.Sign() <= 0 || c.Close.Sign() <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if c.Volume < 0 {
		return fmt.Errorf("negative volume %d", c.Volume)
	}
	return nil
}

// CandleSeries is an ordered candle sequence for one (symbol, timeframe)
// pair. Candles are strictly increasing by timestamp with no duplicates.
type CandleSeries struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candles   []Candle  `json:"candles"`
}

// NewCandleSeries returns a series with candles sorted by timestamp and
// duplicate timestamps dropped (first occurrence wins).
func NewCandleSeries(symbol string, timeframe Timeframe, candles []Candle) CandleSeries {
	sorted := make([]Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	deduped := make([]Candle, 0, len(sorted))
	var last time.Time
	for _, c := range sorted {
		if len(deduped) > 0 && c.Timestamp.Equal(last) {
			continue
		}
		deduped = append(deduped, c)
		last = c.Timestamp
	}

	return CandleSeries{Symbol: symbol, Timeframe: timeframe, Candles: deduped}
}

// Merge returns a new series containing the union of s and other, sorted by
// timestamp. On duplicate timestamps the candle already in s wins.
func (s CandleSeries) Merge(other []Candle) CandleSeries {
	existing := make(map[int64]struct{}, len(s.Candles))
	for _, c := range s.Candles {
		existing[c.Timestamp.Unix()] = struct{}{}
	}

	merged := make([]Candle, 0, len(s.Candles)+len(other))
	merged = append(merged, s.Candles...)
	for _, c := range other {
		if _, ok := existing[c.Timestamp.Unix()]; !ok {
			merged = append(merged, c)
		}
	}

	return NewCandleSeries(s.Symbol, s.Timeframe, merged)
}

// Slice returns the candles with start <= ts < end, preserving order.
func (s CandleSeries) Slice(start, end time.Time) []Candle {
	out := make([]Candle, 0)
	for _, c := range s.Candles {
		if !c.Timestamp.Before(start) && c.Timestamp.Before(end) {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of candles in the series.
func (s CandleSeries) Len() int {
	return len(s.Candles)
}

// Gap is a contiguous run of expected-but-missing 1-minute candles inside a
// trading day. End is exclusive.
type Gap struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Minutes returns the number of missing 1-minute candles the gap spans.
func (g Gap) Minutes() int {
	return int(g.End.Sub(g.Start) / time.Minute)
}
