package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe identifies the aggregation interval of a candle series.
type Timeframe string

const (
	TimeframeOneMin     Timeframe = "1min"
	TimeframeFiveMin    Timeframe = "5min"
	TimeframeFifteenMin Timeframe = "15min"
	TimeframeThirtyMin  Timeframe = "30min"
	TimeframeOneHour    Timeframe = "1h"
	TimeframeTwoHour    Timeframe = "2h"
	TimeframeFourHour   Timeframe = "4h"
	TimeframeDaily      Timeframe = "daily"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TimeframeOneMin:     time.Minute,
	TimeframeFiveMin:    5 * time.Minute,
	TimeframeFifteenMin: 15 * time.Minute,
	TimeframeThirtyMin:  30 * time.Minute,
	TimeframeOneHour:    time.Hour,
	TimeframeTwoHour:    2 * time.Hour,
	TimeframeFourHour:   4 * time.Hour,
	TimeframeDaily:      24 * time.Hour,
}

// ParseTimeframe normalizes and validates a timeframe string.
func ParseTimeframe(input string) (Timeframe, error) {
	tf := Timeframe(strings.ToLower(strings.TrimSpace(input)))
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe: %s", input)
	}
	return tf, nil
}

// SupportedTimeframes returns all valid timeframe keys, sorted.
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(timeframeDurations))
	for tf := range timeframeDurations {
		keys = append(keys, string(tf))
	}
	sort.Strings(keys)
	return keys
}

// Duration returns the interval one candle of this timeframe covers.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// Truncate aligns t down to the timeframe's window boundary. Five-minute
// windows start on minute-of-hour multiples of 5, hourly windows on the
// hour, daily windows at UTC midnight.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	return t.UTC().Truncate(tf.Duration())
}
