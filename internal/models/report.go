package models

import "time"

// DayValidation is the per-trading-day validation detail inside a
// completeness report.
type DayValidation struct {
	Symbol            string    `json:"symbol"`
	Date              time.Time `json:"date"`
	IsValid           bool      `json:"is_valid"`
	IsHalfDay         bool      `json:"is_half_day"`
	ExpectedCandles   int       `json:"expected_candles"`
	ActualCandles     int       `json:"actual_candles"`
	MissingCandles    int       `json:"missing_candles"`
	CompletenessPct   float64   `json:"completeness_percentage"`
	MissingPeriods    []Gap     `json:"missing_periods,omitempty"`
	LargestGapMinutes int       `json:"largest_gap_minutes"`
	Errors            []string  `json:"errors,omitempty"`
	Warnings          []string  `json:"warnings,omitempty"`
}

// SymbolCompleteness aggregates validation results for one symbol across an
// analysis range.
type SymbolCompleteness struct {
	Symbol               string  `json:"symbol"`
	TotalTradingDays     int     `json:"total_trading_days"`
	ValidDays            int     `json:"valid_days"`
	InvalidDays          int     `json:"invalid_days"`
	FullDays             int     `json:"full_days_count"`
	HalfDays             int     `json:"half_days_count"`
	DaysWithGaps         int     `json:"days_with_gaps"`
	TotalExpectedCandles int     `json:"total_expected_candles"`
	TotalActualCandles   int     `json:"total_actual_candles"`
	MissingCandles       int     `json:"missing_candles"`
	CompletenessPct      float64 `json:"completeness_percentage"`

	// Gap-fill counters, populated only when auto-fill ran.
	GapFillAttempted      bool `json:"gap_fill_attempted"`
	TotalGapsFound        int  `json:"total_gaps_found"`
	GapsFilledSuccess     int  `json:"gaps_filled_successfully"`
	GapsVendorUnavailable int  `json:"gaps_vendor_unavailable"`
	CandlesRecovered      int  `json:"candles_recovered"`

	Days []DayValidation `json:"days,omitempty"`
}

// CompletenessReport is the full analysis result across symbols.
type CompletenessReport struct {
	StartDate               time.Time                     `json:"start_date"`
	EndDate                 time.Time                     `json:"end_date"`
	GeneratedAt             time.Time                     `json:"generated_at"`
	SymbolCompleteness      map[string]SymbolCompleteness `json:"symbol_completeness"`
	OverallCompletenessPct  float64                       `json:"overall_completeness_percentage"`
	TotalExpectedCandles    int                           `json:"total_expected_candles"`
	TotalActualCandles      int                           `json:"total_actual_candles"`
	SymbolsNeedingAttention []string                      `json:"symbols_needing_attention"`
}
