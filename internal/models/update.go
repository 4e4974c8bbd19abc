package models

import "time"

// RequestStatus is the lifecycle state of an update request record.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusRunning   RequestStatus = "running"
	StatusCompleted RequestStatus = "completed"
	StatusFailed    RequestStatus = "failed"
)

// SymbolStep is the pipeline stage a symbol is currently in.
type SymbolStep string

const (
	StepPending    SymbolStep = "pending"
	StepFetching   SymbolStep = "fetching"
	StepValidating SymbolStep = "validating"
	StepGapFilling SymbolStep = "gap_filling"
	StepResampling SymbolStep = "resampling"
	StepDone       SymbolStep = "done"
	StepErrored    SymbolStep = "errored"
)

// Terminal reports whether the step is a final state.
func (s SymbolStep) Terminal() bool {
	return s == StepDone || s == StepErrored
}

// UpdateRequest describes one submission to the update coordinator.
// Immutable once accepted.
type UpdateRequest struct {
	// Symbols to update. Empty resolves to the configured default universe.
	Symbols []string `json:"symbols"`
	// StartDate and EndDate bound the update range, inclusive. When zero the
	// coordinator derives them from stored data and yesterday respectively.
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	// ForceValidation invalidates a whole trading day on any candle shape
	// violation instead of dropping the offending candles.
	ForceValidation bool `json:"force_validation"`
	// MaxConcurrent caps simultaneously active symbol pipelines.
	MaxConcurrent int `json:"max_concurrent"`
	// EnableResampling produces coarser timeframes after the 1-minute update.
	EnableResampling bool `json:"enable_resampling"`
}

// GapStats aggregates gap-fill outcomes for one symbol.
type GapStats struct {
	GapsFound         int `json:"gaps_found"`
	GapsFilled        int `json:"gaps_filled"`
	GapsUnavailable   int `json:"gaps_unavailable"`
	CandlesRecovered  int `json:"candles_recovered"`
	AttemptsExhausted int `json:"attempts_exhausted"`
}

// SymbolProgress tracks one symbol's pipeline state inside a request record.
type SymbolProgress struct {
	Symbol           string     `json:"symbol"`
	Step             SymbolStep `json:"current_step"`
	CandlesProcessed int        `json:"candles_processed"`
	ResampledCandles int        `json:"resampled_candles"`
	GapStats         GapStats   `json:"gap_stats"`
	Error            string     `json:"error,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// OverallProgress is the aggregate view across all symbols of a request.
type OverallProgress struct {
	TotalSymbols           int      `json:"total_symbols"`
	CompletedSymbols       int      `json:"completed_symbols"`
	CurrentSymbol          string   `json:"current_symbol,omitempty"`
	ProgressPercentage     float64  `json:"progress_percentage"`
	EstimatedTimeRemaining *int     `json:"estimated_time_remaining_seconds,omitempty"`
	SymbolsInProgress      []string `json:"symbols_in_progress"`
}

// Summary is the final rollup computed when a request finishes.
type Summary struct {
	TotalSymbols          int           `json:"total_symbols"`
	SucceededSymbols      int           `json:"succeeded_symbols"`
	FailedSymbols         int           `json:"failed_symbols"`
	TotalCandlesWritten   int           `json:"total_candles_written"`
	TotalResampledCandles int           `json:"total_resampled_candles"`
	Duration              time.Duration `json:"duration_seconds"`
}

// RequestRecord owns one update request for its whole lifetime: submission
// until eviction. It is exclusively owned by the coordinator; callers only
// ever see snapshots.
type RequestRecord struct {
	RequestID   string                     `json:"request_id"`
	Request     UpdateRequest              `json:"request"`
	Status      RequestStatus              `json:"status"`
	Progress    OverallProgress            `json:"progress"`
	Symbols     map[string]*SymbolProgress `json:"symbols"`
	Summary     *Summary                   `json:"summary,omitempty"`
	Error       string                     `json:"error,omitempty"`
	StartedAt   time.Time                  `json:"started_at"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
}

// Snapshot returns a deep copy safe to hand to status readers while pipeline
// goroutines keep mutating the original under the coordinator's lock.
func (r *RequestRecord) Snapshot() RequestRecord {
	out := *r
	out.Symbols = make(map[string]*SymbolProgress, len(r.Symbols))
	for sym, sp := range r.Symbols {
		cp := *sp
		out.Symbols[sym] = &cp
	}
	if r.Summary != nil {
		s := *r.Summary
		out.Summary = &s
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	out.Progress.SymbolsInProgress = append([]string(nil), r.Progress.SymbolsInProgress...)
	return out
}

// IsComplete reports whether the record reached a terminal status.
func (r *RequestRecord) IsComplete() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// ActiveUpdateSummary is the list-view projection of an in-flight record.
type ActiveUpdateSummary struct {
	RequestID      string        `json:"request_id"`
	Status         RequestStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	SymbolsCount   int           `json:"symbols_count"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
}
