package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/simutrador/marketdata/internal/models"
)

// CoordinatorConfig carries the tunables the coordinator needs.
type CoordinatorConfig struct {
	DefaultSymbols     []string
	MaxConcurrent      int
	MaxGapFillAttempts int
	TargetTimeframes   []models.Timeframe
	RecordTTL          time.Duration
}

// Coordinator owns the lifecycle of update requests: admission, the bounded
// pipeline pool, progress aggregation, status queries, cancellation, and
// record eviction.
type Coordinator struct {
	cfg      CoordinatorConfig
	store    CandleStore
	cal      MarketCalendar
	sessions SessionFactory
	pipeline *SymbolPipeline
	logger   *logrus.Logger

	mu      sync.RWMutex
	records map[string]*models.RequestRecord
	cancels map[string]context.CancelFunc
	active  map[string]string // symbol -> owning request id

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCoordinator(cfg CoordinatorConfig, store CandleStore, cal MarketCalendar, sessions SessionFactory, logger *logrus.Logger) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.MaxGapFillAttempts <= 0 {
		cfg.MaxGapFillAttempts = 50
	}
	if cfg.RecordTTL <= 0 {
		cfg.RecordTTL = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	detector := NewGapDetector(cal)
	filler := NewGapFiller(detector, logger)
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		cal:      cal,
		sessions: sessions,
		pipeline: NewSymbolPipeline(store, cal, filler, cfg.TargetTimeframes, cfg.MaxGapFillAttempts, logger),
		logger:   logger,
		records:  make(map[string]*models.RequestRecord),
		cancels:  make(map[string]context.CancelFunc),
		active:   make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the eviction janitor.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.janitor()
}

// Stop cancels all in-flight requests and waits for their goroutines.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
	c.logger.Info("Update coordinator stopped")
}

// Submit validates and admits an update request. It returns the generated
// request id; the work itself runs asynchronously. Symbols already owned by
// another active request are marked errored with a conflict message inside
// the new record. When every symbol conflicts, Submit fails with
// *ConflictError and no record is created.
func (c *Coordinator) Submit(req models.UpdateRequest) (string, error) {
	symbols, err := c.normalize(&req)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var conflicted, admitted []string
	for _, sym := range symbols {
		if owner, busy := c.active[sym]; busy {
			conflicted = append(conflicted, sym)
			c.logger.WithFields(logrus.Fields{"symbol": sym, "owner": owner}).Warn("Symbol already under active update")
		} else {
			admitted = append(admitted, sym)
		}
	}
	if len(admitted) == 0 {
		return "", &ConflictError{Symbols: conflicted}
	}

	requestID := uuid.New().String()
	record := &models.RequestRecord{
		RequestID: requestID,
		Request:   req,
		Status:    models.StatusPending,
		Symbols:   make(map[string]*models.SymbolProgress, len(symbols)),
		Progress: models.OverallProgress{
			TotalSymbols:      len(symbols),
			SymbolsInProgress: []string{},
		},
		StartedAt: time.Now().UTC(),
	}
	for _, sym := range admitted {
		record.Symbols[sym] = &models.SymbolProgress{Symbol: sym, Step: models.StepPending}
		c.active[sym] = requestID
	}
	for _, sym := range conflicted {
		now := time.Now().UTC()
		record.Symbols[sym] = &models.SymbolProgress{
			Symbol:      sym,
			Step:        models.StepErrored,
			Error:       (&ConflictError{Symbols: []string{sym}}).Error(),
			CompletedAt: &now,
		}
	}
	c.records[requestID] = record

	runCtx, cancelRun := context.WithCancel(c.ctx)
	c.cancels[requestID] = cancelRun

	c.wg.Add(1)
	go c.run(runCtx, requestID, req, admitted)

	c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"symbols":    len(admitted),
		"conflicts":  len(conflicted),
	}).Info("Update request submitted")
	return requestID, nil
}

// GetStatus returns a read-only snapshot of the record.
func (c *Coordinator) GetStatus(requestID string) (models.RequestRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.records[requestID]
	if !ok {
		return models.RequestRecord{}, &NotFoundError{RequestID: requestID}
	}
	return record.Snapshot(), nil
}

// ListActive returns summaries of all records that have not finished yet.
func (c *Coordinator) ListActive() []models.ActiveUpdateSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now().UTC()
	out := make([]models.ActiveUpdateSummary, 0)
	for _, record := range c.records {
		if record.IsComplete() {
			continue
		}
		out = append(out, models.ActiveUpdateSummary{
			RequestID:      record.RequestID,
			Status:         record.Status,
			StartedAt:      record.StartedAt,
			SymbolsCount:   len(record.Symbols),
			ElapsedSeconds: now.Sub(record.StartedAt).Seconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Cancel tears down an in-flight request. In-flight provider calls see their
// context cancelled; partially written series stay as-is and the record
// transitions to failed with a cancellation reason.
func (c *Coordinator) Cancel(requestID string) error {
	c.mu.Lock()
	record, ok := c.records[requestID]
	if !ok {
		c.mu.Unlock()
		return &NotFoundError{RequestID: requestID}
	}
	if record.IsComplete() {
		c.mu.Unlock()
		return nil
	}
	record.Error = "cancelled by caller"
	cancelRun := c.cancels[requestID]
	c.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	}
	c.logger.WithField("request_id", requestID).Info("Update request cancelled")
	return nil
}

func (c *Coordinator) run(ctx context.Context, requestID string, req models.UpdateRequest, symbols []string) {
	defer c.wg.Done()

	c.mu.Lock()
	c.records[requestID].Status = models.StatusRunning
	c.mu.Unlock()

	session := c.sessions()
	sem := semaphore.NewWeighted(int64(req.MaxConcurrent))

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				now := time.Now().UTC()
				c.publish(requestID, models.SymbolProgress{
					Symbol:      sym,
					Step:        models.StepErrored,
					Error:       "update cancelled before start",
					CompletedAt: &now,
				})
				return
			}
			defer sem.Release(1)
			c.pipeline.Run(ctx, session, req, sym, func(p models.SymbolProgress) {
				c.publish(requestID, p)
			})
		}(symbol)
	}
	wg.Wait()

	c.finalize(requestID, ctx.Err() != nil)
}

// publish installs a symbol's latest progress into the record and recomputes
// the aggregate view, all under the coordinator lock so status readers only
// ever see consistent snapshots.
func (c *Coordinator) publish(requestID string, progress models.SymbolProgress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[requestID]
	if !ok {
		return
	}
	cp := progress
	record.Symbols[progress.Symbol] = &cp

	completed := 0
	inProgress := make([]string, 0)
	for sym, sp := range record.Symbols {
		if sp.Step.Terminal() {
			completed++
		} else if sp.Step != models.StepPending {
			inProgress = append(inProgress, sym)
		}
	}
	sort.Strings(inProgress)

	record.Progress.CompletedSymbols = completed
	record.Progress.SymbolsInProgress = inProgress
	record.Progress.CurrentSymbol = ""
	if len(inProgress) > 0 {
		record.Progress.CurrentSymbol = inProgress[0]
	}
	pct := 0.0
	if record.Progress.TotalSymbols > 0 {
		pct = float64(completed) / float64(record.Progress.TotalSymbols) * 100
	}
	record.Progress.ProgressPercentage = pct
	record.Progress.EstimatedTimeRemaining = estimateRemaining(record.StartedAt, pct)
}

// estimateRemaining projects the time left from the completion rate so far.
// Estimates below 5% progress are too noisy to publish.
func estimateRemaining(startedAt time.Time, pct float64) *int {
	if pct < 5 || pct >= 100 {
		return nil
	}
	elapsed := time.Since(startedAt).Seconds()
	remaining := int(elapsed/(pct/100) - elapsed)
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

func (c *Coordinator) finalize(requestID string, cancelled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	record, ok := c.records[requestID]
	if !ok {
		return
	}

	summary := models.Summary{TotalSymbols: len(record.Symbols)}
	for sym, sp := range record.Symbols {
		if sp.Step == models.StepDone {
			summary.SucceededSymbols++
		} else {
			summary.FailedSymbols++
		}
		summary.TotalCandlesWritten += sp.CandlesProcessed
		summary.TotalResampledCandles += sp.ResampledCandles
		if owner, ok := c.active[sym]; ok && owner == requestID {
			delete(c.active, sym)
		}
	}

	now := time.Now().UTC()
	summary.Duration = now.Sub(record.StartedAt)
	record.Summary = &summary
	record.CompletedAt = &now
	record.Progress.CurrentSymbol = ""
	record.Progress.EstimatedTimeRemaining = nil

	if cancelled {
		record.Status = models.StatusFailed
		if record.Error == "" {
			record.Error = "update cancelled"
		}
	} else {
		record.Status = models.StatusCompleted
	}
	delete(c.cancels, requestID)

	c.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"status":     record.Status,
		"succeeded":  summary.SucceededSymbols,
		"failed":     summary.FailedSymbols,
		"duration":   summary.Duration.String(),
	}).Info("Update request finished")
}

// normalize applies defaults and validates the request in place, returning
// the cleaned symbol list.
func (c *Coordinator) normalize(req *models.UpdateRequest) ([]string, error) {
	symbols := req.Symbols
	if len(symbols) == 0 {
		symbols = c.cfg.DefaultSymbols
	}
	seen := make(map[string]struct{}, len(symbols))
	cleaned := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		cleaned = append(cleaned, sym)
	}
	if len(cleaned) == 0 {
		return nil, &InvalidRequestError{Field: "symbols", Reason: "no symbols to update"}
	}

	if req.MaxConcurrent < 0 {
		return nil, &InvalidRequestError{Field: "max_concurrent", Reason: fmt.Sprintf("must be positive, got %d", req.MaxConcurrent)}
	}
	if req.MaxConcurrent == 0 {
		req.MaxConcurrent = c.cfg.MaxConcurrent
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && req.StartDate.After(req.EndDate) {
		return nil, &InvalidRequestError{Field: "date_range", Reason: "start_date after end_date"}
	}
	if req.StartDate.IsZero() && !req.EndDate.IsZero() {
		return nil, &InvalidRequestError{Field: "date_range", Reason: "end_date given without start_date"}
	}
	req.Symbols = cleaned
	return cleaned, nil
}

func (c *Coordinator) janitor() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *Coordinator) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().UTC().Add(-c.cfg.RecordTTL)
	for id, record := range c.records {
		if record.IsComplete() && record.CompletedAt != nil && record.CompletedAt.Before(cutoff) {
			delete(c.records, id)
			c.logger.WithField("request_id", id).Debug("Evicted finished update record")
		}
	}
}
