package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/calendar"
	"github.com/simutrador/marketdata/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testCalendar() *calendar.Calendar {
	return calendar.New(calendar.DefaultConfig())
}

// memStore is an in-memory CandleStore with the same merge-by-timestamp
// semantics as the Postgres implementation.
type memStore struct {
	mu       sync.Mutex
	data     map[string]map[int64]models.Candle
	writeErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[int64]models.Candle)}
}

func storeKey(symbol string, tf models.Timeframe) string {
	return symbol + "|" + string(tf)
}

func (m *memStore) Write(ctx context.Context, series models.CandleSeries) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	key := storeKey(series.Symbol, series.Timeframe)
	if m.data[key] == nil {
		m.data[key] = make(map[int64]models.Candle)
	}
	var inserted int64
	for _, c := range series.Candles {
		if _, exists := m.data[key][c.Timestamp.Unix()]; !exists {
			m.data[key][c.Timestamp.Unix()] = c
			inserted++
		}
	}
	return inserted, nil
}

func (m *memStore) Read(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) (models.CandleSeries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candles []models.Candle
	for _, c := range m.data[storeKey(symbol, tf)] {
		if !c.Timestamp.Before(start) && c.Timestamp.Before(end) {
			candles = append(candles, c)
		}
	}
	return models.NewCandleSeries(symbol, tf, candles), nil
}

func (m *memStore) LastTimestamp(ctx context.Context, symbol string, tf models.Timeframe) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last time.Time
	found := false
	for _, c := range m.data[storeKey(symbol, tf)] {
		if !found || c.Timestamp.After(last) {
			last = c.Timestamp
			found = true
		}
	}
	return last, found, nil
}

func (m *memStore) count(symbol string, tf models.Timeframe) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[storeKey(symbol, tf)])
}

// fetcherFunc adapts a closure to the Fetcher interface.
type fetcherFunc func(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, string, error)

func (f fetcherFunc) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]models.Candle, string, error) {
	return f(ctx, symbol, start, end)
}

func sessionsFor(f Fetcher) SessionFactory {
	return func() Fetcher { return f }
}

// minuteCandle builds a valid candle at ts with a price derived from the
// minute so series are distinguishable.
func minuteCandle(ts time.Time) models.Candle {
	price := decimal.NewFromInt(100).Add(decimal.NewFromInt(int64(ts.Minute())).Div(decimal.NewFromInt(100)))
	return models.Candle{
		Timestamp: ts,
		Open:      price,
		High:      price.Add(decimal.RequireFromString("0.5")),
		Low:       price.Sub(decimal.RequireFromString("0.5")),
		Close:     price,
		Volume:    1000,
	}
}

// sessionCandles returns one candle for every session minute of day, minus
// the minute offsets listed in skip.
func sessionCandles(cal *calendar.Calendar, day time.Time, skip ...int) []models.Candle {
	skipped := make(map[int]struct{}, len(skip))
	for _, s := range skip {
		skipped[s] = struct{}{}
	}
	var out []models.Candle
	for i, ts := range cal.MinuteGrid(day) {
		if _, drop := skipped[i]; drop {
			continue
		}
		out = append(out, minuteCandle(ts))
	}
	return out
}

// rangeCandles generates candles for every session minute in [gap.Start,
// gap.End).
func rangeCandles(start, end time.Time) []models.Candle {
	var out []models.Candle
	for ts := start; ts.Before(end); ts = ts.Add(time.Minute) {
		out = append(out, minuteCandle(ts))
	}
	return out
}

// waitComplete polls until the record reaches a terminal status.
func waitComplete(c *Coordinator, requestID string, timeout time.Duration) (models.RequestRecord, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		record, err := c.GetStatus(requestID)
		if err != nil {
			return models.RequestRecord{}, err
		}
		if record.IsComplete() {
			return record, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
	return models.RequestRecord{}, fmt.Errorf("request %s did not finish within %s", requestID, timeout)
}
