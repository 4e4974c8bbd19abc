package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/models"
)

// StorageError wraps failures from the persistence layer so callers can
// distinguish them from vendor or validation errors.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PgxPool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CandleStore persists one candle series per (symbol, timeframe) pair with
// merge-by-timestamp semantics: writing a timestamp that already exists
// keeps the stored candle.
type CandleStore struct {
	pool   PgxPool
	logger *logrus.Logger
}

func NewCandleStore(pool PgxPool, logger *logrus.Logger) *CandleStore {
	return &CandleStore{pool: pool, logger: logger}
}

const createCandlesTable = `
CREATE TABLE IF NOT EXISTS candles (
	symbol     TEXT        NOT NULL,
	timeframe  TEXT        NOT NULL,
	ts         TIMESTAMPTZ NOT NULL,
	open       NUMERIC     NOT NULL,
	high       NUMERIC     NOT NULL,
	low        NUMERIC     NOT NULL,
	close      NUMERIC     NOT NULL,
	volume     BIGINT      NOT NULL,
	PRIMARY KEY (symbol, timeframe, ts)
)`

// EnsureSchema creates the candles table when it does not exist yet.
func (s *CandleStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createCandlesTable); err != nil {
		return &StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

const insertCandles = `
INSERT INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
SELECT $1, $2,
	unnest($3::timestamptz[]),
	unnest($4::text[])::numeric,
	unnest($5::text[])::numeric,
	unnest($6::text[])::numeric,
	unnest($7::text[])::numeric,
	unnest($8::bigint[])
ON CONFLICT (symbol, timeframe, ts) DO NOTHING`

// Write merges the series into storage and returns the number of candles
// that were actually new. Duplicate timestamps are left untouched, which
// keeps gap filling idempotent.
func (s *CandleStore) Write(ctx context.Context, series models.CandleSeries) (int64, error) {
	if series.Len() == 0 {
		return 0, nil
	}

	n := series.Len()
	timestamps := make([]time.Time, n)
	opens := make([]string, n)
	highs := make([]string, n)
	lows := make([]string, n)
	closes := make([]string, n)
	volumes := make([]int64, n)
	for i, c := range series.Candles {
		timestamps[i] = c.Timestamp.UTC()
		opens[i] = c.Open.String()
		highs[i] = c.High.String()
		lows[i] = c.Low.String()
		closes[i] = c.Close.String()
		volumes[i] = c.Volume
	}

	tag, err := s.pool.Exec(ctx, insertCandles,
		series.Symbol, string(series.Timeframe),
		timestamps, opens, highs, lows, closes, volumes)
	if err != nil {
		return 0, &StorageError{Op: "write series", Err: err}
	}

	s.logger.WithFields(logrus.Fields{
		"symbol":    series.Symbol,
		"timeframe": series.Timeframe,
		"candles":   n,
		"inserted":  tag.RowsAffected(),
	}).Debug("Series written")
	return tag.RowsAffected(), nil
}

const selectCandles = `
SELECT ts, open::text, high::text, low::text, close::text, volume
FROM candles
WHERE symbol = $1 AND timeframe = $2 AND ts >= $3 AND ts < $4
ORDER BY ts ASC`

// Read returns the stored series for [start, end), sorted ascending.
func (s *CandleStore) Read(ctx context.Context, symbol string, timeframe models.Timeframe, start, end time.Time) (models.CandleSeries, error) {
	series := models.CandleSeries{Symbol: symbol, Timeframe: timeframe}

	rows, err := s.pool.Query(ctx, selectCandles, symbol, string(timeframe), start.UTC(), end.UTC())
	if err != nil {
		return series, &StorageError{Op: "read series", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts                      time.Time
			open, high, low, close_ string
			volume                  int64
		)
		if err := rows.Scan(&ts, &open, &high, &low, &close_, &volume); err != nil {
			return series, &StorageError{Op: "scan candle", Err: err}
		}
		candle, err := parseCandle(ts, open, high, low, close_, volume)
		if err != nil {
			return series, &StorageError{Op: "parse candle", Err: err}
		}
		series.Candles = append(series.Candles, candle)
	}
	if err := rows.Err(); err != nil {
		return series, &StorageError{Op: "read series", Err: err}
	}
	return series, nil
}

const selectLastTimestamp = `
SELECT max(ts) FROM candles WHERE symbol = $1 AND timeframe = $2`

// LastTimestamp returns the newest stored candle timestamp for the pair.
// ok is false when nothing is stored yet.
func (s *CandleStore) LastTimestamp(ctx context.Context, symbol string, timeframe models.Timeframe) (time.Time, bool, error) {
	var last *time.Time
	err := s.pool.QueryRow(ctx, selectLastTimestamp, symbol, string(timeframe)).Scan(&last)
	if err != nil {
		return time.Time{}, false, &StorageError{Op: "last timestamp", Err: err}
	}
	if last == nil {
		return time.Time{}, false, nil
	}
	return last.UTC(), true, nil
}

func parseCandle(ts time.Time, open, high, low, close_ string, volume int64) (models.Candle, error) {
	o, err := decimal.NewFromString(open)
	if err != nil {
		return models.Candle{}, err
	}
	h, err := decimal.NewFromString(high)
	if err != nil {
		return models.Candle{}, err
	}
	l, err := decimal.NewFromString(low)
	if err != nil {
		return models.Candle{}, err
	}
	c, err := decimal.NewFromString(close_)
	if err != nil {
		return models.Candle{}, err
	}
	return models.Candle{
		Timestamp: ts.UTC(),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		Volume:    volume,
	}, nil
}
