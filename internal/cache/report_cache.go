// Package cache holds Redis-backed caches for derived data that is
// expensive to recompute, such as completeness reports.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/simutrador/marketdata/internal/models"
)

// ReportCacheStats tracks cache performance metrics
type ReportCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisReportCache caches completeness reports keyed by the analyzed symbol
// set and date range. Reports produced with auto_fill_gaps are never cached
// because the fill changes the underlying data.
type RedisReportCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *ReportCacheStats
	prefix string
	logger *logrus.Logger
}

// NewRedisReportCache creates a new Redis-based report cache
func NewRedisReportCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisReportCache {
	return &RedisReportCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &ReportCacheStats{},
		prefix: "completeness_report:",
		logger: logger,
	}
}

// Key derives a stable cache key from the symbol set and date range. Symbol
// order does not matter.
func (c *RedisReportCache) Key(symbols []string, start, end time.Time) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)

	raw := fmt.Sprintf("%s|%s|%s",
		strings.Join(sorted, ","),
		start.UTC().Format("2006-01-02"),
		end.UTC().Format("2006-01-02"))
	sum := sha256.Sum256([]byte(raw))
	return c.prefix + hex.EncodeToString(sum[:16])
}

// Get retrieves a cached report, reporting whether one was found.
func (c *RedisReportCache) Get(ctx context.Context, key string) (*models.CompletenessReport, bool) {
	data, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		c.miss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Redis error reading cached report")
		c.miss()
		return nil, false
	}

	var report models.CompletenessReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		c.logger.WithError(err).Warn("Error deserializing cached report")
		c.miss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return &report, true
}

// Set stores a report under the given key with the configured TTL.
func (c *RedisReportCache) Set(ctx context.Context, key string, report *models.CompletenessReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("serialize report: %w", err)
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache report: %w", err)
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
	return nil
}

// Invalidate drops every cached report. Called after gap filling writes new
// candles.
func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan report keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Stats returns a copy of the current hit/miss counters.
func (c *RedisReportCache) Stats() (hits, misses, sets int64) {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return c.stats.Hits, c.stats.Misses, c.stats.Sets
}

func (c *RedisReportCache) miss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
