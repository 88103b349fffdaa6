// Package reportcache keeps report responses in redis for a short TTL.
// A nil *Cache, a zero TTL or a redis failure all fall through to computing the report.
package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reports:"

// Recorder counts cache lookups. *metrics.Metrics satisfies it.
type Recorder interface {
	RecordCache(result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCache(string) {}

type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	metrics Recorder
}

// New builds a cache. logger and rec may be nil.
func New(client *redis.Client, ttl time.Duration, logger *slog.Logger, rec Recorder) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Cache{client: client, ttl: ttl, logger: logger, metrics: rec}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Key joins report name and parameters into a cache key.
func Key(report string, params ...any) string {
	var b strings.Builder
	b.WriteString(keyPrefix)
	b.WriteString(report)
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}

// GetOrCompute returns the cached value for key, or computes, stores and returns it.
// Errors from compute are returned as-is and never cached.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) (T, error) {
	if !c.enabled() {
		return compute(ctx)
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jerr := json.Unmarshal(raw, &v); jerr == nil {
			c.metrics.RecordCache("hit")
			return v, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
		c.metrics.RecordCache("error")
	case errors.Is(err, redis.Nil):
		c.metrics.RecordCache("miss")
	default:
		c.logger.WarnContext(ctx, "report cache read failed", "key", key, "error", err)
		c.metrics.RecordCache("error")
	}

	v, err := compute(ctx)
	if err != nil {
		return v, err
	}
	if payload, jerr := json.Marshal(v); jerr == nil {
		if serr := c.client.Set(ctx, key, payload, c.ttl).Err(); serr != nil {
			c.logger.WarnContext(ctx, "report cache write failed", "key", key, "error", serr)
		}
	}
	return v, nil
}

// InvalidateAll drops every cached report and returns how many keys were removed.
func (c *Cache) InvalidateAll(ctx context.Context) (int, error) {
	if !c.enabled() {
		return 0, nil
	}
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan report keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete report keys: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}
