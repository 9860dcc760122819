package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Observer receives hit/miss notifications, e.g. for metrics.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// ReportCache stores serialized report views keyed by their parameters.
// Keys embed a generation number; Invalidate bumps it so every entry
// written before becomes unreachable and expires by TTL.
type ReportCache struct {
	kv     KVStore
	prefix string
	ttl    time.Duration
	obs    Observer
	logger *zap.Logger
}

// NewReportCache creates a cache over kv.
func NewReportCache(kv KVStore, prefix string, ttl time.Duration, obs Observer, logger *zap.Logger) *ReportCache {
	return &ReportCache{
		kv:     kv,
		prefix: prefix,
		ttl:    ttl,
		obs:    obs,
		logger: logger,
	}
}

func (c *ReportCache) generationKey() string {
	return c.prefix + ":report:generation"
}

// Generation returns the current cache generation.
func (c *ReportCache) Generation(ctx context.Context) (int64, error) {
	raw, err := c.kv.Get(ctx, c.generationKey())
	if errors.Is(err, ErrCacheMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	gen, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache generation %q: %w", raw, err)
	}
	return gen, nil
}

func (c *ReportCache) entryKey(gen int64, kind, scope string, start, end *time.Time) string {
	return fmt.Sprintf("%s:report:%d:%s", c.prefix, gen, ReportKey(kind, scope, start, end))
}

// Get decodes a cached report into out. found is false on a miss. gen is
// the generation the lookup ran under; a report built after a miss must be
// stored with that same generation so an Invalidate in between discards it.
func (c *ReportCache) Get(ctx context.Context, kind, scope string, start, end *time.Time, out any) (gen int64, found bool, err error) {
	gen, err = c.Generation(ctx)
	if err != nil {
		return 0, false, err
	}
	key := c.entryKey(gen, kind, scope, start, end)

	raw, err := c.kv.Get(ctx, key)
	if errors.Is(err, ErrCacheMiss) {
		c.miss()
		return gen, false, nil
	}
	if err != nil {
		return gen, false, fmt.Errorf("failed to get cache: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		c.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.miss()
		return gen, false, nil
	}
	if c.obs != nil {
		c.obs.CacheHit()
	}
	return gen, true, nil
}

// Set stores v as JSON under generation gen, normally the one returned by
// the Get that missed. A stale gen writes an entry nobody can read.
func (c *ReportCache) Set(ctx context.Context, gen int64, kind, scope string, start, end *time.Time, v any) error {
	key := c.entryKey(gen, kind, scope, start, end)
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	c.logger.Debug("Cached report",
		zap.String("kind", kind),
		zap.String("scope", scope),
		zap.Int64("generation", gen),
		zap.String("key", key),
	)
	return nil
}

// Invalidate makes every cached report unreachable.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	gen, err := c.kv.Incr(ctx, c.generationKey())
	if err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	c.logger.Info("Report cache invalidated", zap.Int64("generation", gen))
	return nil
}

func (c *ReportCache) miss() {
	if c.obs != nil {
		c.obs.CacheMiss()
	}
}
