// Package cache is the client-facing TTL cache. Entries are JSON documents
// carrying their own write time and lifetime, so expiry does not depend on
// the backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = 30 * time.Minute

const statsLogEvery = 5

type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl"`
}

// Stats are the lookup counters of a cache namespace.
type Stats struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Total      int64   `json:"total"`
	Efficiency float64 `json:"efficiency"`
}

func newStats(hits, misses int64) Stats {
	s := Stats{Hits: hits, Misses: misses, Total: hits + misses}
	if s.Total > 0 {
		s.Efficiency = float64(hits) / float64(s.Total) * 100
	}
	return s
}

// TTLCache is a namespaced read-through cache with per-entry TTL and
// hit/miss accounting. Storage failures are logged and behave as misses.
type TTLCache struct {
	backend    Backend
	namespace  string
	defaultTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*TTLCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *TTLCache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *TTLCache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *TTLCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a cache storing its keys under namespace.
func New(backend Backend, namespace string, opts ...Option) (*TTLCache, error) {
	if backend == nil {
		return nil, errors.New("cache backend is required")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "nk_cache"
	}
	c := &TTLCache{
		backend:    backend,
		namespace:  namespace,
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *TTLCache) entryPrefix() string        { return c.namespace + ":entry:" }
func (c *TTLCache) entryKey(key string) string { return c.entryPrefix() + key }
func (c *TTLCache) hitsKey() string            { return c.namespace + ":stats:hits" }
func (c *TTLCache) missesKey() string          { return c.namespace + ":stats:misses" }

// Set stores value under key for ttl. Failures are logged, never returned.
func (c *TTLCache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("cache_encode_failed", "key", key, "err", err)
		return
	}
	raw, err := json.Marshal(entry{Data: data, Timestamp: c.now().UnixMilli(), TTL: ttl.Milliseconds()})
	if err != nil {
		c.logger.Warn("cache_encode_failed", "key", key, "err", err)
		return
	}
	if err := c.backend.Set(ctx, c.entryKey(key), raw, ttl); err != nil {
		c.logger.Warn("cache_write_failed", "key", key, "err", err)
		return
	}
	c.logger.Debug("cache_set", "key", key, "ttl", ttl.String())
}

// Get decodes the entry for key into out and reports whether it was a hit.
// Expired or unreadable entries count as misses and are removed.
func (c *TTLCache) Get(ctx context.Context, key string, out any) bool {
	raw, ok, err := c.backend.Get(ctx, c.entryKey(key))
	if err != nil {
		c.logger.Warn("cache_read_failed", "key", key, "err", err)
		c.record(ctx, false)
		return false
	}
	if !ok {
		c.logger.Debug("cache_miss", "key", key)
		c.record(ctx, false)
		return false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("cache_entry_invalid", "key", key, "err", err)
		c.evict(ctx, key)
		c.record(ctx, false)
		return false
	}
	if c.now().UnixMilli()-e.Timestamp >= e.TTL {
		c.logger.Debug("cache_expired", "key", key)
		c.evict(ctx, key)
		c.record(ctx, false)
		return false
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		c.logger.Warn("cache_entry_invalid", "key", key, "err", err)
		c.evict(ctx, key)
		c.record(ctx, false)
		return false
	}
	c.logger.Debug("cache_hit", "key", key)
	c.record(ctx, true)
	return true
}

func (c *TTLCache) evict(ctx context.Context, key string) {
	if err := c.backend.Delete(ctx, c.entryKey(key)); err != nil {
		c.logger.Warn("cache_delete_failed", "key", key, "err", err)
	}
}

// Invalidate removes key.
func (c *TTLCache) Invalidate(ctx context.Context, key string) {
	c.evict(ctx, key)
	c.logger.Debug("cache_invalidated", "key", key)
}

// Clear removes every entry in the namespace. Counters and keys outside the
// namespace are left alone.
func (c *TTLCache) Clear(ctx context.Context) error {
	if err := c.backend.DeletePrefix(ctx, c.entryPrefix()); err != nil {
		return err
	}
	c.logger.Info("cache_cleared", "namespace", c.namespace)
	return nil
}

// Stats returns the current counters.
func (c *TTLCache) Stats(ctx context.Context) (Stats, error) {
	hits, err := c.counter(ctx, c.hitsKey())
	if err != nil {
		return Stats{}, err
	}
	misses, err := c.counter(ctx, c.missesKey())
	if err != nil {
		return Stats{}, err
	}
	return newStats(hits, misses), nil
}

// ResetStats zeroes the counters.
func (c *TTLCache) ResetStats(ctx context.Context) error {
	return c.backend.Delete(ctx, c.hitsKey(), c.missesKey())
}

func (c *TTLCache) counter(ctx context.Context, key string) (int64, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (c *TTLCache) record(ctx context.Context, hit bool) {
	key := c.missesKey()
	if hit {
		key = c.hitsKey()
	}
	if _, err := c.backend.Incr(ctx, key); err != nil {
		c.logger.Warn("cache_stats_failed", "err", err)
		return
	}
	stats, err := c.Stats(ctx)
	if err != nil || stats.Total == 0 || stats.Total%statsLogEvery != 0 {
		return
	}
	c.logger.Info("cache_stats",
		"namespace", c.namespace,
		"total", stats.Total,
		"hits", stats.Hits,
		"misses", stats.Misses,
		"efficiency", strconv.FormatFloat(stats.Efficiency, 'f', 1, 64),
	)
}
