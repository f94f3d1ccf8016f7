// Package tagcache memoizes data-access functions on the server. Results are
// kept for a revalidation interval and can be dropped early by tag.
package tagcache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options control one memoized function.
type Options struct {
	Revalidate time.Duration
	Tags       []string
}

// Cache shares a backend and miss collapsing between memoized functions.
type Cache struct {
	backend Backend
	group   singleflight.Group
	logger  *slog.Logger
}

func New(backend Backend, logger *slog.Logger) (*Cache, error) {
	if backend == nil {
		return nil, errors.New("tagcache backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{backend: backend, logger: logger}, nil
}

// InvalidateTag drops every value labelled with tag.
func (c *Cache) InvalidateTag(ctx context.Context, tag string) error {
	if err := c.backend.InvalidateTag(ctx, tag); err != nil {
		return err
	}
	c.logger.Debug("tagcache_invalidated", "tag", tag)
	return nil
}

// InvalidateTags drops each tag in turn and returns the first error.
func (c *Cache) InvalidateTags(ctx context.Context, tags ...string) error {
	var firstErr error
	for _, tag := range tags {
		if err := c.InvalidateTag(ctx, tag); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Memoize wraps fn so its result is served from the cache until
// opts.Revalidate elapses or one of opts.Tags is invalidated. Errors from fn
// are returned and not cached. Backend failures fall through to fn.
func Memoize[T any](c *Cache, keyParts []string, opts Options, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	key := strings.Join(keyParts, ":")
	return func(ctx context.Context) (T, error) {
		var zero T
		if raw, ok, err := c.backend.Get(ctx, key); err != nil {
			c.logger.Warn("tagcache_read_failed", "key", key, "err", err)
		} else if ok {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				c.logger.Debug("tagcache_hit", "key", key)
				return v, nil
			}
			c.logger.Warn("tagcache_entry_invalid", "key", key)
		}

		res, err, _ := c.group.Do(key, func() (any, error) {
			// Read before fn so an invalidation during fn blocks the write.
			gen, genErr := c.backend.Generation(ctx, opts.Tags)
			if genErr != nil {
				c.logger.Warn("tagcache_read_failed", "key", key, "err", genErr)
			}
			v, err := fn(ctx)
			if err != nil {
				return nil, err
			}
			c.logger.Debug("tagcache_miss", "key", key)
			if genErr != nil {
				return v, nil
			}
			raw, err := json.Marshal(v)
			if err != nil {
				c.logger.Warn("tagcache_encode_failed", "key", key, "err", err)
				return v, nil
			}
			stored, err := c.backend.Set(ctx, key, raw, opts.Revalidate, opts.Tags, gen)
			switch {
			case err != nil:
				c.logger.Warn("tagcache_write_failed", "key", key, "err", err)
			case !stored:
				c.logger.Debug("tagcache_write_skipped_stale", "key", key)
			}
			return v, nil
		})
		if err != nil {
			return zero, err
		}
		v, _ := res.(T)
		return v, nil
	}
}
