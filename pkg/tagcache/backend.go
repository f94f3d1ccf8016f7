package tagcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backend stores memoized payloads together with the tags that label them.
//
// Every InvalidateTag advances the tag's generation. Generation returns the
// combined generation of tags, and Set stores only while that value still
// equals gen, so a fetch that overlapped an invalidation is never written.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Generation(ctx context.Context, tags []string) (uint64, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string, gen uint64) (bool, error)
	InvalidateTag(ctx context.Context, tag string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is a single-process Backend.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	tags    map[string]map[string]struct{}
	gens    map[string]uint64
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		tags:    make(map[string]map[string]struct{}),
		gens:    make(map[string]uint64),
		now:     time.Now,
	}
}

// WithClock replaces time.Now and returns the backend.
func (b *MemoryBackend) WithClock(now func() time.Time) *MemoryBackend {
	if now != nil {
		b.now = now
	}
	return b
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !b.now().Before(e.expiresAt) {
		delete(b.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (b *MemoryBackend) Generation(_ context.Context, tags []string) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generation(tags), nil
}

func (b *MemoryBackend) generation(tags []string) uint64 {
	var gen uint64
	for _, tag := range tags {
		gen += b.gens[tag]
	}
	return gen
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags []string, gen uint64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.generation(tags) != gen {
		return false, nil
	}
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = b.now().Add(ttl)
	}
	b.entries[key] = e
	for _, tag := range tags {
		keys := b.tags[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			b.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return true, nil
}

func (b *MemoryBackend) InvalidateTag(_ context.Context, tag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gens[tag]++
	for key := range b.tags[tag] {
		delete(b.entries, key)
	}
	delete(b.tags, tag)
	return nil
}

// setIfGenerationScript writes the value and its tag memberships only when
// the summed tag generations still match ARGV[3].
// KEYS: value key, n generation keys, n tag keys.
// ARGV: value, ttl ms, expected generation, n, member.
var setIfGenerationScript = redis.NewScript(`
local n = tonumber(ARGV[4])
local gen = 0
for i = 1, n do
  gen = gen + tonumber(redis.call("GET", KEYS[1 + i]) or "0")
end
if gen ~= tonumber(ARGV[3]) then
  return 0
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ttl)
else
  redis.call("SET", KEYS[1], ARGV[1])
end
for i = 1, n do
  redis.call("SADD", KEYS[1 + n + i], ARGV[5])
end
return 1
`)

// RedisBackend keeps values at <prefix>:v:<key>, tag membership in the sets
// <prefix>:t:<tag> and tag generations at <prefix>:g:<tag>.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisBackend(client redis.UniversalClient, prefix string) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "neokudilonga:cache"
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

func (b *RedisBackend) valueKey(key string) string { return b.prefix + ":v:" + key }
func (b *RedisBackend) tagKey(tag string) string   { return b.prefix + ":t:" + tag }
func (b *RedisBackend) genKey(tag string) string   { return b.prefix + ":g:" + tag }

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := b.client.Get(ctx, b.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (b *RedisBackend) Generation(ctx context.Context, tags []string) (uint64, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	keys := make([]string, len(tags))
	for i, tag := range tags {
		keys[i] = b.genKey(tag)
	}
	vals, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}
	var gen uint64
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("tag generation %q: %w", s, err)
		}
		gen += n
	}
	return gen, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string, gen uint64) (bool, error) {
	keys := make([]string, 0, 1+2*len(tags))
	keys = append(keys, b.valueKey(key))
	for _, tag := range tags {
		keys = append(keys, b.genKey(tag))
	}
	for _, tag := range tags {
		keys = append(keys, b.tagKey(tag))
	}
	stored, err := setIfGenerationScript.Run(ctx, b.client, keys,
		value, max(ttl, 0).Milliseconds(), gen, len(tags), key).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (b *RedisBackend) InvalidateTag(ctx context.Context, tag string) error {
	if err := b.client.Incr(ctx, b.genKey(tag)).Err(); err != nil {
		return err
	}
	members, err := b.client.SMembers(ctx, b.tagKey(tag)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(members)+1)
	for _, m := range members {
		keys = append(keys, b.valueKey(m))
	}
	keys = append(keys, b.tagKey(tag))
	return b.client.Del(ctx, keys...).Err()
}
