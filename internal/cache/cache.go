// Package cache provides the Inspector's known-group cache: a pure
// optimization, never load-bearing for correctness (SPEC_FULL.md §12).
// It exposes only the single get/set-with-TTL shape list_groups(known)
// actually needs, not a full cache driver's Tags/Lock/Remember surface.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is the narrow contract the Inspector depends on.
type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Close() error
}

// MemoryDriver is an in-process Cache, used when REDIS_URL is unset.
// The Inspector may call Get/Set from concurrent requests, so entries
// is guarded by a mutex rather than assuming single-goroutine access.
type MemoryDriver struct {
	mu      sync.RWMutex
	entries map[string]memEntry
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// NewMemoryDriver builds an empty in-process cache.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{entries: make(map[string]memEntry)}
}

func (m *MemoryDriver) Get(ctx context.Context, key string, dest any) error {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return ErrMiss
	}
	return json.Unmarshal(e.data, dest)
}

func (m *MemoryDriver) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = memEntry{data: data, expires: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryDriver) Close() error { return nil }

// RedisDriver is the go-redis-backed Cache: key-prefixed, JSON
// marshaled on Set and unmarshaled on Get.
type RedisDriver struct {
	client *redis.Client
	prefix string
}

// NewRedisDriver builds a Cache around an existing *redis.Client.
func NewRedisDriver(client *redis.Client, prefix string) *RedisDriver {
	return &RedisDriver{client: client, prefix: prefix}
}

func (d *RedisDriver) key(k string) string {
	if d.prefix == "" {
		return k
	}
	return d.prefix + ":" + k
}

func (d *RedisDriver) Get(ctx context.Context, key string, dest any) error {
	val, err := d.client.Get(ctx, d.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrMiss
		}
		return err
	}
	return json.Unmarshal(val, dest)
}

func (d *RedisDriver) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return d.client.Set(ctx, d.key(key), data, ttl).Err()
}

func (d *RedisDriver) Close() error {
	return d.client.Close()
}

var _ Cache = (*MemoryDriver)(nil)
var _ Cache = (*RedisDriver)(nil)
