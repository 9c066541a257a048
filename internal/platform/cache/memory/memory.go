// Package memory is the single-instance cache driver. Sessions and rate
// limit windows live in process memory and vanish on restart.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	svccfg "github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("memory", func(config map[string]any) (cache.CacheWithCounter, error) {
		var fc fileConfig
		if err := svccfg.Decode(config, &fc); err != nil {
			return nil, fmt.Errorf("invalid memory cache config: %w", err)
		}
		return New(fc.defaultTTL(), fc.cleanupInterval()), nil
	})
}

// fileConfig mirrors [cache.drivers.memory].
type fileConfig struct {
	DefaultTTLSeconds      int `mapstructure:"default_ttl_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`
}

func (fc fileConfig) defaultTTL() time.Duration {
	if fc.DefaultTTLSeconds > 0 {
		return time.Duration(fc.DefaultTTLSeconds) * time.Second
	}
	return cache.TTLDefault
}

func (fc fileConfig) cleanupInterval() time.Duration {
	if fc.CleanupIntervalSeconds > 0 {
		return time.Duration(fc.CleanupIntervalSeconds) * time.Second
	}
	return 5 * time.Minute
}

type expiring[T any] struct {
	v         T
	expiresAt time.Time
}

func (e expiring[T]) liveAt(now time.Time) bool { return now.Before(e.expiresAt) }

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests that step through expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache keeps values and counters in two separate keyspaces, so a counter
// never shadows a value stored under the same key.
type Cache struct {
	mu       sync.RWMutex
	values   map[string]expiring[[]byte]
	counters map[string]expiring[int64]

	ttl       time.Duration
	now       func() time.Time
	stop      chan struct{}
	closeOnce sync.Once
}

// New creates a cache. Expired entries are swept every cleanupInterval;
// zero disables the sweeper and expired entries are only hidden.
func New(defaultTTL, cleanupInterval time.Duration, opts ...Option) *Cache {
	c := &Cache{
		values:   make(map[string]expiring[[]byte]),
		counters: make(map[string]expiring[int64]),
		ttl:      defaultTTL,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ttl <= 0 {
		c.ttl = cache.TTLDefault
	}
	if cleanupInterval > 0 {
		go c.sweepEvery(cleanupInterval)
	}
	return c
}

func (c *Cache) ttlOr(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.ttl
	}
	return ttl
}

func (c *Cache) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.stop:
			return
		}
	}
}

// Sweep drops expired values and counters.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.values {
		if !e.liveAt(now) {
			delete(c.values, k)
		}
	}
	for k, e := range c.counters {
		if !e.liveAt(now) {
			delete(c.counters, k)
		}
	}
}

// Len returns the number of stored values, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Get returns a copy of the value. An entry past its TTL but not yet swept
// yields cache.ErrExpired.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.values[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if !e.liveAt(c.now()) {
		return nil, cache.ErrExpired
	}
	return slices.Clone(e.v), nil
}

// Set stores a copy of value. A zero ttl uses the default.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := expiring[[]byte]{v: slices.Clone(value), expiresAt: c.now().Add(c.ttlOr(ttl))}
	c.mu.Lock()
	c.values[key] = e
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.values, key)
	c.mu.Unlock()
	return nil
}

func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.values[key]
	return ok && e.liveAt(c.now()), nil
}

// Increment implements cache.Counter. The first increment of a window
// fixes its end; later increments do not extend it.
func (c *Cache) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e, ok := c.counters[key]
	if !ok || !e.liveAt(now) {
		e = expiring[int64]{expiresAt: now.Add(c.ttlOr(ttl))}
	}
	e.v += delta
	c.counters[key] = e
	return e.v, e.expiresAt, nil
}

func (c *Cache) GetCount(_ context.Context, key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.counters[key]
	if !ok || !e.liveAt(c.now()) {
		return 0, nil
	}
	return e.v, nil
}

func (c *Cache) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.counters, key)
	c.mu.Unlock()
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
