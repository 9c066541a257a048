// Package cache provides TTL key-value storage and windowed counters used by
// the rate limiter and short-lived lookups.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/registry"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Counter provides fixed-window counters for rate limiting.
type Counter interface {
	// Increment adds delta to the counter and returns the new value together
	// with the time the current window ends. The window starts with the first
	// increment and is not extended by later ones.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error)

	// GetCount returns the current counter value, 0 if not found.
	GetCount(ctx context.Context, key string) (int64, error)

	// Reset drops the counter.
	Reset(ctx context.Context, key string) error
}

// CacheWithCounter combines Cache and Counter interfaces.
type CacheWithCounter interface {
	Cache
	Counter
}

// Default TTLs.
const (
	TTLDefault   = 15 * time.Minute
	TTLRateLimit = 1 * time.Minute
)

// DriverFactory builds a cache from its [cache.drivers.<name>] table.
type DriverFactory func(config map[string]any) (CacheWithCounter, error)

var drivers = registry.New[DriverFactory]("cache driver")

// RegisterDriver registers a driver from init().
func RegisterDriver(name string, factory DriverFactory) {
	drivers.MustRegister(name, factory)
}

// New creates an instance using the named driver.
func New(driver string, config map[string]any) (CacheWithCounter, error) {
	factory, err := drivers.Resolve(driver)
	if err != nil {
		return nil, err
	}
	return factory(config)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	return drivers.Names()
}
