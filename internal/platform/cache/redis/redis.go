// Package redis provides a Redis-backed cache driver built on go-redis.
// Shared counters let every instance behind the ingress enforce one rate
// limit window per caller.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	svccfg "github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache"
)

func init() {
	cache.RegisterDriver("redis", func(config map[string]any) (cache.CacheWithCounter, error) {
		cfg := DefaultConfig()
		var fc fileConfig
		if err := svccfg.Decode(config, &fc); err != nil {
			return nil, fmt.Errorf("invalid redis cache config: %w", err)
		}
		fc.apply(cfg)
		return New(cfg)
	})
}

// Config holds Redis connection configuration.
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	// KeyPrefix namespaces every key written by this cache.
	KeyPrefix  string
	DefaultTTL time.Duration
}

// DefaultConfig returns sensible defaults for Redis connection.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		KeyPrefix:    "campusmesh:",
		DefaultTTL:   cache.TTLDefault,
	}
}

// fileConfig mirrors [cache.drivers.redis].
type fileConfig struct {
	Addr              string `mapstructure:"addr"`
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	PoolSize          int    `mapstructure:"pool_size"`
	KeyPrefix         string `mapstructure:"key_prefix"`
	DialTimeoutMS     int    `mapstructure:"dial_timeout_ms"`
	DefaultTTLSeconds int    `mapstructure:"default_ttl_seconds"`
}

func (fc fileConfig) apply(cfg *Config) {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	cfg.Password = fc.Password
	cfg.DB = fc.DB
	if fc.PoolSize > 0 {
		cfg.PoolSize = fc.PoolSize
	}
	if fc.KeyPrefix != "" {
		cfg.KeyPrefix = fc.KeyPrefix
	}
	if fc.DialTimeoutMS > 0 {
		cfg.DialTimeout = time.Duration(fc.DialTimeoutMS) * time.Millisecond
	}
	if fc.DefaultTTLSeconds > 0 {
		cfg.DefaultTTL = time.Duration(fc.DefaultTTLSeconds) * time.Second
	}
}

// Cache implements cache.CacheWithCounter on a Redis server.
type Cache struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// New connects and pings the server, failing fast when it is unreachable.
func New(cfg *Config) (*Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = cache.TTLDefault
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout(cfg.DialTimeout))
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis health check failed (%s): %w", cfg.Addr, err)
	}

	return &Cache{client: client, prefix: cfg.KeyPrefix, ttl: ttl}, nil
}

func pingTimeout(dial time.Duration) time.Duration {
	if dial <= 0 {
		return 5 * time.Second
	}
	return 2 * dial
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.ttl
	}
	return ttl
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	return val, err
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, c.ttlOrDefault(ttl)).Err()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Increment adds delta to a counter. The expiry is set only by the increment
// that creates the key, so the window is fixed from its first hit.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	ttl = c.ttlOrDefault(ttl)
	k := c.key(key)

	n, err := c.client.IncrBy(ctx, k, delta).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if n == delta {
		if err := c.client.PExpire(ctx, k, ttl).Err(); err != nil {
			return 0, time.Time{}, err
		}
		return n, time.Now().Add(ttl), nil
	}

	remaining, err := c.client.PTTL(ctx, k).Result()
	if err != nil {
		return 0, time.Time{}, err
	}
	if remaining < 0 {
		// Key lost its expiry (created by a crashed writer); start a new window.
		if err := c.client.PExpire(ctx, k, ttl).Err(); err != nil {
			return 0, time.Time{}, err
		}
		remaining = ttl
	}
	return n, time.Now().Add(remaining), nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Get(ctx, c.key(key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, err
}

// Reset drops a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

var _ cache.CacheWithCounter = (*Cache)(nil)
