// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: strict or dev.
	Mode string `toml:"mode"`

	// PublicOrigin is the origin clients reach this instance on.
	// Example: "https://connect.campus.example"
	PublicOrigin string `toml:"public_origin"`

	// ListenAddr is the address to listen on.
	// Example: ":8080"
	ListenAddr string `toml:"listen_addr"`

	Server ServerConfig `toml:"server"`

	Logging LoggingConfig `toml:"logging"`

	Store StoreConfig `toml:"store"`

	Cache CacheConfig `toml:"cache"`

	PubSub PubSubConfig `toml:"pubsub"`

	Auth AuthConfig `toml:"auth"`

	Connections ConnectionsConfig `toml:"connections"`

	// HTTP holds per-service HTTP configuration (Reva-style).
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
// Interceptors are configured under [http.interceptors.<name>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config via cfg.Decode() with Setter interface.
	Services map[string]map[string]any `toml:"services"`

	// Interceptors maps interceptor names to their raw config maps.
	// Ratelimit profiles live at [http.interceptors.ratelimit.profiles.<name>].
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies is a list of CIDR ranges for trusted reverse proxies.
	// Forwarded client address headers are only honored from these addresses.
	// Default: ["127.0.0.0/8", "::1/128"]
	TrustedProxies []string `toml:"trusted_proxies"`

	// ShutdownTimeoutSeconds bounds graceful shutdown. Default: 15.
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in strict mode, debug in dev mode.
	Level string `toml:"level"`

	// AllowSensitive permits logging of sensitive values (tokens, secrets).
	AllowSensitive bool `toml:"allow_sensitive"`
}

// StoreConfig selects and configures the persistence driver.
type StoreConfig struct {
	// Driver is one of memory, json, sqlite, postgres, mongo.
	Driver  string      `toml:"driver"`
	DataDir string      `toml:"data_dir"`
	DSN     string      `toml:"dsn"`
	Mongo   MongoConfig `toml:"mongo"`
}

// MongoConfig holds [store.mongo].
type MongoConfig struct {
	URI              string `toml:"uri"`
	Database         string `toml:"database"`
	ConnectTimeoutMS int    `toml:"connect_timeout_ms"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default) or "redis".
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration (Reva-style).
	// Example: [cache.drivers.redis] addr = "redis:6379"
	Drivers map[string]any `toml:"drivers"`
}

// PubSubConfig selects the bus that fans change events out to live streams.
type PubSubConfig struct {
	// Driver is "memory" (single instance) or "redis".
	Driver string         `toml:"driver"`
	Redis  map[string]any `toml:"redis"`
}

// AuthConfig holds local identity settings.
type AuthConfig struct {
	// SessionTTLHours is the lifetime of cookie sessions. Default: 24.
	SessionTTLHours int `toml:"session_ttl_hours"`

	// JWTSecret enables HS256 bearer tokens when non-empty.
	JWTSecret string `toml:"jwt_secret"`

	// JWTTTLMinutes is the bearer token lifetime. Default: 60.
	JWTTTLMinutes int `toml:"jwt_ttl_minutes"`

	// Argon2Time is the argon2id time parameter. Default: 3.
	Argon2Time uint32 `toml:"argon2_time"`

	BootstrapAdmin BootstrapAdminConfig `toml:"bootstrap_admin"`
}

// BootstrapAdminConfig holds bootstrap admin credentials.
type BootstrapAdminConfig struct {
	// Username for the admin. Empty disables bootstrapping.
	Username string `toml:"username"`

	// Password for the admin. If empty on first boot, a random password is generated.
	Password string `toml:"password"`
}

// ConnectionsConfig tunes the connection lifecycle and suggestion selector.
type ConnectionsConfig struct {
	// CounterPolicy is caller_only (default) or both.
	CounterPolicy string `toml:"counter_policy"`

	// NotificationScanLimit bounds the scan that marks a connection request
	// notification as handled. Default: 50.
	NotificationScanLimit int `toml:"notification_scan_limit"`

	SuggestDefaultLimit int `toml:"suggest_default_limit"`
	SuggestMaxLimit     int `toml:"suggest_max_limit"`
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	result := make(map[string]any, len(svcCfg))
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// StoreDriverConfig converts [store] into the driver registry's config.
func (c *Config) StoreDriverConfig() *store.DriverConfig {
	return &store.DriverConfig{
		Driver:  c.Store.Driver,
		DataDir: c.Store.DataDir,
		DSN:     c.Store.DSN,
		Mongo: store.MongoConfig{
			URI:            c.Store.Mongo.URI,
			Database:       c.Store.Mongo.Database,
			ConnectTimeout: time.Duration(c.Store.Mongo.ConnectTimeoutMS) * time.Millisecond,
		},
	}
}

// CacheDriverConfig returns the [cache.drivers.<driver>] table for the
// selected driver, or nil.
func (c *Config) CacheDriverConfig() map[string]any {
	if c.Cache.Drivers == nil {
		return nil
	}
	m, _ := c.Cache.Drivers[c.Cache.Driver].(map[string]any)
	return m
}

// SessionTTL returns the configured session lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTLHours) * time.Hour
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

// SlogLevel maps Logging.Level onto slog levels. slog has no trace; trace
// maps to debug-4.
func (c *Config) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString(fmt.Sprintf("  PublicOrigin: %q,\n", c.PublicOrigin))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString(fmt.Sprintf("  Server: {TrustedProxies: %v, ShutdownTimeoutSeconds: %d},\n",
		c.Server.TrustedProxies, c.Server.ShutdownTimeoutSeconds))
	sb.WriteString(fmt.Sprintf("  Logging: {Level: %q, AllowSensitive: %v},\n", c.Logging.Level, c.Logging.AllowSensitive))
	sb.WriteString("  Store: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Store.Driver))
	sb.WriteString(fmt.Sprintf("    DataDir: %q,\n", c.Store.DataDir))
	sb.WriteString(fmt.Sprintf("    DSN: %s,\n", redact(c.Store.DSN)))
	sb.WriteString(fmt.Sprintf("    Mongo.URI: %s,\n", redact(c.Store.Mongo.URI)))
	sb.WriteString(fmt.Sprintf("    Mongo.Database: %q,\n", c.Store.Mongo.Database))
	sb.WriteString("  },\n")
	sb.WriteString(fmt.Sprintf("  Cache: {Driver: %q, Drivers: %v},\n", c.Cache.Driver, sortedKeys(c.Cache.Drivers)))
	sb.WriteString(fmt.Sprintf("  PubSub: {Driver: %q},\n", c.PubSub.Driver))
	sb.WriteString("  Auth: {\n")
	sb.WriteString(fmt.Sprintf("    SessionTTLHours: %d,\n", c.Auth.SessionTTLHours))
	sb.WriteString(fmt.Sprintf("    JWTSecret: %s,\n", redact(c.Auth.JWTSecret)))
	sb.WriteString(fmt.Sprintf("    JWTTTLMinutes: %d,\n", c.Auth.JWTTTLMinutes))
	sb.WriteString(fmt.Sprintf("    BootstrapAdmin.Username: %q,\n", c.Auth.BootstrapAdmin.Username))
	sb.WriteString("    BootstrapAdmin.Password: [REDACTED],\n")
	sb.WriteString("  },\n")
	sb.WriteString("  Connections: {\n")
	sb.WriteString(fmt.Sprintf("    CounterPolicy: %q,\n", c.Connections.CounterPolicy))
	sb.WriteString(fmt.Sprintf("    NotificationScanLimit: %d,\n", c.Connections.NotificationScanLimit))
	sb.WriteString(fmt.Sprintf("    SuggestDefaultLimit: %d,\n", c.Connections.SuggestDefaultLimit))
	sb.WriteString(fmt.Sprintf("    SuggestMaxLimit: %d,\n", c.Connections.SuggestMaxLimit))
	sb.WriteString("  },\n")
	sb.WriteString(fmt.Sprintf("  HTTP: {Services: %v},\n", sortedKeys(c.HTTP.Services)))
	sb.WriteString("}")
	return sb.String()
}

func redact(s string) string {
	if s == "" {
		return `""`
	}
	return "[REDACTED]"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
