package config

import (
	"fmt"
	"log/slog"
	"net/netip"
	"net/url"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Mode represents the server operating mode.
type Mode string

const (
	ModeStrict Mode = "strict"
	ModeDev    Mode = "dev"
)

// ParseMode parses a mode string, returning an error for invalid values.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "":
		return ModeStrict, nil
	case "dev":
		return ModeDev, nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be one of strict, dev", s)
	}
}

// Counter policies.
const (
	CounterPolicyCallerOnly = "caller_only"
	CounterPolicyBoth       = "both"
)

// minJWTSecretLen is the shortest HS256 secret accepted in strict mode.
const minJWTSecretLen = 32

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is the path to a TOML config file (optional).
	// If provided but file is missing or invalid, loading fails.
	ConfigPath string

	// ModeFlag is the --mode flag value (overrides config file mode).
	ModeFlag string

	// FlagOverrides are CLI flag values that override config file values.
	FlagOverrides FlagOverrides

	// Logger is used for warning messages (e.g., undecoded keys).
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// FlagOverrides holds CLI flag values that override config file values.
type FlagOverrides struct {
	ListenAddr    *string
	PublicOrigin  *string
	StoreDriver   *string
	StoreDataDir  *string
	StoreDSN      *string
	CacheDriver   *string
	PubSubDriver  *string
	AdminUsername *string
	AdminPassword *string
	LoggingLevel  *string
	CounterPolicy *string
}

// fileConfig mirrors Config but with pointer fields to detect presence.
type fileConfig struct {
	Mode string `toml:"mode"`

	PublicOrigin string `toml:"public_origin"`
	ListenAddr   string `toml:"listen_addr"`

	Server      *serverConfig      `toml:"server"`
	Logging     *loggingConfig     `toml:"logging"`
	Store       *storeConfig       `toml:"store"`
	Cache       *cacheConfig       `toml:"cache"`
	PubSub      *pubsubConfig      `toml:"pubsub"`
	Auth        *authConfig        `toml:"auth"`
	Connections *connectionsConfig `toml:"connections"`
	HTTP        *httpFileConfig    `toml:"http"`
}

type httpFileConfig struct {
	Services     map[string]map[string]any `toml:"services"`
	Interceptors map[string]map[string]any `toml:"interceptors"`
}

type serverConfig struct {
	TrustedProxies         []string `toml:"trusted_proxies"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout_seconds"`
}

type loggingConfig struct {
	Level          string `toml:"level"`
	AllowSensitive bool   `toml:"allow_sensitive"`
}

type storeConfig struct {
	Driver  string       `toml:"driver"`
	DataDir string       `toml:"data_dir"`
	DSN     string       `toml:"dsn"`
	Mongo   *MongoConfig `toml:"mongo"`
}

type cacheConfig struct {
	Driver  string         `toml:"driver"`
	Drivers map[string]any `toml:"drivers"`
}

type pubsubConfig struct {
	Driver string         `toml:"driver"`
	Redis  map[string]any `toml:"redis"`
}

type authConfig struct {
	SessionTTLHours int             `toml:"session_ttl_hours"`
	JWTSecret       string          `toml:"jwt_secret"`
	JWTTTLMinutes   int             `toml:"jwt_ttl_minutes"`
	Argon2Time      uint32          `toml:"argon2_time"`
	BootstrapAdmin  *bootstrapAdmin `toml:"bootstrap_admin"`
}

type bootstrapAdmin struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type connectionsConfig struct {
	CounterPolicy         string `toml:"counter_policy"`
	NotificationScanLimit int    `toml:"notification_scan_limit"`
	SuggestDefaultLimit   int    `toml:"suggest_default_limit"`
	SuggestMaxLimit       int    `toml:"suggest_max_limit"`
}

// Load loads configuration with the following precedence:
//  1. Determine effective mode: --mode flag > mode in config file > default (strict)
//  2. Start from mode preset defaults
//  3. Overlay TOML config file values
//  4. Overlay CLI flags
//  5. Validate
//
// If ConfigPath is provided but the file is missing, unreadable, or invalid TOML,
// Load returns an error. Unknown TOML keys produce a warning but do not fail the load.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var fc fileConfig

	if opts.ConfigPath != "" {
		data, err := os.ReadFile(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigPath, err)
		}
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}

		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("config file contains undecoded keys", "path", opts.ConfigPath, "keys", keys)
		}
	}

	modeStr := "strict"
	if fc.Mode != "" {
		modeStr = fc.Mode
	}
	if opts.ModeFlag != "" {
		modeStr = opts.ModeFlag
	}

	mode, err := ParseMode(modeStr)
	if err != nil {
		return nil, err
	}

	cfg := presetForMode(mode)

	if opts.ConfigPath != "" {
		overlayFileConfig(cfg, &fc)
	}

	overlayFlags(cfg, opts.FlagOverrides)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func presetForMode(mode Mode) *Config {
	if mode == ModeDev {
		return DevConfig()
	}
	return StrictConfig()
}

// StrictConfig returns production defaults: durable SQLite storage, no
// bootstrap admin unless configured.
func StrictConfig() *Config {
	return &Config{
		Mode:         string(ModeStrict),
		PublicOrigin: "http://localhost:8080",
		ListenAddr:   ":8080",
		Server: ServerConfig{
			TrustedProxies:         []string{"127.0.0.0/8", "::1/128"},
			ShutdownTimeoutSeconds: 15,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: ".campusmesh/data",
			Mongo: MongoConfig{
				Database:         "campusmesh",
				ConnectTimeoutMS: 10000,
			},
		},
		Cache: CacheConfig{
			Driver: "memory",
		},
		PubSub: PubSubConfig{
			Driver: "memory",
		},
		Auth: AuthConfig{
			SessionTTLHours: 24,
			JWTTTLMinutes:   60,
			Argon2Time:      3,
		},
		Connections: ConnectionsConfig{
			CounterPolicy:         CounterPolicyCallerOnly,
			NotificationScanLimit: 50,
			SuggestDefaultLimit:   20,
			SuggestMaxLimit:       100,
		},
	}
}

// DevConfig returns development defaults: in-memory storage and a bootstrap
// admin account.
func DevConfig() *Config {
	cfg := StrictConfig()
	cfg.Mode = string(ModeDev)
	cfg.Logging.Level = "debug"
	cfg.Store.Driver = "memory"
	cfg.Auth.Argon2Time = 1
	cfg.Auth.BootstrapAdmin.Username = "admin"
	return cfg
}

// overlayFileConfig applies TOML file values onto cfg.
func overlayFileConfig(cfg *Config, fc *fileConfig) {
	if fc.PublicOrigin != "" {
		cfg.PublicOrigin = fc.PublicOrigin
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}

	if fc.Server != nil {
		if len(fc.Server.TrustedProxies) > 0 {
			cfg.Server.TrustedProxies = fc.Server.TrustedProxies
		}
		if fc.Server.ShutdownTimeoutSeconds > 0 {
			cfg.Server.ShutdownTimeoutSeconds = fc.Server.ShutdownTimeoutSeconds
		}
	}

	if fc.Logging != nil {
		if fc.Logging.Level != "" {
			cfg.Logging.Level = fc.Logging.Level
		}
		// AllowSensitive is a bool, overlay when section present
		cfg.Logging.AllowSensitive = fc.Logging.AllowSensitive
	}

	if fc.Store != nil {
		if fc.Store.Driver != "" {
			cfg.Store.Driver = fc.Store.Driver
		}
		if fc.Store.DataDir != "" {
			cfg.Store.DataDir = fc.Store.DataDir
		}
		if fc.Store.DSN != "" {
			cfg.Store.DSN = fc.Store.DSN
		}
		if m := fc.Store.Mongo; m != nil {
			if m.URI != "" {
				cfg.Store.Mongo.URI = m.URI
			}
			if m.Database != "" {
				cfg.Store.Mongo.Database = m.Database
			}
			if m.ConnectTimeoutMS > 0 {
				cfg.Store.Mongo.ConnectTimeoutMS = m.ConnectTimeoutMS
			}
		}
	}

	if fc.Cache != nil {
		if fc.Cache.Driver != "" {
			cfg.Cache.Driver = fc.Cache.Driver
		}
		if len(fc.Cache.Drivers) > 0 {
			cfg.Cache.Drivers = fc.Cache.Drivers
		}
	}

	if fc.PubSub != nil {
		if fc.PubSub.Driver != "" {
			cfg.PubSub.Driver = fc.PubSub.Driver
		}
		if len(fc.PubSub.Redis) > 0 {
			cfg.PubSub.Redis = fc.PubSub.Redis
		}
	}

	if fc.Auth != nil {
		if fc.Auth.SessionTTLHours > 0 {
			cfg.Auth.SessionTTLHours = fc.Auth.SessionTTLHours
		}
		if fc.Auth.JWTSecret != "" {
			cfg.Auth.JWTSecret = fc.Auth.JWTSecret
		}
		if fc.Auth.JWTTTLMinutes > 0 {
			cfg.Auth.JWTTTLMinutes = fc.Auth.JWTTTLMinutes
		}
		if fc.Auth.Argon2Time > 0 {
			cfg.Auth.Argon2Time = fc.Auth.Argon2Time
		}
		if fc.Auth.BootstrapAdmin != nil {
			cfg.Auth.BootstrapAdmin.Username = fc.Auth.BootstrapAdmin.Username
			cfg.Auth.BootstrapAdmin.Password = fc.Auth.BootstrapAdmin.Password
		}
	}

	if c := fc.Connections; c != nil {
		if c.CounterPolicy != "" {
			cfg.Connections.CounterPolicy = c.CounterPolicy
		}
		if c.NotificationScanLimit != 0 {
			cfg.Connections.NotificationScanLimit = c.NotificationScanLimit
		}
		if c.SuggestDefaultLimit != 0 {
			cfg.Connections.SuggestDefaultLimit = c.SuggestDefaultLimit
		}
		if c.SuggestMaxLimit != 0 {
			cfg.Connections.SuggestMaxLimit = c.SuggestMaxLimit
		}
	}

	if fc.HTTP != nil {
		if len(fc.HTTP.Services) > 0 {
			if cfg.HTTP.Services == nil {
				cfg.HTTP.Services = make(map[string]map[string]any)
			}
			for name, svcCfg := range fc.HTTP.Services {
				cfg.HTTP.Services[name] = svcCfg
			}
		}
		if len(fc.HTTP.Interceptors) > 0 {
			if cfg.HTTP.Interceptors == nil {
				cfg.HTTP.Interceptors = make(map[string]map[string]any)
			}
			for name, intCfg := range fc.HTTP.Interceptors {
				cfg.HTTP.Interceptors[name] = intCfg
			}
		}
	}
}

// overlayFlags applies CLI flag values onto cfg.
func overlayFlags(cfg *Config, f FlagOverrides) {
	set := func(dst *string, v *string) {
		if v != nil && *v != "" {
			*dst = *v
		}
	}
	set(&cfg.ListenAddr, f.ListenAddr)
	set(&cfg.PublicOrigin, f.PublicOrigin)
	set(&cfg.Store.Driver, f.StoreDriver)
	set(&cfg.Store.DataDir, f.StoreDataDir)
	set(&cfg.Store.DSN, f.StoreDSN)
	set(&cfg.Cache.Driver, f.CacheDriver)
	set(&cfg.PubSub.Driver, f.PubSubDriver)
	set(&cfg.Auth.BootstrapAdmin.Username, f.AdminUsername)
	set(&cfg.Auth.BootstrapAdmin.Password, f.AdminPassword)
	set(&cfg.Logging.Level, f.LoggingLevel)
	set(&cfg.Connections.CounterPolicy, f.CounterPolicy)
}

func validate(cfg *Config) error {
	if err := validateEnums(cfg); err != nil {
		return err
	}
	if err := validateStore(cfg); err != nil {
		return err
	}
	if err := validateConnections(cfg); err != nil {
		return err
	}
	if err := validateAuth(cfg); err != nil {
		return err
	}
	if err := validateTrustedProxies(cfg); err != nil {
		return err
	}
	if err := validateRatelimitConfig(cfg); err != nil {
		return err
	}
	return validatePublicOrigin(cfg)
}

// validateEnums validates enum-like config fields.
func validateEnums(cfg *Config) error {
	switch cfg.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q: must be one of trace, debug, info, warn, error", cfg.Logging.Level)
	}

	switch cfg.Store.Driver {
	case "memory", "json", "sqlite", "postgres", "mongo":
	default:
		return fmt.Errorf("invalid store.driver %q: must be one of memory, json, sqlite, postgres, mongo", cfg.Store.Driver)
	}

	switch cfg.Cache.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid cache.driver %q: must be one of memory, redis", cfg.Cache.Driver)
	}

	switch cfg.PubSub.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid pubsub.driver %q: must be one of memory, redis", cfg.PubSub.Driver)
	}

	switch cfg.Connections.CounterPolicy {
	case CounterPolicyCallerOnly, CounterPolicyBoth:
	default:
		return fmt.Errorf("invalid connections.counter_policy %q: must be one of %s, %s",
			cfg.Connections.CounterPolicy, CounterPolicyCallerOnly, CounterPolicyBoth)
	}

	return nil
}

func validateStore(cfg *Config) error {
	switch cfg.Store.Driver {
	case "json", "sqlite":
		if cfg.Store.DataDir == "" {
			return fmt.Errorf("store.data_dir is required for store.driver %q", cfg.Store.Driver)
		}
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for store.driver \"postgres\"")
		}
	case "mongo":
		if cfg.Store.Mongo.URI == "" {
			return fmt.Errorf("store.mongo.uri is required for store.driver \"mongo\"")
		}
	}
	return nil
}

func validateConnections(cfg *Config) error {
	c := cfg.Connections
	if c.NotificationScanLimit <= 0 {
		return fmt.Errorf("connections.notification_scan_limit must be positive, got %d", c.NotificationScanLimit)
	}
	if c.SuggestDefaultLimit <= 0 || c.SuggestMaxLimit <= 0 {
		return fmt.Errorf("connections.suggest_default_limit and suggest_max_limit must be positive")
	}
	if c.SuggestDefaultLimit > c.SuggestMaxLimit {
		return fmt.Errorf("connections.suggest_default_limit (%d) exceeds suggest_max_limit (%d)",
			c.SuggestDefaultLimit, c.SuggestMaxLimit)
	}
	return nil
}

func validateAuth(cfg *Config) error {
	if cfg.Mode == string(ModeStrict) && cfg.Auth.JWTSecret != "" && len(cfg.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes in strict mode", minJWTSecretLen)
	}
	return nil
}

func validateTrustedProxies(cfg *Config) error {
	for _, cidr := range cfg.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("invalid server.trusted_proxies entry %q: %w", cidr, err)
		}
	}
	return nil
}

// validateRatelimitConfig validates ratelimit interceptor configuration.
// Profiles are defined at [http.interceptors.ratelimit.profiles.<name>].
// Services reference a profile by name; a referenced profile must exist.
func validateRatelimitConfig(cfg *Config) error {
	profiles := make(map[string]bool)
	if rlCfg, ok := cfg.HTTP.Interceptors["ratelimit"]; ok {
		if profilesRaw, ok := rlCfg["profiles"]; ok {
			profilesMap, ok := profilesRaw.(map[string]any)
			if !ok {
				return fmt.Errorf("http.interceptors.ratelimit.profiles must be a map")
			}
			for name, profile := range profilesMap {
				if _, ok := profile.(map[string]any); !ok {
					return fmt.Errorf("http.interceptors.ratelimit.profiles.%s must be a map", name)
				}
				profiles[name] = true
			}
		}
	}

	for svcName, svcCfg := range cfg.HTTP.Services {
		for _, key := range []string{"mutation_ratelimit_profile", "ratelimit_profile"} {
			if name, ok := svcCfg[key].(string); ok && name != "" && !profiles[name] {
				return fmt.Errorf("http.services.%s.%s references undefined profile %q", svcName, key, name)
			}
		}
	}

	return nil
}

// validatePublicOrigin checks the public_origin config value when set.
// Must be an absolute http/https URL with a host and nothing else.
func validatePublicOrigin(cfg *Config) error {
	if cfg.PublicOrigin == "" {
		return nil
	}

	origin := cfg.PublicOrigin

	if origin != strings.TrimSpace(origin) {
		return fmt.Errorf("invalid public_origin %q: must not contain leading or trailing whitespace", origin)
	}

	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid public_origin %q: %w", origin, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid public_origin %q: scheme must be http or https", origin)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid public_origin %q: must include a host", origin)
	}
	if u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("invalid public_origin %q: must not include userinfo, query or fragment", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("invalid public_origin %q: must not include a path", origin)
	}

	return nil
}
