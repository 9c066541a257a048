// Package ratelimit provides a rate limiting interceptor using the cache subsystem.
package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	svccfg "github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/campusmesh-go/internal/interceptors"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/deps"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
)

func init() {
	interceptors.MustRegister("ratelimit", New)
}

// Config defines rate limiting parameters decoded from interceptor config.
type Config struct {
	RequestsPerWindow int64 `mapstructure:"requests_per_window"`
	WindowSeconds     int   `mapstructure:"window_seconds"`

	// KeyBy is "ip" (default) or "caller". Caller keying falls back to the
	// client IP when the request is anonymous.
	KeyBy string `mapstructure:"key_by"`
}

const (
	KeyByIP     = "ip"
	KeyByCaller = "caller"
)

// ApplyDefaults sets reasonable defaults for unconfigured fields.
func (c *Config) ApplyDefaults() {
	if c.RequestsPerWindow == 0 {
		c.RequestsPerWindow = 100
	}
	if c.WindowSeconds == 0 {
		c.WindowSeconds = 60
	}
	if c.KeyBy == "" {
		c.KeyBy = KeyByIP
	}
}

// Limiter counts requests per key in fixed windows held by a cache.Counter.
type Limiter struct {
	cache   cache.Counter
	keyFunc func(*http.Request) string
	limit   int64
	window  time.Duration
	log     *slog.Logger
}

// New creates a new ratelimit interceptor from the given config.
// The config should be the profile config from [http.interceptors.ratelimit.profiles.<name>].
func New(conf map[string]any, log *slog.Logger) (interceptors.Middleware, error) {
	var c Config
	if err := svccfg.Decode(conf, &c); err != nil {
		return nil, err
	}
	c.ApplyDefaults()

	d := deps.GetDeps()

	var keyFunc func(*http.Request) string
	switch c.KeyBy {
	case KeyByIP:
		keyFunc = d.RealIP.GetClientIPString
	case KeyByCaller:
		keyFunc = CallerOrIP(d.RealIP.GetClientIPString)
	default:
		return nil, fmt.Errorf("ratelimit: unknown key_by %q", c.KeyBy)
	}

	limiter := newLimiter(d.Cache, keyFunc, c, logutil.Component(log, "ratelimit"))
	return limiter.Wrap, nil
}

func newLimiter(counter cache.Counter, keyFunc func(*http.Request) string, c Config, log *slog.Logger) *Limiter {
	return &Limiter{
		cache:   counter,
		keyFunc: keyFunc,
		limit:   c.RequestsPerWindow,
		window:  time.Duration(c.WindowSeconds) * time.Second,
		log:     logutil.NoopIfNil(log),
	}
}

// Wrap is the middleware function that applies rate limiting.
func (l *Limiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := l.keyFunc(r)
		count, resetAt, err := l.cache.Increment(r.Context(), "ratelimit:"+key, 1, l.window)
		if err != nil {
			// Fail open.
			l.log.Warn("rate limit check failed", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if count > l.limit {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			api.WriteTooManyRequests(w, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CallerOrIP keys authenticated requests by user ID and anonymous ones by
// ipKey. The prefixes keep a user ID from colliding with an address.
func CallerOrIP(ipKey func(*http.Request) string) func(*http.Request) string {
	return func(r *http.Request) string {
		if id := appctx.CallerID(r.Context()); id != "" {
			return "user:" + id
		}
		return "ip:" + ipKey(r)
	}
}
