// Package live provides the /live/* event stream endpoints.
package live

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	livecomp "github.com/MahdiBaghbani/campusmesh-go/internal/components/live"
	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/deps"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("live", New)
}

// Config holds live service configuration.
type Config struct {
	// PingIntervalSeconds is the keep-alive comment interval. Default: 25.
	PingIntervalSeconds int `mapstructure:"ping_interval_seconds"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.PingIntervalSeconds <= 0 {
		c.PingIntervalSeconds = int(livecomp.DefaultPingInterval / time.Second)
	}
}

type svc struct {
	router chi.Router
	conf   *Config
}

// New creates the live service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.Component(log, "live")

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "live", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}
	if d.Feed == nil {
		return nil, errors.New("live: feed not configured")
	}

	h := livecomp.NewHandler(d.Feed, time.Duration(c.PingIntervalSeconds)*time.Second, log)

	r := chi.NewRouter()
	r.Get("/stream", h.HandleStream)

	return &svc{router: r, conf: &c}, nil
}

func (s *svc) Handler() http.Handler { return httpwrap.ClearRawPath(s.router) }

func (s *svc) Prefix() string { return "live" }

func (s *svc) Unprotected() []string { return nil }

func (s *svc) Close() error { return nil }
