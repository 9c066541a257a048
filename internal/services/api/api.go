// Package api provides the /api/* endpoints.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/api"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/live"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/notifications"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/profiles"
	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service"
	svccfg "github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service/httpwrap"
	"github.com/MahdiBaghbani/campusmesh-go/internal/interceptors"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/deps"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
)

func init() {
	service.MustRegister("api", New)
}

// Config holds api service configuration.
type Config struct {
	// RatelimitProfile names the [http.interceptors.ratelimit.profiles.<name>]
	// applied to login and register.
	RatelimitProfile string `mapstructure:"ratelimit_profile"`

	// MutationRatelimitProfile is applied to connection state changes.
	MutationRatelimitProfile string `mapstructure:"mutation_ratelimit_profile"`

	// DisableRegistration turns POST /auth/register off.
	DisableRegistration bool `mapstructure:"disable_registration"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {}

// Service is the API service.
type Service struct {
	router chi.Router
	conf   *Config
	log    *slog.Logger
}

// New creates a new API service.
func New(m map[string]any, log *slog.Logger) (service.Service, error) {
	log = logutil.Component(log, "api")

	var c Config
	unused, err := svccfg.DecodeWithUnused(m, &c)
	if err != nil {
		return nil, err
	}
	if len(unused) > 0 {
		log.Warn("unused config keys", "service", "api", "unused_keys", unused)
	}

	d := deps.GetDeps()
	if d == nil {
		return nil, errors.New("shared deps not initialized")
	}

	bootstrap := d.Bootstrap
	if c.DisableRegistration {
		bootstrap = nil
	}
	authHandler := identity.NewHandler(d.Users, d.Sessions, d.UserAuth, d.Tokens, bootstrap, d.Config.SessionTTL())
	profileHandler := profiles.NewHandler(d.Directory)
	connHandler := connections.NewHandler(d.Engine, d.Notifications)
	notifHandler := notifications.NewHandler(d.Notifications)
	liveHandler := live.NewHandler(d.Feed, 0, log)

	authLimit, err := interceptors.Build(d.Config.HTTP.Interceptors, "ratelimit", c.RatelimitProfile, log)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	mutationLimit, err := interceptors.Build(d.Config.HTTP.Interceptors, "ratelimit", c.MutationRatelimitProfile, log)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	r := chi.NewRouter()

	var storeDriver string
	if d.Store != nil {
		storeDriver = d.Store.Name()
	}
	r.Get("/healthz", api.Health(storeDriver))

	r.Route("/auth", func(r chi.Router) {
		r.With(authLimit).Post("/login", authHandler.Login)
		r.With(authLimit).Post("/register", authHandler.Register)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", profileHandler.List)
		r.Get("/me", profileHandler.Me)
		r.Patch("/me", profileHandler.UpdateMe)
		r.Get("/{id}", profileHandler.Get)
	})

	r.Route("/connections", func(r chi.Router) {
		r.Get("/", connHandler.List)
		r.Get("/suggestions", connHandler.Suggestions)
		r.Get("/{id}/status", connHandler.Status)
		r.Group(func(r chi.Router) {
			r.Use(mutationLimit)
			r.Post("/{id}/request", connHandler.Request)
			r.Post("/{id}/accept", connHandler.Accept)
			r.Post("/{id}/reject", connHandler.Reject)
			r.Post("/{id}/cancel", connHandler.Cancel)
			r.Delete("/{id}", connHandler.Remove)
		})
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", notifHandler.List)
		r.Get("/unread-count", notifHandler.UnreadCount)
		r.Post("/read-all", notifHandler.MarkAllRead)
		r.Post("/{id}/read", notifHandler.MarkRead)
		r.Delete("/{id}", notifHandler.Delete)
	})

	r.Get("/live/view", liveHandler.HandleView)

	return &Service{router: r, conf: &c, log: log}, nil
}

// Handler returns the service's HTTP handler with RawPath clearing.
func (s *Service) Handler() http.Handler {
	return httpwrap.ClearRawPath(s.router)
}

// Prefix returns the URL prefix for this service.
func (s *Service) Prefix() string {
	return "api"
}

// Unprotected returns paths that don't require authentication.
func (s *Service) Unprotected() []string {
	return []string{"/healthz", "/auth/login", "/auth/register"}
}

// Close releases any resources held by the service.
func (s *Service) Close() error {
	return nil
}
