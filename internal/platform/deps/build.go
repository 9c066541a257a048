package deps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/events"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/live"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/notifications"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/profiles"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/config"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/realip"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// Build opens the store, cache and bus selected by cfg and wires the
// domain components on top of them. Drivers must already be registered
// (see the store, cache and pubsub loader packages).
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Deps, error) {
	d := &Deps{Config: cfg}

	s, err := store.Open(ctx, cfg.StoreDriverConfig())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	d.Store = s

	cacheDriver := cfg.Cache.Driver
	if cacheDriver == "" {
		cacheDriver = "memory"
	}
	d.Cache, err = cache.New(cacheDriver, cfg.CacheDriverConfig())
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create cache: %w", err)
	}

	busDriver := cfg.PubSub.Driver
	if busDriver == "" {
		busDriver = "memory"
	}
	d.Bus, err = pubsub.New(busDriver, cfg.PubSub.Redis, log)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create pubsub bus: %w", err)
	}

	policy, err := connections.ParseCounterPolicy(cfg.Connections.CounterPolicy)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.Users = identity.NewStoreUserRepo(s)
	d.Sessions = identity.NewCacheSessionRepo(d.Cache)
	d.UserAuth = identity.NewUserAuth(cfg.Auth.Argon2Time)
	if cfg.Auth.JWTSecret != "" {
		d.Tokens = identity.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTTTLMinutes)*time.Minute)
	}

	pub := events.NewBusPublisher(d.Bus)
	d.Directory = profiles.NewDirectory(s, log)
	d.Notifications = notifications.New(s, pub, cfg.Connections.NotificationScanLimit, log)
	d.Engine = connections.New(s, d.Directory, d.Notifications, pub, connections.Config{
		CounterPolicy:       policy,
		SuggestDefaultLimit: cfg.Connections.SuggestDefaultLimit,
		SuggestMaxLimit:     cfg.Connections.SuggestMaxLimit,
	}, log)
	d.Feed = live.NewFeed(d.Notifications, d.Engine, d.Bus, log)
	d.Bootstrap = identity.NewBootstrap(d.Users, d.UserAuth, d.Directory, log)
	d.RealIP = realip.NewTrustedProxies(cfg.Server.TrustedProxies)

	return d, nil
}

// Close releases the bus, cache and store in reverse order of creation.
func (d *Deps) Close() error {
	var errs []error
	if d.Bus != nil {
		errs = append(errs, d.Bus.Close())
	}
	if d.Cache != nil {
		errs = append(errs, d.Cache.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	return errors.Join(errs...)
}
