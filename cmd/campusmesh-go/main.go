// Package main is the entrypoint for the campusmesh-go server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/config"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/deps"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/http/server"

	// Register drivers, interceptors and services
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/interceptors/ratelimit"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/services/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/loader"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file (optional)")
	modeFlag := flag.String("mode", "", "Operating mode: strict or dev (overrides config)")
	listenAddr := flag.String("listen", "", "Listen address (overrides config)")
	publicOrigin := flag.String("public-origin", "", "Public origin (overrides config)")
	storeDriver := flag.String("store-driver", "", "Store driver: memory, json, sqlite, postgres, mongo (overrides config)")
	storeDataDir := flag.String("store-data-dir", "", "Data directory for json and sqlite stores (overrides config)")
	storeDSN := flag.String("store-dsn", "", "Postgres DSN (overrides config)")
	cacheDriver := flag.String("cache-driver", "", "Cache driver: memory or redis (overrides config)")
	pubsubDriver := flag.String("pubsub-driver", "", "Pub/sub driver: memory or redis (overrides config)")
	adminUsername := flag.String("admin-username", "", "Bootstrap admin username (overrides config)")
	adminPassword := flag.String("admin-password", "", "Bootstrap admin password (overrides config)")
	loggingLevel := flag.String("logging-level", "", "Log level: trace, debug, info, warn, error (overrides config)")
	counterPolicy := flag.String("counter-policy", "", "Connection counter policy: caller_only or both (overrides config)")
	seedPath := flag.String("seed", "", "TOML file of accounts to create at startup (optional)")
	flag.Parse()

	// Bootstrap logger for config loading errors (uses default level)
	bootstrapLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Load config with precedence: mode preset -> TOML file -> CLI flags
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: *configPath,
		ModeFlag:   *modeFlag,
		FlagOverrides: config.FlagOverrides{
			ListenAddr:    listenAddr,
			PublicOrigin:  publicOrigin,
			StoreDriver:   storeDriver,
			StoreDataDir:  storeDataDir,
			StoreDSN:      storeDSN,
			CacheDriver:   cacheDriver,
			PubSubDriver:  pubsubDriver,
			AdminUsername: adminUsername,
			AdminPassword: adminPassword,
			LoggingLevel:  loggingLevel,
			CounterPolicy: counterPolicy,
		},
		Logger: bootstrapLogger,
	})
	if err != nil {
		bootstrapLogger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	// Log effective config with secrets redacted
	logger.Info("effective configuration", "config", cfg.Redacted())

	if err := run(cfg, *seedPath, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(cfg *config.Config, seedPath string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := deps.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("failed to close dependencies", "error", err)
		}
	}()
	deps.SetDeps(d)

	if err := bootstrapAccounts(ctx, cfg, d.Bootstrap, seedPath); err != nil {
		return err
	}

	services, err := buildServices(cfg, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, logger, services)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("server started, press Ctrl+C to stop")
	return g.Wait()
}

// bootstrapAccounts creates the super admin and any seeded accounts that
// the store does not already hold.
func bootstrapAccounts(ctx context.Context, cfg *config.Config, b *identity.Bootstrap, seedPath string) error {
	admin := cfg.Auth.BootstrapAdmin
	if admin.Username != "" {
		if err := b.EnsureSuperAdmin(ctx, admin.Username, admin.Password, admin.Password != ""); err != nil {
			return fmt.Errorf("failed to bootstrap super admin: %w", err)
		}
	}

	if seedPath == "" {
		return nil
	}
	seeded, err := identity.LoadSeedFile(seedPath)
	if err != nil {
		return err
	}
	if _, err := b.Run(ctx, identity.SeededUser{}, seeded); err != nil {
		return fmt.Errorf("failed to create seeded accounts: %w", err)
	}
	return nil
}

// buildServices constructs core services plus any service configured under
// [http.services.<name>].
func buildServices(cfg *config.Config, logger *slog.Logger) (map[string]service.Service, error) {
	names := service.Enabled(slices.Collect(maps.Keys(cfg.HTTP.Services)))
	return service.Build(names, cfg.BuildServiceConfig, logger)
}
