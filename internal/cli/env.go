package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/profiles"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/config"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"

	// Register store drivers
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/loader"
)

// env is what a command runs against. The engine has no notifier and no
// publisher: running servers do not see changes made here live.
type env struct {
	store  store.Store
	engine *connections.Engine
}

func (e *env) Close() error { return e.store.Close() }

func openEnv(ctx context.Context, opts *RootOptions, stderr io.Writer) (*env, error) {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: opts.ConfigPath,
		ModeFlag:   opts.Mode,
		FlagOverrides: config.FlagOverrides{
			StoreDriver:  &opts.StoreDriver,
			StoreDataDir: &opts.StoreDataDir,
			StoreDSN:     &opts.StoreDSN,
		},
		Logger: log,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	policy, err := connections.ParseCounterPolicy(cfg.Connections.CounterPolicy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	s, err := store.Open(ctx, cfg.StoreDriverConfig())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}

	engine := connections.New(s, profiles.NewDirectory(s, log), nil, nil, connections.Config{
		CounterPolicy:       policy,
		SuggestDefaultLimit: cfg.Connections.SuggestDefaultLimit,
		SuggestMaxLimit:     cfg.Connections.SuggestMaxLimit,
	}, log)

	return &env{store: s, engine: engine}, nil
}
