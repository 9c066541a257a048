package deps_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/identity"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/config"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/deps"

	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub/loader"
	_ "github.com/MahdiBaghbani/campusmesh-go/internal/store/loader"
)

func boot(t *testing.T, dataDir string) *deps.Deps {
	t.Helper()
	cfg := config.DevConfig()
	cfg.Store.Driver = "json"
	cfg.Store.DataDir = dataDir

	d, err := deps.Build(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("deps.Build: %v", err)
	}
	if err := d.Bootstrap.EnsureSuperAdmin(context.Background(), "admin", "admin-pass", true); err != nil {
		t.Fatalf("EnsureSuperAdmin: %v", err)
	}
	return d
}

func TestBuild_AccountsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	first := boot(t, dataDir)
	admin, err := first.Users.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	alice, err := first.Bootstrap.Register(ctx, identity.SeededUser{Username: "alice", Password: "alice-pass"})
	if err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := boot(t, dataDir)
	defer second.Close()

	profiles, err := second.Store.ListProfiles(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles after two boots, got %d", len(profiles))
	}

	rebooted, err := second.Users.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if rebooted.ID != admin.ID {
		t.Errorf("expected admin ID %q to be stable, got %q", admin.ID, rebooted.ID)
	}

	u, err := second.UserAuth.Authenticate(ctx, second.Users, "alice", "alice-pass")
	if err != nil {
		t.Fatalf("expected alice to log in after restart: %v", err)
	}
	if u.ID != alice.ID {
		t.Errorf("expected alice's ID %q, got %q", alice.ID, u.ID)
	}

	if _, err := second.Bootstrap.Register(ctx, identity.SeededUser{Username: "alice", Password: "x"}); !errors.Is(err, identity.ErrUserExists) {
		t.Errorf("expected ErrUserExists re-registering after restart, got %v", err)
	}
}
