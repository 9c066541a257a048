package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/profiles"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/testutil"
)

// seedStore writes alice, bob and carol into a JSON store with one accepted
// connection between alice and bob, made under the caller_only policy.
func seedStore(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	ctx := t.Context()

	s, err := store.Open(ctx, &store.DriverConfig{Driver: "json", DataDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for _, id := range []string{"alice", "bob", "carol"} {
		if err := s.CreateProfile(ctx, testutil.TestProfile(id)); err != nil {
			t.Fatal(err)
		}
	}
	engine := connections.New(s, profiles.NewDirectory(s, nil), nil, nil, connections.Config{}, nil)
	if _, err := engine.Request(ctx, "alice", "bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Accept(ctx, "bob", "alice"); err != nil {
		t.Fatal(err)
	}
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func storeArgs(dir string) []string {
	return []string{"--mode", "dev", "--store-driver", "json", "--store-data-dir", dir}
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"status", "connections", "suggest", "reconcile-counters"} {
		sub, _, err := cmd.Find([]string{name})
		if err != nil || sub.Name() != name {
			t.Errorf("expected subcommand %q, got %v (err %v)", name, sub, err)
		}
	}
}

func TestRootCommand_RejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "status", "a", "b", "--format", "yaml")
	if err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestStatus(t *testing.T) {
	dir := seedStore(t)

	tests := []struct {
		self, other string
		want        connections.State
	}{
		{"alice", "bob", connections.StateAccepted},
		{"alice", "carol", connections.StateNone},
	}
	for _, tt := range tests {
		out, err := run(t, append(storeArgs(dir), "--format", "json", "status", tt.self, tt.other)...)
		if err != nil {
			t.Fatalf("status %s %s: %v", tt.self, tt.other, err)
		}
		var resp struct {
			Status string       `json:"status"`
			Data   StatusResult `json:"data"`
		}
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("invalid JSON output %q: %v", out, err)
		}
		if resp.Status != "ok" || resp.Data.State != tt.want {
			t.Errorf("%s -> %s: expected %q, got %+v", tt.self, tt.other, tt.want, resp)
		}
	}
}

func TestSuggest_ExcludesRelated(t *testing.T) {
	dir := seedStore(t)

	out, err := run(t, append(storeArgs(dir), "suggest", "alice")...)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "carol") || strings.Contains(out, "bob") || strings.Contains(out, "alice\t") {
		t.Errorf("expected only carol, got %q", out)
	}
}

func TestConnections_StatusFilter(t *testing.T) {
	dir := seedStore(t)

	out, err := run(t, append(storeArgs(dir), "connections", "bob", "--status", "pending")...)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "" {
		t.Errorf("expected no pending records, got %q", out)
	}

	if _, err := run(t, append(storeArgs(dir), "connections", "bob", "--status", "blocked")...); GetExitCode(err) != ExitCommandError {
		t.Errorf("expected exit code %d for unknown status, got %d", ExitCommandError, GetExitCode(err))
	}
}

func TestReconcileCounters(t *testing.T) {
	dir := seedStore(t)

	_, err := run(t, append(storeArgs(dir), "reconcile-counters")...)
	if GetExitCode(err) != ExitFailure {
		t.Fatalf("expected drift to exit %d, got %v", ExitFailure, err)
	}

	out, err := run(t, append(storeArgs(dir), "reconcile-counters", "--apply")...)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if !strings.Contains(out, "corrected") {
		t.Errorf("expected correction summary, got %q", out)
	}

	out, err = run(t, append(storeArgs(dir), "reconcile-counters")...)
	if err != nil {
		t.Fatalf("expected clean run after apply, got %v", err)
	}
	if !strings.Contains(out, "counters match") {
		t.Errorf("expected counters match, got %q", out)
	}
}

func TestOpenEnv_BadConfig(t *testing.T) {
	_, err := run(t, "--mode", "dev", "--store-driver", "postgres", "status", "a", "b")
	if GetExitCode(err) != ExitCommandError {
		t.Errorf("expected exit code %d without a DSN, got %d", ExitCommandError, GetExitCode(err))
	}
}
