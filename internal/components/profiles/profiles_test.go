package profiles_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/profiles"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/memory"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/testutil"
)

func newDirectory(t *testing.T) (*profiles.Directory, store.Store) {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	return profiles.NewDirectory(s, nil), s
}

func strPtr(s string) *string { return &s }

func TestDirectory_Snapshot(t *testing.T) {
	d, s := newDirectory(t)
	ctx := context.Background()
	if err := s.CreateProfile(ctx, testutil.TestProfile("alice")); err != nil {
		t.Fatal(err)
	}

	snap, err := d.Snapshot(ctx, "alice")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.ID != "alice" || snap.DisplayName != "User alice" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	tests := []struct {
		id   string
		want error
	}{
		{"nobody", profiles.ErrNotFound},
		{"", profiles.ErrInvalidID},
		{"a_b", profiles.ErrInvalidID},
	}
	for _, tt := range tests {
		if _, err := d.Snapshot(ctx, tt.id); !errors.Is(err, tt.want) {
			t.Errorf("Snapshot(%q): expected %v, got %v", tt.id, tt.want, err)
		}
	}
}

func TestDirectory_UpdateLeavesCounters(t *testing.T) {
	d, s := newDirectory(t)
	ctx := context.Background()
	if err := s.CreateProfile(ctx, testutil.TestProfile("alice")); err != nil {
		t.Fatal(err)
	}
	if err := d.AdjustConnections(ctx, "alice", 2); err != nil {
		t.Fatal(err)
	}

	got, err := d.Update(ctx, "alice", profiles.Patch{DisplayName: strPtr("  Alice A. "), Program: strPtr("Physics")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.DisplayName != "Alice A." {
		t.Errorf("expected trimmed display name, got %q", got.DisplayName)
	}
	if got.Program != "Physics" {
		t.Errorf("expected program Physics, got %q", got.Program)
	}
	if got.Affiliation != "University of Example" {
		t.Errorf("unpatched field changed: %q", got.Affiliation)
	}
	if got.Counters.Connections != 2 {
		t.Errorf("expected counter 2 preserved, got %d", got.Counters.Connections)
	}
}

func TestDirectory_UpdateValidation(t *testing.T) {
	d, s := newDirectory(t)
	ctx := context.Background()
	if err := s.CreateProfile(ctx, testutil.TestProfile("alice")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		patch profiles.Patch
	}{
		{"empty display name", profiles.Patch{DisplayName: strPtr("   ")}},
		{"too long", profiles.Patch{Program: strPtr(strings.Repeat("x", 201))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := d.Update(ctx, "alice", tt.patch); !errors.Is(err, profiles.ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}

	if _, err := d.Update(ctx, "ghost", profiles.Patch{}); !errors.Is(err, profiles.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDirectory_ProvisionIdempotent(t *testing.T) {
	d, _ := newDirectory(t)
	ctx := context.Background()

	if err := d.Provision(ctx, "carol", "Carol"); err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if _, err := d.Update(ctx, "carol", profiles.Patch{Program: strPtr("Law")}); err != nil {
		t.Fatal(err)
	}
	if err := d.Provision(ctx, "carol", "Other"); err != nil {
		t.Fatalf("second Provision failed: %v", err)
	}

	p, _ := d.Get(ctx, "carol")
	if p.DisplayName != "Carol" || p.Program != "Law" {
		t.Errorf("existing profile overwritten: %+v", p)
	}

	if err := d.Provision(ctx, "bad_id", "x"); !errors.Is(err, profiles.ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
}

func TestDirectory_AdjustUnknown(t *testing.T) {
	d, _ := newDirectory(t)
	if err := d.AdjustConnections(context.Background(), "ghost", 1); !errors.Is(err, profiles.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
