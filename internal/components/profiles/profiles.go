// Package profiles is the identity directory: authoritative profile documents,
// the snapshots copied out of them, and the connection counters they carry.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

var (
	ErrNotFound  = errors.New("profile not found")
	ErrInvalidID = errors.New("invalid profile id")
	ErrInvalid   = errors.New("invalid profile field")
)

const maxFieldLen = 200

// Patch carries the editable profile fields. Nil fields are left unchanged.
type Patch struct {
	DisplayName *string `json:"display_name,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	Affiliation *string `json:"affiliation,omitempty"`
	Program     *string `json:"program,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.DisplayName == nil && p.AvatarURL == nil && p.Affiliation == nil && p.Program == nil
}

// Directory reads and writes profiles through the store.
type Directory struct {
	store store.ProfileStore
	log   *slog.Logger
}

func NewDirectory(s store.ProfileStore, log *slog.Logger) *Directory {
	return &Directory{store: s, log: logutil.Component(log, "profiles")}
}

// Get returns the full profile document.
func (d *Directory) Get(ctx context.Context, id string) (*store.Profile, error) {
	if err := store.ValidateParticipantID(id); err != nil {
		return nil, ErrInvalidID
	}
	p, err := d.store.GetProfile(ctx, id)
	if err != nil {
		return nil, wrap(err, id)
	}
	return p, nil
}

// Snapshot returns a by-value copy of the profile's public attributes.
func (d *Directory) Snapshot(ctx context.Context, id string) (store.Snapshot, error) {
	p, err := d.Get(ctx, id)
	if err != nil {
		return store.Snapshot{}, err
	}
	return p.Snapshot(), nil
}

// List returns up to limit profiles ordered by ID, starting after afterID.
func (d *Directory) List(ctx context.Context, afterID string, limit int) ([]*store.Profile, error) {
	return d.store.ListProfiles(ctx, afterID, limit)
}

// AdjustConnections adds delta to the connection counter of id.
func (d *Directory) AdjustConnections(ctx context.Context, id string, delta int64) error {
	if err := d.store.AdjustConnectionCount(ctx, id, delta); err != nil {
		return wrap(err, id)
	}
	return nil
}

// SetConnections overwrites the connection counter of id.
func (d *Directory) SetConnections(ctx context.Context, id string, n int64) error {
	if err := d.store.SetConnectionCount(ctx, id, n); err != nil {
		return wrap(err, id)
	}
	return nil
}

// Update applies patch to the profile document. Snapshots already embedded
// in connection records are not touched.
func (d *Directory) Update(ctx context.Context, id string, patch Patch) (*store.Profile, error) {
	p, err := d.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	apply := func(dst *string, src *string, field string) error {
		if src == nil {
			return nil
		}
		v := strings.TrimSpace(*src)
		if len(v) > maxFieldLen {
			return fmt.Errorf("%w: %s too long", ErrInvalid, field)
		}
		*dst = v
		return nil
	}
	if err := apply(&p.DisplayName, patch.DisplayName, "display_name"); err != nil {
		return nil, err
	}
	if p.DisplayName == "" {
		return nil, fmt.Errorf("%w: display_name must not be empty", ErrInvalid)
	}
	if err := apply(&p.AvatarURL, patch.AvatarURL, "avatar_url"); err != nil {
		return nil, err
	}
	if err := apply(&p.Affiliation, patch.Affiliation, "affiliation"); err != nil {
		return nil, err
	}
	if err := apply(&p.Program, patch.Program, "program"); err != nil {
		return nil, err
	}

	if err := d.store.UpdateProfile(ctx, p); err != nil {
		return nil, wrap(err, id)
	}
	d.log.Debug("profile updated", "profile_id", id)
	return d.store.GetProfile(ctx, id)
}

// Provision creates a bare profile for a new account. An existing profile
// is left as is.
func (d *Directory) Provision(ctx context.Context, id, displayName string) error {
	return d.Create(ctx, &store.Profile{ID: id, DisplayName: displayName})
}

// Create inserts p, tolerating an existing profile with the same ID.
func (d *Directory) Create(ctx context.Context, p *store.Profile) error {
	if err := store.ValidateParticipantID(p.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, p.ID)
	}
	if strings.TrimSpace(p.DisplayName) == "" {
		p.DisplayName = p.ID
	}
	err := d.store.CreateProfile(ctx, p)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	if err != nil {
		return err
	}
	d.log.Info("profile created", "profile_id", p.ID)
	return nil
}

func wrap(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}
