package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
)

// ProfileProvisioner creates the public profile that backs an account.
// Provision must succeed when the profile already exists.
type ProfileProvisioner interface {
	Provision(ctx context.Context, id, displayName string) error
}

type SeededUser struct {
	ID          string `toml:"id" json:"id"`
	Username    string `toml:"username" json:"username"`
	Password    string `toml:"password" json:"password"`
	Email       string `toml:"email" json:"email"`
	DisplayName string `toml:"display_name" json:"display_name"`
	Role        string `toml:"role" json:"role"`
}

// Bootstrap creates accounts together with their profiles: the admin and
// seeded users at startup, and self-registered users at runtime.
type Bootstrap struct {
	repo     UserRepo
	auth     *UserAuth
	profiles ProfileProvisioner
	log      *slog.Logger
}

func NewBootstrap(repo UserRepo, auth *UserAuth, profiles ProfileProvisioner, log *slog.Logger) *Bootstrap {
	return &Bootstrap{
		repo:     repo,
		auth:     auth,
		profiles: profiles,
		log:      logutil.Component(log, "identity"),
	}
}

// Run creates the admin user and any seeded users; returns the count created.
func (b *Bootstrap) Run(ctx context.Context, admin SeededUser, seeded []SeededUser) (int, error) {
	var created int
	if admin.Username != "" {
		if admin.Role == "" {
			admin.Role = RoleAdmin
		}
		n, err := b.ensureUser(ctx, admin)
		if err != nil {
			return created, err
		}
		created += n
	}
	for _, s := range seeded {
		n, err := b.ensureUser(ctx, s)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

// Register creates a new account with role user.
func (b *Bootstrap) Register(ctx context.Context, s SeededUser) (*User, error) {
	s.ID = ""
	s.Role = RoleUser
	return b.create(ctx, s)
}

// EnsureSuperAdmin creates the super admin when none exists. An empty
// password is replaced with a generated one that is logged once. An existing
// super admin only has its password rotated when explicitPasswordSet is true.
func (b *Bootstrap) EnsureSuperAdmin(ctx context.Context, username, password string, explicitPasswordSet bool) error {
	if username == "" {
		username = "admin"
	}
	users, err := b.repo.List(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		if u.Role != RoleSuperAdmin {
			continue
		}
		if explicitPasswordSet && password != "" {
			hash, err := b.auth.HashPassword(password)
			if err != nil {
				return err
			}
			u.PasswordHash = hash
			if err := b.repo.Update(ctx, u); err != nil {
				return err
			}
			b.log.Info("super admin password rotated", "username", u.Username)
		}
		return nil
	}

	generated := false
	if password == "" {
		password = generateRandomPassword()
		generated = true
	}

	user, err := b.create(ctx, SeededUser{
		Username:    username,
		Password:    password,
		DisplayName: "Super Administrator",
		Role:        RoleSuperAdmin,
	})
	if err != nil {
		return err
	}

	if generated {
		b.log.Info("super admin created with auto-generated password",
			"username", username,
			"password", password,
			"user_id", user.ID)
	} else {
		b.log.Info("super admin created", "username", username, "user_id", user.ID)
	}
	return nil
}

func generateRandomPassword() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "changeme-" + NewID()
	}
	return base64.URLEncoding.EncodeToString(b)
}

func (b *Bootstrap) ensureUser(ctx context.Context, s SeededUser) (int, error) {
	existing, err := b.repo.GetByUsername(ctx, s.Username)
	if err == nil {
		b.log.Debug("user already exists", "username", s.Username)
		// The profile may have been lost or never written.
		if err := b.profiles.Provision(ctx, existing.ID, displayNameOf(existing)); err != nil {
			return 0, err
		}
		return 0, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return 0, err
	}
	if _, err := b.create(ctx, s); err != nil {
		return 0, err
	}
	return 1, nil
}

func (b *Bootstrap) create(ctx context.Context, s SeededUser) (*User, error) {
	if err := ValidateUsername(s.Username); err != nil {
		return nil, err
	}
	if s.Password == "" {
		return nil, fmt.Errorf("%w: empty password for %q", ErrInvalidPassword, s.Username)
	}
	role := s.Role
	if role == "" {
		role = RoleUser
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("unknown role %q for user %q", role, s.Username)
	}

	hash, err := b.auth.HashPassword(s.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           s.ID,
		Username:     s.Username,
		Email:        s.Email,
		DisplayName:  s.DisplayName,
		PasswordHash: hash,
		Role:         role,
	}
	if err := b.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := b.profiles.Provision(ctx, user.ID, displayNameOf(user)); err != nil {
		if delErr := b.repo.Delete(ctx, user.ID); delErr != nil {
			b.log.Error("failed to roll back account after profile error", "user_id", user.ID, "error", delErr)
		}
		return nil, fmt.Errorf("failed to provision profile: %w", err)
	}

	b.log.Info("created user", "username", user.Username, "role", role, "user_id", user.ID)
	return user, nil
}

func displayNameOf(u *User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
