// Package identity provides local accounts, password authentication and
// session handling.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrUserExists           = errors.New("user already exists")
	ErrEmailExists          = errors.New("email already in use")
	ErrInvalidPassword      = errors.New("invalid password")
	ErrInvalidUsername      = errors.New("invalid username")
	ErrSessionExpired       = errors.New("session expired")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSuperAdminRoleChange = errors.New("super admin role cannot be changed")
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// User is a local account. Its ID doubles as the profile ID.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleSuperAdmin
}

func (u *User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// UserRepo provides account storage.
type UserRepo interface {
	// Create stores a new user, assigning ID and CreatedAt when unset.
	// Returns ErrUserExists if the username is taken.
	Create(ctx context.Context, user *User) error

	Get(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)

	// GetByEmail matches case-insensitively; empty emails never match.
	GetByEmail(ctx context.Context, email string) (*User, error)

	Update(ctx context.Context, user *User) error
	Delete(ctx context.Context, id string) error

	// List returns all users ordered by username.
	List(ctx context.Context) ([]*User, error)
}

// NewID returns a time-ordered identifier for accounts and profiles.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ValidateUsername rejects blank names and names with whitespace.
func ValidateUsername(username string) error {
	if username == "" || strings.TrimSpace(username) != username || strings.ContainsAny(username, " \t\r\n") {
		return ErrInvalidUsername
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// StoreUserRepo keeps accounts in the configured store, beside the
// profiles they own, so account and profile IDs survive restarts together.
type StoreUserRepo struct {
	accounts store.AccountStore
}

func NewStoreUserRepo(accounts store.AccountStore) *StoreUserRepo {
	return &StoreUserRepo{accounts: accounts}
}

func toAccount(u *User) *store.Account {
	return &store.Account{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		EmailKey:     normalizeEmail(u.Email),
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
	}
}

func fromAccount(a *store.Account) *User {
	return &User{
		ID:           a.ID,
		Username:     a.Username,
		Email:        a.Email,
		DisplayName:  a.DisplayName,
		PasswordHash: a.PasswordHash,
		Role:         a.Role,
		CreatedAt:    a.CreatedAt,
	}
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrUserExists
	}
	return err
}

// emailOwnedByOther reports whether email belongs to an account other than id.
func (r *StoreUserRepo) emailOwnedByOther(ctx context.Context, email, id string) (bool, error) {
	key := normalizeEmail(email)
	if key == "" {
		return false, nil
	}
	owner, err := r.accounts.GetAccountByEmailKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner.ID != id, nil
}

func (r *StoreUserRepo) Create(ctx context.Context, user *User) error {
	if _, err := r.accounts.GetAccountByUsername(ctx, user.Username); err == nil {
		return ErrUserExists
	}
	taken, err := r.emailOwnedByOther(ctx, user.Email, "")
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailExists
	}

	if user.ID == "" {
		user.ID = NewID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return mapStoreErr(r.accounts.CreateAccount(ctx, toAccount(user)))
}

func (r *StoreUserRepo) Get(ctx context.Context, id string) (*User, error) {
	a, err := r.accounts.GetAccount(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return fromAccount(a), nil
}

func (r *StoreUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	a, err := r.accounts.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return fromAccount(a), nil
}

func (r *StoreUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	key := normalizeEmail(email)
	if key == "" {
		return nil, ErrUserNotFound
	}
	a, err := r.accounts.GetAccountByEmailKey(ctx, key)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return fromAccount(a), nil
}

func (r *StoreUserRepo) Update(ctx context.Context, user *User) error {
	existing, err := r.accounts.GetAccount(ctx, user.ID)
	if err != nil {
		return mapStoreErr(err)
	}
	if existing.Role == RoleSuperAdmin && user.Role != RoleSuperAdmin {
		return ErrSuperAdminRoleChange
	}
	taken, err := r.emailOwnedByOther(ctx, user.Email, user.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrEmailExists
	}
	return mapStoreErr(r.accounts.UpdateAccount(ctx, toAccount(user)))
}

func (r *StoreUserRepo) Delete(ctx context.Context, id string) error {
	return mapStoreErr(r.accounts.DeleteAccount(ctx, id))
}

func (r *StoreUserRepo) List(ctx context.Context) ([]*User, error) {
	accounts, err := r.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*User, len(accounts))
	for i, a := range accounts {
		out[i] = fromAccount(a)
	}
	return out, nil
}

var _ UserRepo = (*StoreUserRepo)(nil)
