package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/cache"
)

// Session represents an active login.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// SessionRepo provides session storage operations.
type SessionRepo interface {
	// Create opens a new session for the user.
	Create(ctx context.Context, user *User, ttl time.Duration) (*Session, error)

	// Get retrieves a session by token. Returns ErrSessionNotFound or
	// ErrSessionExpired.
	Get(ctx context.Context, token string) (*Session, error)

	// Delete removes a session (logout). Unknown tokens are not an error.
	Delete(ctx context.Context, token string) error
}

const sessionKeyPrefix = "session:"

// CacheSessionRepo keeps sessions in the shared cache, so every instance
// behind a redis cache sees the same logins. Expiry is delegated to the
// cache TTL and double-checked on read.
type CacheSessionRepo struct {
	cache cache.Cache
}

func NewCacheSessionRepo(c cache.Cache) *CacheSessionRepo {
	return &CacheSessionRepo{cache: c}
}

func (r *CacheSessionRepo) Create(ctx context.Context, user *User, ttl time.Duration) (*Session, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	now := time.Now().UTC()
	s := &Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		Role:      user.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, sessionKeyPrefix+s.Token, data, ttl); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return s, nil
}

func (r *CacheSessionRepo) Get(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	data, err := r.cache.Get(ctx, sessionKeyPrefix+token)
	if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrExpired) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	if s.IsExpired() {
		return nil, ErrSessionExpired
	}
	return &s, nil
}

func (r *CacheSessionRepo) Delete(ctx context.Context, token string) error {
	err := r.cache.Delete(ctx, sessionKeyPrefix+token)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	return err
}

var _ SessionRepo = (*CacheSessionRepo)(nil)
