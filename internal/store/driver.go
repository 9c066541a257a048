// Package store provides persistence primitives and driver abstractions.
package store

import (
	"context"
	"errors"
)

// Common errors for store operations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrClosed        = errors.New("store closed")

	// ErrConflict is returned by compare-and-set writes when the stored
	// state no longer matches the expected state.
	ErrConflict = errors.New("state conflict")
)

// Driver defines the interface for a persistence backend.
// Implementations must be safe for concurrent use.
type Driver interface {
	// Init initializes the driver (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the driver.
	Close() error

	// Name returns the driver name (memory, json, sqlite, postgres, mongo).
	Name() string
}

// ProfileStore persists identity profiles and their counters.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)

	// UpdateProfile replaces the display attributes of an existing profile.
	// Counters are left untouched; they only change through
	// AdjustConnectionCount and SetConnectionCount.
	UpdateProfile(ctx context.Context, p *Profile) error

	// ListProfiles returns up to limit profiles with ID greater than afterID,
	// ordered by ID.
	ListProfiles(ctx context.Context, afterID string, limit int) ([]*Profile, error)

	AdjustConnectionCount(ctx context.Context, id string, delta int64) error
	SetConnectionCount(ctx context.Context, id string, n int64) error
}

// AccountStore persists local logins beside the profiles they own.
type AccountStore interface {
	// CreateAccount inserts a. Returns ErrAlreadyExists if the ID or the
	// username is taken. Email uniqueness is left to callers.
	CreateAccount(ctx context.Context, a *Account) error

	GetAccount(ctx context.Context, id string) (*Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)

	// GetAccountByEmailKey matches on Account.EmailKey.
	GetAccountByEmailKey(ctx context.Context, key string) (*Account, error)

	// UpdateAccount replaces a stored account. Returns ErrNotFound if it does
	// not exist and ErrAlreadyExists if the new username is taken.
	UpdateAccount(ctx context.Context, a *Account) error
	DeleteAccount(ctx context.Context, id string) error

	// ListAccounts returns every account ordered by username.
	ListAccounts(ctx context.Context) ([]*Account, error)
}

// ConnectionStore persists connection records keyed by pair key.
type ConnectionStore interface {
	// CreateConnection inserts rec if no record exists for rec.PairKey.
	// Returns ErrAlreadyExists otherwise. The check and insert are atomic.
	CreateConnection(ctx context.Context, rec *ConnectionRecord) error

	GetConnection(ctx context.Context, pairKey string) (*ConnectionRecord, error)

	// UpdateConnectionStatus sets the status of the record to to, provided
	// the stored record matches expect. Returns ErrNotFound if no record
	// exists and ErrConflict if it does not match.
	UpdateConnectionStatus(ctx context.Context, pairKey string, expect Expect, to ConnectionStatus) error

	// DeleteConnection deletes the record if it matches expect.
	// Same error contract as UpdateConnectionStatus.
	DeleteConnection(ctx context.Context, pairKey string, expect Expect) error

	// ListConnections returns records that have userID as a participant,
	// newest first. With no statuses given, all records are returned.
	ListConnections(ctx context.Context, userID string, statuses ...ConnectionStatus) ([]*ConnectionRecord, error)
}

// NotificationStore persists per-recipient notifications.
// Every lookup is scoped to the recipient so one identity can never read or
// mutate another identity's notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, recipientID, id string) (*Notification, error)

	// ListNotifications returns at most limit notifications, newest first.
	ListNotifications(ctx context.Context, recipientID string, limit int) ([]*Notification, error)

	MarkNotificationRead(ctx context.Context, recipientID, id string) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	MarkNotificationActionDone(ctx context.Context, recipientID, id string) error
	DeleteNotification(ctx context.Context, recipientID, id string) error

	// CountUnreadNotifications counts unread notifications of typ.
	// An empty typ counts all types.
	CountUnreadNotifications(ctx context.Context, recipientID, typ string) (int64, error)
}

// Store is the full persistence surface. Every registered driver implements it.
type Store interface {
	Driver
	ProfileStore
	AccountStore
	ConnectionStore
	NotificationStore
}

// Open creates, type-checks and initializes the configured driver.
func Open(ctx context.Context, cfg *DriverConfig) (Store, error) {
	driver, err := New(cfg)
	if err != nil {
		return nil, err
	}
	s, ok := driver.(Store)
	if !ok {
		driver.Close()
		return nil, errors.New("driver " + driver.Name() + " does not implement store.Store")
	}
	if err := s.Init(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
