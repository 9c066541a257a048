// Package relational implements store.Store on top of GORM.
// Dialect-specific packages (sqlite, postgres) supply the gorm.Dialector.
package relational

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// Options tune the underlying connection pool.
type Options struct {
	// MaxOpenConns caps open connections; 0 leaves the pool default.
	MaxOpenConns int
}

// Driver implements store.Store using GORM.
type Driver struct {
	name      string
	dialector func() (gorm.Dialector, error)
	opts      Options
	db        *gorm.DB
}

// New creates a driver. The dialector is resolved at Init time.
func New(name string, dialector func() (gorm.Dialector, error), opts Options) *Driver {
	return &Driver{name: name, dialector: dialector, opts: opts}
}

// Name returns the driver name.
func (d *Driver) Name() string {
	return d.name
}

// DB exposes the underlying handle for tests and maintenance tooling.
func (d *Driver) DB() *gorm.DB {
	return d.db
}

// Init opens the database and runs AutoMigrate.
func (d *Driver) Init(ctx context.Context) error {
	dialector, err := d.dialector()
	if err != nil {
		return err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if d.opts.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(d.opts.MaxOpenConns)
	}

	d.db = db

	if err := db.WithContext(ctx).AutoMigrate(
		&store.Profile{},
		&store.Account{},
		&store.ConnectionRecord{},
		&store.Notification{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// insertIfAbsent inserts value and reports ErrAlreadyExists when the primary
// key is taken. ON CONFLICT DO NOTHING keeps the check and insert atomic.
func (d *Driver) insertIfAbsent(ctx context.Context, value any) error {
	result := d.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

// ProfileStore implementation

func (d *Driver) CreateProfile(ctx context.Context, p *store.Profile) error {
	return d.insertIfAbsent(ctx, p)
}

func (d *Driver) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	var p store.Profile
	if err := d.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (d *Driver) UpdateProfile(ctx context.Context, p *store.Profile) error {
	result := d.db.WithContext(ctx).Model(&store.Profile{}).Where("id = ?", p.ID).Updates(map[string]any{
		"display_name": p.DisplayName,
		"avatar_url":   p.AvatarURL,
		"affiliation":  p.Affiliation,
		"program":      p.Program,
		"updated_at":   time.Now().UTC(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) ListProfiles(ctx context.Context, afterID string, limit int) ([]*store.Profile, error) {
	var profiles []*store.Profile
	q := d.db.WithContext(ctx).Where("id > ?", afterID).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (d *Driver) AdjustConnectionCount(ctx context.Context, id string, delta int64) error {
	return d.updateCounter(ctx, id, gorm.Expr("counters_connections + ?", delta))
}

func (d *Driver) SetConnectionCount(ctx context.Context, id string, n int64) error {
	return d.updateCounter(ctx, id, n)
}

func (d *Driver) updateCounter(ctx context.Context, id string, value any) error {
	result := d.db.WithContext(ctx).Model(&store.Profile{}).Where("id = ?", id).
		UpdateColumn("counters_connections", value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AccountStore implementation

func (d *Driver) CreateAccount(ctx context.Context, a *store.Account) error {
	return d.insertIfAbsent(ctx, a)
}

func (d *Driver) GetAccount(ctx context.Context, id string) (*store.Account, error) {
	return d.firstAccount(ctx, "id = ?", id)
}

func (d *Driver) GetAccountByUsername(ctx context.Context, username string) (*store.Account, error) {
	return d.firstAccount(ctx, "username = ?", username)
}

func (d *Driver) GetAccountByEmailKey(ctx context.Context, key string) (*store.Account, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return d.firstAccount(ctx, "email_key = ?", key)
}

func (d *Driver) firstAccount(ctx context.Context, query string, arg string) (*store.Account, error) {
	var a store.Account
	if err := d.db.WithContext(ctx).First(&a, query, arg).Error; err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (d *Driver) UpdateAccount(ctx context.Context, a *store.Account) error {
	result := d.db.WithContext(ctx).Model(&store.Account{}).Where("id = ?", a.ID).Updates(map[string]any{
		"username":      a.Username,
		"email":         a.Email,
		"email_key":     a.EmailKey,
		"display_name":  a.DisplayName,
		"password_hash": a.PasswordHash,
		"role":          a.Role,
	})
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return store.ErrAlreadyExists
	}
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) DeleteAccount(ctx context.Context, id string) error {
	result := d.db.WithContext(ctx).Where("id = ?", id).Delete(&store.Account{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) ListAccounts(ctx context.Context) ([]*store.Account, error) {
	var accounts []*store.Account
	if err := d.db.WithContext(ctx).Order("username ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ConnectionStore implementation

func (d *Driver) CreateConnection(ctx context.Context, rec *store.ConnectionRecord) error {
	return d.insertIfAbsent(ctx, rec)
}

func (d *Driver) GetConnection(ctx context.Context, pairKey string) (*store.ConnectionRecord, error) {
	var rec store.ConnectionRecord
	if err := d.db.WithContext(ctx).First(&rec, "pair_key = ?", pairKey).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (d *Driver) UpdateConnectionStatus(ctx context.Context, pairKey string, expect store.Expect, to store.ConnectionStatus) error {
	result := d.matching(ctx, pairKey, expect).Model(&store.ConnectionRecord{}).
		Updates(map[string]any{"status": string(to), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return d.classifyMiss(ctx, pairKey)
	}
	return nil
}

func (d *Driver) DeleteConnection(ctx context.Context, pairKey string, expect store.Expect) error {
	result := d.matching(ctx, pairKey, expect).Delete(&store.ConnectionRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return d.classifyMiss(ctx, pairKey)
	}
	return nil
}

func (d *Driver) matching(ctx context.Context, pairKey string, expect store.Expect) *gorm.DB {
	q := d.db.WithContext(ctx).Where("pair_key = ? AND status = ?", pairKey, string(expect.Status))
	if expect.RequesterID != "" {
		q = q.Where("requester_id = ?", expect.RequesterID)
	}
	return q
}

// classifyMiss tells a missing record apart from a status mismatch after a
// conditional write matched no rows.
func (d *Driver) classifyMiss(ctx context.Context, pairKey string) error {
	var n int64
	if err := d.db.WithContext(ctx).Model(&store.ConnectionRecord{}).Where("pair_key = ?", pairKey).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (d *Driver) ListConnections(ctx context.Context, userID string, statuses ...store.ConnectionStatus) ([]*store.ConnectionRecord, error) {
	var records []*store.ConnectionRecord
	q := d.db.WithContext(ctx).Where("(user_a = ? OR user_b = ?)", userID, userID)
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		q = q.Where("status IN ?", values)
	}
	if err := q.Order("created_at DESC").Order("pair_key ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// NotificationStore implementation

func (d *Driver) CreateNotification(ctx context.Context, n *store.Notification) error {
	return d.insertIfAbsent(ctx, n)
}

func (d *Driver) GetNotification(ctx context.Context, recipientID, id string) (*store.Notification, error) {
	var n store.Notification
	if err := d.db.WithContext(ctx).First(&n, "id = ? AND recipient_id = ?", id, recipientID).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (d *Driver) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*store.Notification, error) {
	var list []*store.Notification
	q := d.db.WithContext(ctx).Where("recipient_id = ?", recipientID).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (d *Driver) MarkNotificationRead(ctx context.Context, recipientID, id string) error {
	return d.setNotificationFlag(ctx, recipientID, id, "is_read")
}

func (d *Driver) MarkNotificationActionDone(ctx context.Context, recipientID, id string) error {
	return d.setNotificationFlag(ctx, recipientID, id, "action_done")
}

func (d *Driver) setNotificationFlag(ctx context.Context, recipientID, id, column string) error {
	result := d.db.WithContext(ctx).Model(&store.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		UpdateColumn(column, true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	result := d.db.WithContext(ctx).Model(&store.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false).
		UpdateColumn("is_read", true)
	return result.RowsAffected, result.Error
}

func (d *Driver) DeleteNotification(ctx context.Context, recipientID, id string) error {
	result := d.db.WithContext(ctx).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Delete(&store.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *Driver) CountUnreadNotifications(ctx context.Context, recipientID, typ string) (int64, error) {
	var n int64
	q := d.db.WithContext(ctx).Model(&store.Notification{}).
		Where("recipient_id = ? AND is_read = ?", recipientID, false)
	if typ != "" {
		q = q.Where("type = ?", typ)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

var _ store.Store = (*Driver)(nil)
