// Package memory implements an in-process store driver.
// It is the default driver in dev mode and the base of the json driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

func init() {
	store.Register("memory", NewDriver)
}

// State is the full contents of a memory driver.
type State struct {
	Profiles      map[string]*store.Profile          `json:"profiles"`
	Accounts      map[string]*store.Account          `json:"accounts"`
	Connections   map[string]*store.ConnectionRecord `json:"connections"`
	Notifications map[string]*store.Notification     `json:"notifications"`
}

func newState() State {
	return State{
		Profiles:      make(map[string]*store.Profile),
		Accounts:      make(map[string]*store.Account),
		Connections:   make(map[string]*store.ConnectionRecord),
		Notifications: make(map[string]*store.Notification),
	}
}

// PersistFunc is called with the driver lock held after every mutation.
type PersistFunc func(s *State) error

// Driver implements store.Store in memory.
type Driver struct {
	mu      sync.RWMutex
	closed  bool
	state   State
	persist PersistFunc
	name    string
}

// NewDriver creates a memory driver from registry config.
func NewDriver(cfg *store.DriverConfig) (store.Driver, error) {
	return New(), nil
}

// New creates an empty memory driver.
func New() *Driver {
	return &Driver{state: newState(), name: "memory"}
}

// NewPersistent creates a memory driver that reports itself as name and
// calls persist after every mutation.
func NewPersistent(name string, persist PersistFunc) *Driver {
	return &Driver{state: newState(), persist: persist, name: name}
}

// Load replaces the driver contents. Nil maps are treated as empty.
func (d *Driver) Load(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = newState()
	for k, v := range s.Profiles {
		d.state.Profiles[k] = v
	}
	for k, v := range s.Accounts {
		d.state.Accounts[k] = v
	}
	for k, v := range s.Connections {
		d.state.Connections[k] = v
	}
	for k, v := range s.Notifications {
		d.state.Notifications[k] = v
	}
}

func (d *Driver) Name() string { return d.name }

func (d *Driver) Init(ctx context.Context) error { return nil }

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) commit() error {
	if d.persist == nil {
		return nil
	}
	return d.persist(&d.state)
}

// Profiles

func (d *Driver) CreateProfile(ctx context.Context, p *store.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.state.Profiles[p.ID]; exists {
		return store.ErrAlreadyExists
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	cp := *p
	d.state.Profiles[p.ID] = &cp
	return d.commit()
}

func (d *Driver) GetProfile(ctx context.Context, id string) (*store.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	p, ok := d.state.Profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (d *Driver) UpdateProfile(ctx context.Context, p *store.Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	existing, ok := d.state.Profiles[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.DisplayName = p.DisplayName
	existing.AvatarURL = p.AvatarURL
	existing.Affiliation = p.Affiliation
	existing.Program = p.Program
	existing.UpdatedAt = time.Now().UTC()
	return d.commit()
}

func (d *Driver) ListProfiles(ctx context.Context, afterID string, limit int) ([]*store.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	ids := make([]string, 0, len(d.state.Profiles))
	for id := range d.state.Profiles {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]*store.Profile, 0, len(ids))
	for _, id := range ids {
		cp := *d.state.Profiles[id]
		result = append(result, &cp)
	}
	return result, nil
}

func (d *Driver) AdjustConnectionCount(ctx context.Context, id string, delta int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	p, ok := d.state.Profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Counters.Connections += delta
	return d.commit()
}

func (d *Driver) SetConnectionCount(ctx context.Context, id string, n int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	p, ok := d.state.Profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Counters.Connections = n
	return d.commit()
}

// Accounts

// usernameTaken reports whether another account than exceptID holds username.
func (d *Driver) usernameTaken(username, exceptID string) bool {
	for id, a := range d.state.Accounts {
		if a.Username == username && id != exceptID {
			return true
		}
	}
	return false
}

func (d *Driver) CreateAccount(ctx context.Context, a *store.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.state.Accounts[a.ID]; exists || d.usernameTaken(a.Username, "") {
		return store.ErrAlreadyExists
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	d.state.Accounts[a.ID] = &cp
	return d.commit()
}

func (d *Driver) GetAccount(ctx context.Context, id string) (*store.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	a, ok := d.state.Accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (d *Driver) GetAccountByUsername(ctx context.Context, username string) (*store.Account, error) {
	return d.findAccount(func(a *store.Account) bool { return a.Username == username })
}

func (d *Driver) GetAccountByEmailKey(ctx context.Context, key string) (*store.Account, error) {
	if key == "" {
		return nil, store.ErrNotFound
	}
	return d.findAccount(func(a *store.Account) bool { return a.EmailKey == key })
}

func (d *Driver) findAccount(match func(*store.Account) bool) (*store.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	for _, a := range d.state.Accounts {
		if match(a) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (d *Driver) UpdateAccount(ctx context.Context, a *store.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	existing, ok := d.state.Accounts[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	if d.usernameTaken(a.Username, a.ID) {
		return store.ErrAlreadyExists
	}
	cp := *a
	cp.CreatedAt = existing.CreatedAt
	d.state.Accounts[a.ID] = &cp
	return d.commit()
}

func (d *Driver) DeleteAccount(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	if _, ok := d.state.Accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(d.state.Accounts, id)
	return d.commit()
}

func (d *Driver) ListAccounts(ctx context.Context) ([]*store.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	result := make([]*store.Account, 0, len(d.state.Accounts))
	for _, a := range d.state.Accounts {
		cp := *a
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

// Connections

func (d *Driver) CreateConnection(ctx context.Context, rec *store.ConnectionRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.state.Connections[rec.PairKey]; exists {
		return store.ErrAlreadyExists
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	d.state.Connections[rec.PairKey] = rec.Clone()
	return d.commit()
}

func (d *Driver) GetConnection(ctx context.Context, pairKey string) (*store.ConnectionRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	rec, ok := d.state.Connections[pairKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (d *Driver) UpdateConnectionStatus(ctx context.Context, pairKey string, expect store.Expect, to store.ConnectionStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	rec, ok := d.state.Connections[pairKey]
	if !ok {
		return store.ErrNotFound
	}
	if !expect.Matches(rec) {
		return store.ErrConflict
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	return d.commit()
}

func (d *Driver) DeleteConnection(ctx context.Context, pairKey string, expect store.Expect) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	rec, ok := d.state.Connections[pairKey]
	if !ok {
		return store.ErrNotFound
	}
	if !expect.Matches(rec) {
		return store.ErrConflict
	}
	delete(d.state.Connections, pairKey)
	return d.commit()
}

func (d *Driver) ListConnections(ctx context.Context, userID string, statuses ...store.ConnectionStatus) ([]*store.ConnectionRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	var result []*store.ConnectionRecord
	for _, rec := range d.state.Connections {
		if !rec.Involves(userID) || !statusIn(rec.Status, statuses) {
			continue
		}
		result = append(result, rec.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].PairKey < result[j].PairKey
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func statusIn(s store.ConnectionStatus, statuses []store.ConnectionStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

// Notifications

func (d *Driver) CreateNotification(ctx context.Context, n *store.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	if _, exists := d.state.Notifications[n.ID]; exists {
		return store.ErrAlreadyExists
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	d.state.Notifications[n.ID] = n.Clone()
	return d.commit()
}

// lookup returns the notification only if it belongs to recipientID.
func (d *Driver) lookup(recipientID, id string) (*store.Notification, error) {
	n, ok := d.state.Notifications[id]
	if !ok || n.RecipientID != recipientID {
		return nil, store.ErrNotFound
	}
	return n, nil
}

func (d *Driver) GetNotification(ctx context.Context, recipientID, id string) (*store.Notification, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	n, err := d.lookup(recipientID, id)
	if err != nil {
		return nil, err
	}
	return n.Clone(), nil
}

func (d *Driver) ListNotifications(ctx context.Context, recipientID string, limit int) ([]*store.Notification, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}

	var result []*store.Notification
	for _, n := range d.state.Notifications {
		if n.RecipientID == recipientID {
			result = append(result, n.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (d *Driver) MarkNotificationRead(ctx context.Context, recipientID, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	n, err := d.lookup(recipientID, id)
	if err != nil {
		return err
	}
	n.IsRead = true
	return d.commit()
}

func (d *Driver) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, store.ErrClosed
	}

	var count int64
	for _, n := range d.state.Notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return count, d.commit()
}

func (d *Driver) MarkNotificationActionDone(ctx context.Context, recipientID, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	n, err := d.lookup(recipientID, id)
	if err != nil {
		return err
	}
	n.ActionDone = true
	return d.commit()
}

func (d *Driver) DeleteNotification(ctx context.Context, recipientID, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return store.ErrClosed
	}

	if _, err := d.lookup(recipientID, id); err != nil {
		return err
	}
	delete(d.state.Notifications, id)
	return d.commit()
}

func (d *Driver) CountUnreadNotifications(ctx context.Context, recipientID, typ string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, store.ErrClosed
	}

	var count int64
	for _, n := range d.state.Notifications {
		if n.RecipientID != recipientID || n.IsRead {
			continue
		}
		if typ != "" && n.Type != typ {
			continue
		}
		count++
	}
	return count, nil
}

var _ store.Store = (*Driver)(nil)
