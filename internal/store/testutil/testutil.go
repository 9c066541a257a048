// Package testutil provides shared test helpers for store driver tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// TestProfile creates a test profile with the given ID.
func TestProfile(id string) *store.Profile {
	return &store.Profile{
		ID:          id,
		DisplayName: "User " + id,
		AvatarURL:   "https://cdn.example.edu/avatars/" + id + ".png",
		Affiliation: "University of Example",
		Program:     "Computer Science",
	}
}

// TestConnection creates a pending connection record requested by from.
func TestConnection(from, to string) *store.ConnectionRecord {
	a, b := store.OrderPair(from, to)
	return &store.ConnectionRecord{
		PairKey:     store.PairKey(from, to),
		UserA:       a,
		UserB:       b,
		Status:      store.StatusPending,
		RequesterID: from,
		Snapshots: map[string]store.Snapshot{
			from: TestProfile(from).Snapshot(),
			to:   TestProfile(to).Snapshot(),
		},
	}
}

// TestNotification creates an unread connection notification.
func TestNotification(id, recipient, from string, createdAt time.Time) *store.Notification {
	return &store.Notification{
		ID:          id,
		RecipientID: recipient,
		Type:        "connection",
		Title:       "New connection request",
		Description: from + " wants to connect",
		Metadata:    map[string]string{"fromUserId": from},
		CreatedAt:   createdAt,
	}
}

// TestAccount creates a test account with the given ID and username.
func TestAccount(id, username string) *store.Account {
	return &store.Account{
		ID:           id,
		Username:     username,
		Email:        username + "@Example.edu",
		EmailKey:     username + "@example.edu",
		DisplayName:  "User " + username,
		PasswordHash: "$argon2id$test",
		Role:         "user",
	}
}

// OpenDriver creates and initializes a driver, failing the test on error.
// The driver is closed when the test finishes.
func OpenDriver(t *testing.T, cfg *store.DriverConfig) store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to open %s driver: %v", cfg.Driver, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// RunDriverTests runs the standard test suite against a driver.
func RunDriverTests(t *testing.T, driverName string, cfg *store.DriverConfig) {
	ctx := context.Background()

	s := OpenDriver(t, cfg)

	if s.Name() != driverName {
		t.Errorf("expected driver name %q, got %q", driverName, s.Name())
	}

	t.Run("ProfileCRUD", func(t *testing.T) {
		TestProfileCRUD(t, ctx, s)
	})

	t.Run("ProfileCounters", func(t *testing.T) {
		TestProfileCounters(t, ctx, s)
	})

	t.Run("AccountCRUD", func(t *testing.T) {
		TestAccountCRUD(t, ctx, s)
	})

	t.Run("ConnectionCRUD", func(t *testing.T) {
		TestConnectionCRUD(t, ctx, s)
	})

	t.Run("ConnectionCompareAndSet", func(t *testing.T) {
		TestConnectionCompareAndSet(t, ctx, s)
	})

	t.Run("ConcurrentCreateConnection", func(t *testing.T) {
		TestConcurrentCreateConnection(t, ctx, s)
	})

	t.Run("NotificationCRUD", func(t *testing.T) {
		TestNotificationCRUD(t, ctx, s)
	})

	t.Run("NotificationScoping", func(t *testing.T) {
		TestNotificationScoping(t, ctx, s)
	})
}

// TestProfileCRUD tests profile create, get, update and paging.
func TestProfileCRUD(t *testing.T, ctx context.Context, s store.Store) {
	for _, id := range []string{"p-3", "p-1", "p-2"} {
		if err := s.CreateProfile(ctx, TestProfile(id)); err != nil {
			t.Fatalf("CreateProfile(%s) failed: %v", id, err)
		}
	}

	if err := s.CreateProfile(ctx, TestProfile("p-1")); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists on duplicate profile, got %v", err)
	}

	got, err := s.GetProfile(ctx, "p-1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.DisplayName != "User p-1" {
		t.Errorf("expected display name 'User p-1', got %q", got.DisplayName)
	}

	got.DisplayName = "Renamed"
	got.Program = "Mathematics"
	if err := s.UpdateProfile(ctx, got); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	got, _ = s.GetProfile(ctx, "p-1")
	if got.DisplayName != "Renamed" || got.Program != "Mathematics" {
		t.Errorf("update not applied: %+v", got)
	}

	if _, err := s.GetProfile(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateProfile(ctx, TestProfile("missing")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on update of missing profile, got %v", err)
	}

	page, err := s.ListProfiles(ctx, "", 2)
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(page) != 2 || page[0].ID != "p-1" || page[1].ID != "p-2" {
		t.Fatalf("unexpected first page: %v", profileIDs(page))
	}
	page, err = s.ListProfiles(ctx, page[1].ID, 2)
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(page) != 1 || page[0].ID != "p-3" {
		t.Errorf("unexpected second page: %v", profileIDs(page))
	}
}

// TestAccountCRUD tests account create, lookups, username uniqueness,
// update and delete.
func TestAccountCRUD(t *testing.T, ctx context.Context, s store.Store) {
	for _, a := range []*store.Account{TestAccount("a-2", "zoe"), TestAccount("a-1", "amir")} {
		if err := s.CreateAccount(ctx, a); err != nil {
			t.Fatalf("CreateAccount(%s) failed: %v", a.ID, err)
		}
	}

	if err := s.CreateAccount(ctx, TestAccount("a-3", "amir")); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for taken username, got %v", err)
	}
	if err := s.CreateAccount(ctx, TestAccount("a-1", "other")); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for taken ID, got %v", err)
	}

	got, err := s.GetAccountByUsername(ctx, "amir")
	if err != nil {
		t.Fatalf("GetAccountByUsername failed: %v", err)
	}
	if got.ID != "a-1" || got.PasswordHash != "$argon2id$test" || got.CreatedAt.IsZero() {
		t.Errorf("unexpected account: %+v", got)
	}
	if got, err := s.GetAccountByEmailKey(ctx, "zoe@example.edu"); err != nil || got.ID != "a-2" {
		t.Errorf("expected a-2 by email key, got %v, %v", got, err)
	}
	if _, err := s.GetAccountByEmailKey(ctx, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty email key, got %v", err)
	}
	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts failed: %v", err)
	}
	if len(list) != 2 || list[0].Username != "amir" || list[1].Username != "zoe" {
		t.Errorf("expected [amir zoe], got %d accounts", len(list))
	}

	got.Username = "zoe"
	if err := s.UpdateAccount(ctx, got); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists renaming onto a taken username, got %v", err)
	}
	got.Username = "amir"
	got.Role = "admin"
	if err := s.UpdateAccount(ctx, got); err != nil {
		t.Fatalf("UpdateAccount failed: %v", err)
	}
	if a, _ := s.GetAccount(ctx, "a-1"); a == nil || a.Role != "admin" {
		t.Errorf("expected role admin after update, got %+v", a)
	}
	if err := s.UpdateAccount(ctx, TestAccount("missing", "ghost")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound updating a missing account, got %v", err)
	}

	if err := s.DeleteAccount(ctx, "a-2"); err != nil {
		t.Fatalf("DeleteAccount failed: %v", err)
	}
	if err := s.DeleteAccount(ctx, "a-2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

// TestProfileCounters tests counter adjustment, including going below zero.
func TestProfileCounters(t *testing.T, ctx context.Context, s store.Store) {
	if err := s.CreateProfile(ctx, TestProfile("counter-1")); err != nil {
		t.Fatalf("CreateProfile failed: %v", err)
	}

	if err := s.AdjustConnectionCount(ctx, "counter-1", 1); err != nil {
		t.Fatalf("AdjustConnectionCount failed: %v", err)
	}
	if err := s.AdjustConnectionCount(ctx, "counter-1", 1); err != nil {
		t.Fatalf("AdjustConnectionCount failed: %v", err)
	}
	got, _ := s.GetProfile(ctx, "counter-1")
	if got.Counters.Connections != 2 {
		t.Errorf("expected 2 connections, got %d", got.Counters.Connections)
	}

	// UpdateProfile must not reset counters.
	got.Counters.Connections = 99
	got.DisplayName = "Still Counting"
	if err := s.UpdateProfile(ctx, got); err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	got, _ = s.GetProfile(ctx, "counter-1")
	if got.Counters.Connections != 2 {
		t.Errorf("UpdateProfile changed counters: got %d", got.Counters.Connections)
	}

	if err := s.AdjustConnectionCount(ctx, "counter-1", -3); err != nil {
		t.Fatalf("AdjustConnectionCount failed: %v", err)
	}
	got, _ = s.GetProfile(ctx, "counter-1")
	if got.Counters.Connections != -1 {
		t.Errorf("expected -1 connections, got %d", got.Counters.Connections)
	}

	if err := s.SetConnectionCount(ctx, "counter-1", 0); err != nil {
		t.Fatalf("SetConnectionCount failed: %v", err)
	}
	got, _ = s.GetProfile(ctx, "counter-1")
	if got.Counters.Connections != 0 {
		t.Errorf("expected 0 connections, got %d", got.Counters.Connections)
	}

	if err := s.AdjustConnectionCount(ctx, "missing", 1); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestConnectionCRUD tests connection create, get, list and snapshot storage.
func TestConnectionCRUD(t *testing.T, ctx context.Context, s store.Store) {
	rec := TestConnection("crud-alice", "crud-bob")
	if err := s.CreateConnection(ctx, rec); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	// Same pair in the other direction maps to the same key.
	reverse := TestConnection("crud-bob", "crud-alice")
	if err := s.CreateConnection(ctx, reverse); !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists for reversed pair, got %v", err)
	}

	got, err := s.GetConnection(ctx, rec.PairKey)
	if err != nil {
		t.Fatalf("GetConnection failed: %v", err)
	}
	if got.RequesterID != "crud-alice" {
		t.Errorf("requester overwritten: got %q", got.RequesterID)
	}
	if got.Status != store.StatusPending {
		t.Errorf("expected pending, got %q", got.Status)
	}
	if snap, ok := got.Snapshots["crud-bob"]; !ok || snap.DisplayName != "User crud-bob" {
		t.Errorf("snapshot not stored: %+v", got.Snapshots)
	}

	other := TestConnection("crud-alice", "crud-carol")
	if err := s.CreateConnection(ctx, other); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}
	if err := s.UpdateConnectionStatus(ctx, other.PairKey, store.ExpectStatus(store.StatusPending), store.StatusAccepted); err != nil {
		t.Fatalf("UpdateConnectionStatus failed: %v", err)
	}

	all, err := s.ListConnections(ctx, "crud-alice")
	if err != nil {
		t.Fatalf("ListConnections failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 records for alice, got %d", len(all))
	}

	accepted, err := s.ListConnections(ctx, "crud-alice", store.StatusAccepted)
	if err != nil {
		t.Fatalf("ListConnections failed: %v", err)
	}
	if len(accepted) != 1 || accepted[0].PairKey != other.PairKey {
		t.Errorf("expected only the accepted record, got %d", len(accepted))
	}

	bob, err := s.ListConnections(ctx, "crud-bob", store.StatusPending, store.StatusAccepted)
	if err != nil {
		t.Fatalf("ListConnections failed: %v", err)
	}
	if len(bob) != 1 {
		t.Errorf("expected 1 record for bob, got %d", len(bob))
	}

	if _, err := s.GetConnection(ctx, store.PairKey("nobody", "else")); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestConnectionCompareAndSet tests the conditional update and delete contract.
func TestConnectionCompareAndSet(t *testing.T, ctx context.Context, s store.Store) {
	rec := TestConnection("cas-alice", "cas-bob")
	if err := s.CreateConnection(ctx, rec); err != nil {
		t.Fatalf("CreateConnection failed: %v", err)
	}

	err := s.UpdateConnectionStatus(ctx, rec.PairKey, store.ExpectStatus(store.StatusAccepted), store.StatusPending)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict on wrong from status, got %v", err)
	}

	wrongRequester := store.Expect{Status: store.StatusPending, RequesterID: "cas-bob"}
	if err := s.UpdateConnectionStatus(ctx, rec.PairKey, wrongRequester, store.StatusAccepted); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict on requester mismatch, got %v", err)
	}
	if err := s.DeleteConnection(ctx, rec.PairKey, wrongRequester); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict on delete with requester mismatch, got %v", err)
	}

	rightRequester := store.Expect{Status: store.StatusPending, RequesterID: "cas-alice"}
	if err := s.UpdateConnectionStatus(ctx, rec.PairKey, rightRequester, store.StatusAccepted); err != nil {
		t.Fatalf("UpdateConnectionStatus failed: %v", err)
	}
	err = s.UpdateConnectionStatus(ctx, rec.PairKey, store.ExpectStatus(store.StatusPending), store.StatusAccepted)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict on replayed update, got %v", err)
	}

	if err := s.DeleteConnection(ctx, rec.PairKey, store.ExpectStatus(store.StatusPending)); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict on delete with wrong status, got %v", err)
	}
	if err := s.DeleteConnection(ctx, rec.PairKey, store.ExpectStatus(store.StatusAccepted)); err != nil {
		t.Fatalf("DeleteConnection failed: %v", err)
	}
	if err := s.DeleteConnection(ctx, rec.PairKey, store.ExpectStatus(store.StatusAccepted)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
	if err := s.UpdateConnectionStatus(ctx, rec.PairKey, store.ExpectStatus(store.StatusPending), store.StatusAccepted); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on update of deleted record, got %v", err)
	}

	// The pair can be re-created after deletion.
	if err := s.CreateConnection(ctx, TestConnection("cas-bob", "cas-alice")); err != nil {
		t.Errorf("re-create after delete failed: %v", err)
	}
}

// TestConcurrentCreateConnection races creates for one pair from both sides.
func TestConcurrentCreateConnection(t *testing.T, ctx context.Context, s store.Store) {
	const workers = 8

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		created  int
		rejected int
		other    []error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "race-alice", "race-bob"
			if i%2 == 1 {
				from, to = to, from
			}
			err := s.CreateConnection(ctx, TestConnection(from, to))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrAlreadyExists):
				rejected++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if created != 1 {
		t.Errorf("expected exactly one create to succeed, got %d", created)
	}
	if rejected != workers-1 {
		t.Errorf("expected %d ErrAlreadyExists, got %d", workers-1, rejected)
	}

	records, err := s.ListConnections(ctx, "race-alice")
	if err != nil {
		t.Fatalf("ListConnections failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected one record for the pair, got %d", len(records))
	}
}

// TestNotificationCRUD tests ordering, flags, counting and deletion.
func TestNotificationCRUD(t *testing.T, ctx context.Context, s store.Store) {
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	for i := 0; i < 5; i++ {
		n := TestNotification(fmt.Sprintf("crud-n-%d", i), "crud-recipient", fmt.Sprintf("sender-%d", i), base.Add(time.Duration(i)*time.Minute))
		if i == 4 {
			n.Type = "message"
		}
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatalf("CreateNotification failed: %v", err)
		}
	}

	list, err := s.ListNotifications(ctx, "crud-recipient", 3)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(list))
	}
	if list[0].ID != "crud-n-4" || list[1].ID != "crud-n-3" || list[2].ID != "crud-n-2" {
		t.Errorf("expected newest first, got %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
	}
	if list[1].Metadata["fromUserId"] != "sender-3" {
		t.Errorf("metadata not stored: %v", list[1].Metadata)
	}

	count, err := s.CountUnreadNotifications(ctx, "crud-recipient", "connection")
	if err != nil {
		t.Fatalf("CountUnreadNotifications failed: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 unread connection notifications, got %d", count)
	}

	if err := s.MarkNotificationRead(ctx, "crud-recipient", "crud-n-0"); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}
	if err := s.MarkNotificationActionDone(ctx, "crud-recipient", "crud-n-1"); err != nil {
		t.Fatalf("MarkNotificationActionDone failed: %v", err)
	}
	got, err := s.GetNotification(ctx, "crud-recipient", "crud-n-1")
	if err != nil {
		t.Fatalf("GetNotification failed: %v", err)
	}
	if !got.ActionDone || got.IsRead {
		t.Errorf("expected action done and unread, got action_done=%v is_read=%v", got.ActionDone, got.IsRead)
	}

	count, _ = s.CountUnreadNotifications(ctx, "crud-recipient", "connection")
	if count != 3 {
		t.Errorf("expected 3 unread connection notifications, got %d", count)
	}
	count, _ = s.CountUnreadNotifications(ctx, "crud-recipient", "")
	if count != 4 {
		t.Errorf("expected 4 unread notifications of any type, got %d", count)
	}

	marked, err := s.MarkAllNotificationsRead(ctx, "crud-recipient")
	if err != nil {
		t.Fatalf("MarkAllNotificationsRead failed: %v", err)
	}
	if marked != 4 {
		t.Errorf("expected 4 marked read, got %d", marked)
	}

	if err := s.DeleteNotification(ctx, "crud-recipient", "crud-n-2"); err != nil {
		t.Fatalf("DeleteNotification failed: %v", err)
	}
	if _, err := s.GetNotification(ctx, "crud-recipient", "crud-n-2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteNotification(ctx, "crud-recipient", "crud-n-2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

// TestNotificationScoping verifies a recipient cannot touch another's notifications.
func TestNotificationScoping(t *testing.T, ctx context.Context, s store.Store) {
	n := TestNotification("scope-n-1", "scope-owner", "scope-sender", time.Now().UTC())
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification failed: %v", err)
	}

	if _, err := s.GetNotification(ctx, "scope-intruder", n.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other recipient, got %v", err)
	}
	if err := s.MarkNotificationRead(ctx, "scope-intruder", n.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on foreign mark read, got %v", err)
	}
	if err := s.DeleteNotification(ctx, "scope-intruder", n.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on foreign delete, got %v", err)
	}

	got, err := s.GetNotification(ctx, "scope-owner", n.ID)
	if err != nil {
		t.Fatalf("owner lost notification: %v", err)
	}
	if got.IsRead {
		t.Error("foreign mark read leaked through")
	}
}

func profileIDs(ps []*store.Profile) []string {
	ids := make([]string, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
	}
	return ids
}
