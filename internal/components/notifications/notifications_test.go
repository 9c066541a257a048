package notifications_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/events"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/notifications"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/memory"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store/testutil"
)

type countingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *countingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func newService(t *testing.T, scanLimit int) (*notifications.Service, store.Store, *countingPublisher) {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { s.Close() })
	pub := &countingPublisher{}
	return notifications.New(s, pub, scanLimit, nil), s, pub
}

func TestConnectionRequested(t *testing.T) {
	svc, s, pub := newService(t, 0)
	ctx := context.Background()

	requester := testutil.TestProfile("alice").Snapshot()
	if err := svc.ConnectionRequested(ctx, requester, "bob"); err != nil {
		t.Fatalf("ConnectionRequested failed: %v", err)
	}

	list, err := s.ListNotifications(ctx, "bob", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(list))
	}
	n := list[0]
	if n.Type != notifications.TypeConnection {
		t.Errorf("expected type connection, got %q", n.Type)
	}
	if n.Metadata[notifications.MetaFromUserID] != "alice" {
		t.Errorf("expected fromUserId alice, got %v", n.Metadata)
	}
	if n.AvatarURL != requester.AvatarURL {
		t.Errorf("expected requester avatar, got %q", n.AvatarURL)
	}
	if n.ID == "" || n.CreatedAt.IsZero() {
		t.Errorf("ID and CreatedAt must be assigned: %+v", n)
	}
	if len(pub.events) != 1 || pub.events[0].Identity != "bob" || pub.events[0].Kind != events.KindNotification {
		t.Errorf("expected one notification event for bob, got %v", pub.events)
	}
}

func TestCreate_RejectsUnknownType(t *testing.T) {
	svc, _, _ := newService(t, 0)
	err := svc.Create(context.Background(), &store.Notification{RecipientID: "bob", Type: "poke"})
	if !errors.Is(err, notifications.ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}

func TestResolveConnectionRequest(t *testing.T) {
	svc, s, _ := newService(t, 0)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	seed := []*store.Notification{
		testutil.TestNotification("old", "bob", "alice", base),
		testutil.TestNotification("new", "bob", "alice", base.Add(time.Minute)),
		testutil.TestNotification("carol", "bob", "carol", base.Add(2*time.Minute)),
	}
	for _, n := range seed {
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.ResolveConnectionRequest(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("ResolveConnectionRequest failed: %v", err)
	}
	if got.ID != "new" {
		t.Errorf("expected newest matching notification, got %q", got.ID)
	}

	stored, _ := s.GetNotification(ctx, "bob", "new")
	if !stored.ActionDone {
		t.Error("notification not marked action done")
	}
	stored, _ = s.GetNotification(ctx, "bob", "carol")
	if stored.ActionDone {
		t.Error("unrelated notification marked")
	}

	// The next resolve moves on to the older one, then runs out.
	got, err = svc.ResolveConnectionRequest(ctx, "bob", "alice")
	if err != nil || got.ID != "old" {
		t.Errorf("expected old, got %v, %v", got, err)
	}
	if _, err := svc.ResolveConnectionRequest(ctx, "bob", "alice"); !errors.Is(err, notifications.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveConnectionRequest_SkipsReadAndOtherTypes(t *testing.T) {
	svc, s, _ := newService(t, 0)
	ctx := context.Background()

	read := testutil.TestNotification("read", "bob", "alice", time.Now())
	read.IsRead = true
	message := testutil.TestNotification("msg", "bob", "alice", time.Now())
	message.Type = notifications.TypeMessage
	for _, n := range []*store.Notification{read, message} {
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := svc.ResolveConnectionRequest(ctx, "bob", "alice"); !errors.Is(err, notifications.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveConnectionRequest_BoundedScan(t *testing.T) {
	svc, s, _ := newService(t, 3)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// The match is the oldest of five; a scan of three never reaches it.
	if err := s.CreateNotification(ctx, testutil.TestNotification("target", "bob", "alice", base)); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 4; i++ {
		n := testutil.TestNotification(string(rune('a'+i)), "bob", "dave", base.Add(time.Duration(i)*time.Minute))
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := svc.ResolveConnectionRequest(ctx, "bob", "alice"); !errors.Is(err, notifications.ErrNotFound) {
		t.Errorf("expected ErrNotFound beyond scan limit, got %v", err)
	}
}

func TestReadAndDelete(t *testing.T) {
	svc, s, _ := newService(t, 0)
	ctx := context.Background()

	for i, id := range []string{"n1", "n2", "n3"} {
		n := testutil.TestNotification(id, "bob", "alice", time.Now().Add(time.Duration(i)*time.Second))
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatal(err)
		}
	}

	count, err := svc.UnreadCount(ctx, "bob", notifications.TypeConnection)
	if err != nil || count != 3 {
		t.Fatalf("expected 3 unread, got %d, %v", count, err)
	}

	if err := svc.MarkRead(ctx, "bob", "n1"); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkRead(ctx, "carol", "n2"); !errors.Is(err, notifications.ErrNotFound) {
		t.Errorf("another recipient must not mark bob's notification, got %v", err)
	}
	count, _ = svc.UnreadCount(ctx, "bob", "")
	if count != 2 {
		t.Errorf("expected 2 unread, got %d", count)
	}

	n, err := svc.MarkAllRead(ctx, "bob")
	if err != nil || n != 2 {
		t.Errorf("expected 2 marked, got %d, %v", n, err)
	}

	if err := svc.Delete(ctx, "bob", "n3"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, "bob", "n3"); !errors.Is(err, notifications.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}

	list, _ := svc.List(ctx, "bob", 0)
	if len(list) != 2 {
		t.Errorf("expected 2 remaining, got %d", len(list))
	}

	if _, err := svc.UnreadCount(ctx, "bob", "bogus"); !errors.Is(err, notifications.ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}
