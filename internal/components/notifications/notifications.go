// Package notifications manages per-recipient notification logs: writing
// them as side effects of connection requests and letting recipients read,
// resolve and prune them.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/events"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/appctx"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// Notification types.
const (
	TypeConnection = "connection"
	TypeMessage    = "message"
	TypeProject    = "project"
	TypeEvent      = "event"
	TypeSystem     = "system"
)

// MetaFromUserID is the metadata key linking a connection notification to
// the identity that caused it.
const MetaFromUserID = "fromUserId"

var (
	ErrNotFound    = errors.New("notification not found")
	ErrInvalidType = errors.New("invalid notification type")
)

// ValidType reports whether typ is a known notification type.
func ValidType(typ string) bool {
	switch typ {
	case TypeConnection, TypeMessage, TypeProject, TypeEvent, TypeSystem:
		return true
	}
	return false
}

const (
	DefaultScanLimit = 50
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Service reads and writes notifications for their recipients.
type Service struct {
	store     store.NotificationStore
	events    events.Publisher
	scanLimit int
	log       *slog.Logger
	now       func() time.Time
}

// New creates a notification service. scanLimit bounds the linkage scan of
// ResolveConnectionRequest; zero uses DefaultScanLimit.
func New(s store.NotificationStore, pub events.Publisher, scanLimit int, log *slog.Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &Service{
		store:     s,
		events:    pub,
		scanLimit: scanLimit,
		log:       logutil.Component(log, "notifications"),
		now:       time.Now,
	}
}

func (s *Service) logger(ctx context.Context) *slog.Logger {
	if l, ok := appctx.LoggerFromContext(ctx); ok {
		return l.With("component", "notifications")
	}
	return s.log
}

// Create validates and stores n, assigning ID and CreatedAt.
func (s *Service) Create(ctx context.Context, n *store.Notification) error {
	if !ValidType(n.Type) {
		return fmt.Errorf("%w: %q", ErrInvalidType, n.Type)
	}
	if err := store.ValidateParticipantID(n.RecipientID); err != nil {
		return fmt.Errorf("invalid recipient %q: %w", n.RecipientID, err)
	}
	n.ID = uuid.NewString()
	n.CreatedAt = s.now().UTC()
	n.IsRead = false
	n.ActionDone = false
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	s.changed(ctx, n.RecipientID)
	return nil
}

// ConnectionRequested writes the connection notification for a new request.
func (s *Service) ConnectionRequested(ctx context.Context, requester store.Snapshot, recipientID string) error {
	name := requester.DisplayName
	if name == "" {
		name = requester.ID
	}
	return s.Create(ctx, &store.Notification{
		RecipientID: recipientID,
		Type:        TypeConnection,
		Title:       "New connection request",
		Description: name + " wants to connect with you",
		AvatarURL:   requester.AvatarURL,
		Metadata:    map[string]string{MetaFromUserID: requester.ID},
	})
}

// ResolveConnectionRequest marks the newest unread, unresolved connection
// notification from fromUserID as action-done. Only the recipient's most
// recent notifications are scanned; older ones are never matched.
func (s *Service) ResolveConnectionRequest(ctx context.Context, recipientID, fromUserID string) (*store.Notification, error) {
	recent, err := s.store.ListNotifications(ctx, recipientID, s.scanLimit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	for _, n := range recent {
		if n.Type != TypeConnection || n.IsRead || n.ActionDone {
			continue
		}
		if n.Metadata[MetaFromUserID] != fromUserID {
			continue
		}
		if err := s.store.MarkNotificationActionDone(ctx, recipientID, n.ID); err != nil {
			return nil, s.wrap(err, n.ID)
		}
		n.ActionDone = true
		s.changed(ctx, recipientID)
		return n, nil
	}
	return nil, fmt.Errorf("%w: no open connection request from %s", ErrNotFound, fromUserID)
}

// List returns the recipient's newest notifications.
func (s *Service) List(ctx context.Context, recipientID string, limit int) ([]*store.Notification, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.store.ListNotifications(ctx, recipientID, limit)
}

// UnreadCount counts unread notifications, optionally of a single type.
func (s *Service) UnreadCount(ctx context.Context, recipientID, typ string) (int64, error) {
	if typ != "" && !ValidType(typ) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	return s.store.CountUnreadNotifications(ctx, recipientID, typ)
}

func (s *Service) MarkRead(ctx context.Context, recipientID, id string) error {
	if err := s.store.MarkNotificationRead(ctx, recipientID, id); err != nil {
		return s.wrap(err, id)
	}
	s.changed(ctx, recipientID)
	return nil
}

// MarkAllRead marks every unread notification read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.changed(ctx, recipientID)
	}
	return n, nil
}

func (s *Service) Delete(ctx context.Context, recipientID, id string) error {
	if err := s.store.DeleteNotification(ctx, recipientID, id); err != nil {
		return s.wrap(err, id)
	}
	s.changed(ctx, recipientID)
	return nil
}

func (s *Service) wrap(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// changed tells the recipient's live view to refresh. Failures are logged.
func (s *Service) changed(ctx context.Context, recipientID string) {
	ev := events.Event{Identity: recipientID, Kind: events.KindNotification, At: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger(ctx).Warn("failed to publish notification event", "recipient_id", recipientID, "error", err)
	}
}
