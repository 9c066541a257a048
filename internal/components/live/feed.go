// Package live computes per-identity views of connection state and pushes a
// fresh view to subscribers whenever a change event arrives.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/connections"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/events"
	"github.com/MahdiBaghbani/campusmesh-go/internal/components/notifications"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub"
	"github.com/MahdiBaghbani/campusmesh-go/internal/store"
)

// View is what an identity's connection list and badge render from.
type View struct {
	Identity                      string              `json:"identity"`
	UnreadConnectionNotifications int64               `json:"unread_connection_notifications"`
	Connections                   []connections.Entry `json:"connections"`
	At                            time.Time           `json:"at"`
}

// UnreadCounter counts unread notifications of a type.
type UnreadCounter interface {
	UnreadCount(ctx context.Context, recipientID, typ string) (int64, error)
}

// ConnectionLister lists the records touching an identity.
type ConnectionLister interface {
	List(ctx context.Context, id string, statuses ...store.ConnectionStatus) ([]connections.Entry, error)
}

// Feed builds views and fans change events out to subscribers.
type Feed struct {
	unread      UnreadCounter
	connections ConnectionLister
	bus         pubsub.Bus
	log         *slog.Logger
}

func NewFeed(unread UnreadCounter, conns ConnectionLister, bus pubsub.Bus, log *slog.Logger) *Feed {
	return &Feed{
		unread:      unread,
		connections: conns,
		bus:         bus,
		log:         logutil.Component(log, "live"),
	}
}

// View computes the current view for id. The two reads run concurrently
// and are not a consistent snapshot of each other.
func (f *Feed) View(ctx context.Context, id string) (*View, error) {
	v := &View{Identity: id}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := f.unread.UnreadCount(gctx, id, notifications.TypeConnection)
		if err != nil {
			return fmt.Errorf("count unread: %w", err)
		}
		v.UnreadConnectionNotifications = n
		return nil
	})
	g.Go(func() error {
		entries, err := f.connections.List(gctx, id, store.StatusPending, store.StatusAccepted)
		if err != nil {
			return fmt.Errorf("list connections: %w", err)
		}
		v.Connections = entries
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	v.At = time.Now().UTC()
	return v, nil
}

// Subscribe returns a channel that receives the current view and then a
// recomputed view after each change to id. A slow reader only ever misses
// intermediate views; the newest one is kept. The channel is closed when
// ctx ends or the bus shuts down.
func (f *Feed) Subscribe(ctx context.Context, id string) (<-chan *View, error) {
	sub, err := f.bus.Subscribe(ctx, events.Topic(id))
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	out := make(chan *View, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		f.refresh(ctx, id, out)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok {
					return
				}
				drain(sub.C())
				f.refresh(ctx, id, out)
			}
		}
	}()
	return out, nil
}

func (f *Feed) refresh(ctx context.Context, id string, out chan *View) {
	v, err := f.View(ctx, id)
	if err != nil {
		if ctx.Err() == nil {
			f.log.Warn("failed to compute live view", "identity", id, "error", err)
		}
		return
	}
	// out has a single slot and this goroutine is its only writer.
	select {
	case <-out:
	default:
	}
	out <- v
}

// drain discards events already queued; one recompute covers them all.
func drain(c <-chan []byte) {
	for {
		select {
		case _, ok := <-c:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
