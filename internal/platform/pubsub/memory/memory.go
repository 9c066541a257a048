// Package memory provides an in-process pub/sub bus for single-instance
// deployments and tests.
package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub"
)

func init() {
	pubsub.RegisterDriver("memory", func(config map[string]any, log *slog.Logger) (pubsub.Bus, error) {
		buffer := defaultBuffer
		if v, ok := config["buffer"]; ok {
			switch n := v.(type) {
			case int:
				buffer = n
			case int64:
				buffer = int(n)
			}
		}
		return New(buffer, log), nil
	})
}

const defaultBuffer = 16

// Bus is an in-process pubsub.Bus.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
	closed bool
	log    *slog.Logger
}

// New creates a bus whose subscriptions buffer up to buffer payloads.
func New(buffer int, log *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
		log:    logutil.Component(log, "pubsub.memory"),
	}
}

// Publish delivers payload to every current subscriber of topic without
// blocking. Subscribers with a full buffer miss the message.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return pubsub.ErrClosed
	}

	for s := range b.subs[topic] {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		select {
		case s.ch <- msg:
		default:
			b.log.Debug("dropping message for slow subscriber", "topic", topic)
		}
	}
	return nil
}

// Subscribe registers a subscription on topic.
func (b *Bus) Subscribe(ctx context.Context, topic string) (pubsub.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, pubsub.ErrClosed
	}

	s := &subscription{bus: b, topic: topic, ch: make(chan []byte, b.buffer), stop: make(chan struct{})}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*subscription]struct{})
	}
	b.subs[topic][s] = struct{}{}

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				s.Close()
			case <-s.stop:
			}
		}()
	}
	return s, nil
}

// Subscribers reports the number of live subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[s.topic]; ok {
		if _, ok := set[s]; ok {
			delete(set, s)
			close(s.ch)
		}
		if len(set) == 0 {
			delete(b.subs, s.topic)
		}
	}
}

// Close ends every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, set := range b.subs {
		for s := range set {
			close(s.ch)
			s.halt()
		}
		delete(b.subs, topic)
	}
	return nil
}

type subscription struct {
	bus      *Bus
	topic    string
	ch       chan []byte
	stop     chan struct{}
	once     sync.Once
	stopOnce sync.Once
}

// halt releases the context watcher started by Subscribe.
func (s *subscription) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *subscription) C() <-chan []byte {
	return s.ch
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.halt()
		s.bus.remove(s)
	})
	return nil
}

var _ pubsub.Bus = (*Bus)(nil)
