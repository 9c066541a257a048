// Package redis provides a pub/sub bus on Redis channels so that change
// notifications reach live streams served by any instance.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	svccfg "github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/service/cfg"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub"
)

func init() {
	pubsub.RegisterDriver("redis", func(config map[string]any, log *slog.Logger) (pubsub.Bus, error) {
		var c Config
		if err := svccfg.Decode(config, &c); err != nil {
			return nil, fmt.Errorf("invalid redis pubsub config: %w", err)
		}
		return New(c, log)
	})
}

// Config mirrors [pubsub.redis].
type Config struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
	Buffer        int    `mapstructure:"buffer"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = "campusmesh:"
	}
	if c.Buffer <= 0 {
		c.Buffer = 16
	}
}

// Bus implements pubsub.Bus with Redis PUBLISH/SUBSCRIBE.
type Bus struct {
	client *goredis.Client
	prefix string
	buffer int
	log    *slog.Logger

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// New connects to Redis and verifies the connection.
func New(c Config, log *slog.Logger) (*Bus, error) {
	c.ApplyDefaults()

	client := goredis.NewClient(&goredis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Bus{
		client: client,
		prefix: c.ChannelPrefix,
		buffer: c.Buffer,
		log:    logutil.Component(log, "pubsub.redis"),
		subs:   make(map[*subscription]struct{}),
	}, nil
}

// Publish sends payload on the prefixed channel.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return pubsub.ErrClosed
	}
	return b.client.Publish(ctx, b.prefix+topic, payload).Err()
}

// Subscribe opens a Redis subscription and starts a forwarder goroutine.
func (b *Bus) Subscribe(ctx context.Context, topic string) (pubsub.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, pubsub.ErrClosed
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, b.prefix+topic)
	// Wait for the confirmation so messages published after Subscribe
	// returns are not missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	s := &subscription{
		bus:  b,
		ps:   ps,
		ch:   make(chan []byte, b.buffer),
		stop: make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		ps.Close()
		return nil, pubsub.ErrClosed
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.forward(ctx, topic)
	return s, nil
}

// Close ends all subscriptions and closes the client.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return b.client.Close()
}

type subscription struct {
	bus  *Bus
	ps   *goredis.PubSub
	ch   chan []byte
	stop chan struct{}
	once sync.Once
}

func (s *subscription) forward(ctx context.Context, topic string) {
	defer close(s.ch)
	in := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.stop:
			return
		case m, ok := <-in:
			if !ok || m == nil {
				return
			}
			select {
			case s.ch <- []byte(m.Payload):
			default:
				s.bus.log.Debug("dropping message for slow subscriber", "topic", topic)
			}
		}
	}
}

func (s *subscription) C() <-chan []byte {
	return s.ch
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.ps.Close()
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
	})
	return err
}

var _ pubsub.Bus = (*Bus)(nil)
