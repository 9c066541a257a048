// Package pubsub provides topic-based fan-out of small change notifications.
// Delivery is best effort: subscribers that fall behind lose messages, so
// payloads should describe "something changed" rather than carry state.
package pubsub

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MahdiBaghbani/campusmesh-go/internal/frameworks/registry"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("pubsub: bus closed")

// Bus publishes payloads to topics and hands out subscriptions.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers interest in topic. The subscription is active when
	// Subscribe returns and ends when ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	Close() error
}

// Subscription delivers payloads published to one topic.
type Subscription interface {
	// C is closed when the subscription ends.
	C() <-chan []byte
	Close() error
}

// DriverFactory builds a bus from its [pubsub] config table.
type DriverFactory func(config map[string]any, log *slog.Logger) (Bus, error)

var drivers = registry.New[DriverFactory]("pubsub driver")

// RegisterDriver registers a driver from init().
func RegisterDriver(name string, factory DriverFactory) {
	drivers.MustRegister(name, factory)
}

// New creates an instance using the named driver.
func New(driver string, config map[string]any, log *slog.Logger) (Bus, error) {
	factory, err := drivers.Resolve(driver)
	if err != nil {
		return nil, err
	}
	return factory(config, log)
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	return drivers.Names()
}
