// Package events defines the per-identity change events that drive live
// queries, and their transport over a pubsub.Bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub"
)

// Kind says which part of an identity's view changed.
type Kind string

const (
	KindConnection   Kind = "connection"
	KindNotification Kind = "notification"
)

// Event tells an identity that its live view is out of date.
// Events carry no state; subscribers re-read the store.
type Event struct {
	Identity    string    `json:"identity"`
	Kind        Kind      `json:"kind"`
	Counterpart string    `json:"counterpart,omitempty"`
	At          time.Time `json:"at"`
}

// Publisher sends change events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Topic is the bus topic carrying events for identity id.
func Topic(id string) string {
	return "identity:" + id
}

// Decode parses an event payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

// BusPublisher publishes events as JSON on the identity's topic.
type BusPublisher struct {
	bus pubsub.Bus
}

func NewBusPublisher(bus pubsub.Bus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, Topic(ev.Identity), payload)
}

// Discard drops every event. Used when no bus is configured.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
