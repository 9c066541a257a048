package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/components/events"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub/memory"
)

func TestBusPublisher_RoutesByIdentity(t *testing.T) {
	bus := memory.New(4, nil)
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bob, err := bus.Subscribe(ctx, events.Topic("bob"))
	if err != nil {
		t.Fatal(err)
	}
	carol, err := bus.Subscribe(ctx, events.Topic("carol"))
	if err != nil {
		t.Fatal(err)
	}

	pub := events.NewBusPublisher(bus)
	if err := pub.Publish(ctx, events.Event{Identity: "bob", Kind: events.KindConnection, Counterpart: "alice"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case payload := <-bob.C():
		ev, err := events.Decode(payload)
		if err != nil {
			t.Fatal(err)
		}
		if ev.Identity != "bob" || ev.Kind != events.KindConnection || ev.Counterpart != "alice" {
			t.Errorf("unexpected event: %+v", ev)
		}
		if ev.At.IsZero() {
			t.Error("expected timestamp to be filled in")
		}
	case <-time.After(time.Second):
		t.Fatal("bob did not receive the event")
	}

	select {
	case payload := <-carol.C():
		t.Errorf("carol received someone else's event: %s", payload)
	default:
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := events.Decode([]byte("{")); err == nil {
		t.Error("expected error for malformed payload")
	}
}
