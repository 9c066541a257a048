package memory_test

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub"
	"github.com/MahdiBaghbani/campusmesh-go/internal/platform/pubsub/memory"
)

func receive(t *testing.T, sub pubsub.Subscription) []byte {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestPublishSubscribe(t *testing.T) {
	bus := memory.New(4, nil)
	defer bus.Close()
	ctx := context.Background()

	alice, err := bus.Subscribe(ctx, "identity:alice")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	bob, _ := bus.Subscribe(ctx, "identity:bob")

	if err := bus.Publish(ctx, "identity:alice", []byte("connection")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if got := string(receive(t, alice)); got != "connection" {
		t.Errorf("expected payload connection, got %q", got)
	}

	select {
	case msg := <-bob.C():
		t.Errorf("bob received message for another topic: %q", msg)
	default:
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := memory.New(1, nil)
	defer bus.Close()
	ctx := context.Background()

	sub, _ := bus.Subscribe(ctx, "t")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(ctx, "t", []byte{byte(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	if got := receive(t, sub); got[0] != 0 {
		t.Errorf("expected first message to be kept, got %v", got)
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	bus := memory.New(1, nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := bus.Subscribe(ctx, "t")
	cancel()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}

	if n := bus.Subscribers("t"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
	// Closing again is a no-op.
	if err := sub.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestCloseReleasesContextWatcher(t *testing.T) {
	bus := memory.New(1, nil)
	defer bus.Close()

	// The context outlives every subscription.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	before := runtime.NumGoroutine()
	subs := make([]pubsub.Subscription, 50)
	for i := range subs {
		subs[i], _ = bus.Subscribe(ctx, "t")
	}
	for _, sub := range subs {
		sub.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("expected watchers to exit after Close, %d goroutines remain (started with %d)", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClosedBus(t *testing.T) {
	bus := memory.New(1, nil)
	sub, _ := bus.Subscribe(context.Background(), "t")
	bus.Close()

	if _, ok := <-sub.C(); ok {
		t.Error("expected subscription closed with the bus")
	}
	if err := bus.Publish(context.Background(), "t", nil); err != pubsub.ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := bus.Subscribe(context.Background(), "t"); err != pubsub.ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	sub.Close()
}

func TestDriverFactory(t *testing.T) {
	bus, err := pubsub.New("memory", map[string]any{"buffer": 2}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer bus.Close()

	if _, err := pubsub.New("nats", nil, nil); err == nil {
		t.Error("expected error for unknown driver")
	}
}
