package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

func newTestRedisPubSub(t *testing.T) *RedisPubSub {
	t.Helper()
	mr := miniredis.RunT(t)
	ps, err := NewRedisPubSub("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisPubSub failed: %v", err)
	}
	t.Cleanup(func() { ps.Close() })
	return ps
}

func TestRedisPubSub_PublishSubscribe(t *testing.T) {
	ps := newTestRedisPubSub(t)

	topic := "redis-test"
	received := make(chan *Event, 1)

	sub, err := ps.Subscribe(context.Background(), topic, func(ctx context.Context, e *Event) {
		received <- e
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	e := &Event{
		ID:        uuid.New(),
		Topic:     topic,
		Type:      "test.event",
		Origin:    "instance-a",
		Timestamp: time.Now().UTC(),
	}
	if err := ps.Publish(context.Background(), topic, e); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.ID != e.ID {
			t.Errorf("got id %s, want %s", got.ID, e.ID)
		}
		if got.Origin != e.Origin {
			t.Errorf("got origin %q, want %q", got.Origin, e.Origin)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestRedisPubSub_TopicIsolation(t *testing.T) {
	ps := newTestRedisPubSub(t)

	received := make(chan string, 2)

	subA, err := ps.Subscribe(context.Background(), "topic-a", func(ctx context.Context, e *Event) {
		received <- "a"
	})
	if err != nil {
		t.Fatalf("Subscribe a failed: %v", err)
	}
	defer subA.Unsubscribe()

	subB, err := ps.Subscribe(context.Background(), "topic-b", func(ctx context.Context, e *Event) {
		received <- "b"
	})
	if err != nil {
		t.Fatalf("Subscribe b failed: %v", err)
	}
	defer subB.Unsubscribe()

	if err := ps.Publish(context.Background(), "topic-b", &Event{Type: "test"}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got != "b" {
			t.Errorf("event delivered to wrong topic: %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case got := <-received:
		t.Errorf("unexpected extra delivery: %q", got)
	case <-time.After(100 * time.Millisecond):
		// ok
	}
}

func TestRedisPubSub_Unsubscribe(t *testing.T) {
	ps := newTestRedisPubSub(t)

	topic := "redis-unsub"
	received := make(chan struct{}, 10)

	sub, err := ps.Subscribe(context.Background(), topic, func(ctx context.Context, e *Event) {
		received <- struct{}{}
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ps.Publish(context.Background(), topic, &Event{Type: "test"})
	select {
	case <-received:
		// ok
	case <-time.After(2 * time.Second):
		t.Fatal("first event not received")
	}

	sub.Unsubscribe()
	time.Sleep(50 * time.Millisecond)

	ps.Publish(context.Background(), topic, &Event{Type: "test"})
	select {
	case <-received:
		t.Error("received event after unsubscribe")
	case <-time.After(200 * time.Millisecond):
		// ok
	}
}
