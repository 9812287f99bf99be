package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sweeply/gateway/internal/pubsub"
)

// HandlerFunc processes one event from a bus topic. A returned error is
// logged; it never stops the dispatch loop.
type HandlerFunc func(ctx context.Context, e *pubsub.Event) error

// Subscriber runs the consuming side of the bridge: one broker
// subscription per registered topic, each dispatching to its handler.
// Handlers run on the broker's dispatch goroutines and must not block
// indefinitely; they catch their own domain errors and the subscriber
// guards against panics.
type Subscriber struct {
	ps     pubsub.PubSub
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	subs     []pubsub.Subscription
	started  bool
}

// NewSubscriber creates a subscriber over the given broker.
func NewSubscriber(ps pubsub.PubSub, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		ps:       ps,
		logger:   logger.With("component", "events.subscriber"),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers the handler for a topic. Must be called before Start;
// registering a topic twice replaces the previous handler.
func (s *Subscriber) Handle(topic string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[topic] = h
}

// Start subscribes to every registered topic. Partial failure
// unsubscribes what was established and returns the error.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("subscriber already started")
	}

	for topic, h := range s.handlers {
		sub, err := s.ps.Subscribe(ctx, topic, s.dispatch(topic, h))
		if err != nil {
			for _, established := range s.subs {
				established.Unsubscribe()
			}
			s.subs = nil
			return fmt.Errorf("subscribe to %q: %w", topic, err)
		}
		s.subs = append(s.subs, sub)
		s.logger.Info("consuming topic", "topic", topic)
	}

	s.started = true
	return nil
}

// dispatch wraps a handler so its errors and panics are contained.
func (s *Subscriber) dispatch(topic string, h HandlerFunc) pubsub.Handler {
	return func(ctx context.Context, e *pubsub.Event) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panic", "topic", topic, "event_type", e.Type, "panic", r)
			}
		}()

		if err := h(ctx, e); err != nil {
			s.logger.Error("handler error",
				"topic", topic, "event_type", e.Type, "event_id", e.ID, "error", err)
		}
	}
}

// Stop unsubscribes from all topics. Safe to call more than once.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.started = false
}
