// Package events provides the bridge between the gateway's components and
// the shared broker: a Publisher that stamps and emits typed Event
// envelopes, and a Subscriber that runs per-topic handler loops.
//
// The Publisher is constructed explicitly and injected into whatever needs
// to publish; its lifecycle belongs to the process startup/shutdown
// sequence, never to implicit first-use initialization.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sweeply/gateway/internal/pubsub"
)

// Publisher emits events onto the shared broker. Publishing is
// fire-and-forget: failures are reported to the caller for logging but
// must never roll back the persistence operation that triggered them.
type Publisher struct {
	ps     pubsub.PubSub
	origin string
	logger *slog.Logger
}

// NewPublisher creates a publisher with a fresh instance origin id.
func NewPublisher(ps pubsub.PubSub, logger *slog.Logger) *Publisher {
	return &Publisher{
		ps:     ps,
		origin: uuid.NewString(),
		logger: logger.With("component", "events.publisher"),
	}
}

// Origin returns the instance id stamped onto every published event.
// Hubs compare it against incoming events to suppress local echoes.
func (p *Publisher) Origin() string {
	return p.origin
}

// PublishOption customizes an outgoing event envelope.
type PublishOption func(*pubsub.Event)

// WithTargetUser addresses the event at a single user.
func WithTargetUser(userID uuid.UUID) PublishOption {
	return func(e *pubsub.Event) {
		id := userID
		e.TargetUserID = &id
	}
}

// WithTargetUsers addresses the event at a set of users.
func WithTargetUsers(userIDs []uuid.UUID) PublishOption {
	return func(e *pubsub.Event) {
		e.TargetUserIDs = userIDs
	}
}

// Publish serializes payload into an Event envelope and pushes it onto
// the topic. A broker failure is logged and returned; callers treat it
// as non-fatal.
func (p *Publisher) Publish(ctx context.Context, topic, eventType string, payload any, opts ...PublishOption) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	e := &pubsub.Event{
		ID:        uuid.New(),
		Topic:     topic,
		Type:      eventType,
		Payload:   data,
		Origin:    p.origin,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := p.ps.Publish(ctx, topic, e); err != nil {
		p.logger.Error("event publish failed",
			"topic", topic, "event_type", eventType, "error", err)
		return err
	}
	return nil
}
