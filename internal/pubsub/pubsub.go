// Package pubsub provides an interface-driven pub/sub system for cross-process
// event fan-out. The in-memory implementation serves single-instance
// deployments and tests; the Redis implementation spans instances.
package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the transient envelope propagated over the broker. Events are
// fire-and-forget: the broker drops them for topics with no subscriber,
// and no replay exists. Durability, where needed, lives in the
// notification records created downstream.
type Event struct {
	ID      uuid.UUID       `json:"id"`
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`

	// Optional direct targets, used by the notification delivery path.
	TargetUserID  *uuid.UUID  `json:"target_user_id,omitempty"`
	TargetUserIDs []uuid.UUID `json:"target_user_ids,omitempty"`

	// Origin identifies the publishing process instance so a hub can
	// skip events it already broadcast locally.
	Origin string `json:"origin,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Targets returns all target user ids, merging the single and plural forms.
func (e *Event) Targets() []uuid.UUID {
	if e.TargetUserID == nil {
		return e.TargetUserIDs
	}
	targets := make([]uuid.UUID, 0, len(e.TargetUserIDs)+1)
	targets = append(targets, *e.TargetUserID)
	return append(targets, e.TargetUserIDs...)
}

// Handler is a callback for processing events
type Handler func(ctx context.Context, e *Event)

// Subscription represents an active subscription that can be closed
type Subscription interface {
	// Unsubscribe removes the subscription
	Unsubscribe() error
}

// PubSub defines the interface for publish/subscribe operations.
// All implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends an event to all subscribers of the given topic.
	// Returns error if the event could not be published.
	Publish(ctx context.Context, topic string, e *Event) error

	// Subscribe registers a handler for events on the given topic.
	// The handler is called for each event published to the topic.
	// Returns a Subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close shuts down the pub/sub system and releases resources.
	Close() error
}

// Bus topics carrying marketplace events consumed by the notification
// delivery path. Room and user channels are addressed separately, see
// UserTopic and domain.RoomKey.
const (
	TopicJobs     = "jobs"
	TopicChat     = "chat"
	TopicPayments = "payments"
)

// UserTopic returns the per-user broadcast channel. The "user:" prefix
// keeps the namespace disjoint from room channels.
func UserTopic(userID uuid.UUID) string {
	return "user:" + userID.String()
}
