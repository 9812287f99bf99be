// Package notify turns marketplace events into durable notifications and
// pushes them toward their recipients over per-user broker channels.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sweeply/gateway/internal/domain"
	"github.com/sweeply/gateway/internal/events"
	"github.com/sweeply/gateway/internal/pubsub"
)

// Store is the slice of notification storage the notifier writes to.
type Store interface {
	Create(ctx context.Context, n *domain.Notification) error
}

// Notifier consumes the bus topics and, per recipient, creates a
// notification row and republishes it on the recipient's user channel.
// Connected recipients see it immediately; everyone else finds it on
// their next fetch.
type Notifier struct {
	store  Store
	pub    *events.Publisher
	logger *slog.Logger
}

func New(store Store, pub *events.Publisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		store:  store,
		pub:    pub,
		logger: logger.With("component", "notifier"),
	}
}

// Register hooks the notifier's handlers onto the configured bus topics.
// Call before the subscriber starts. Topics without a known handler are
// skipped with a warning.
func (n *Notifier) Register(sub *events.Subscriber, topics []string) {
	for _, topic := range topics {
		switch topic {
		case pubsub.TopicChat:
			sub.Handle(topic, n.handleChat)
		case pubsub.TopicJobs:
			sub.Handle(topic, n.handleJobs)
		case pubsub.TopicPayments:
			sub.Handle(topic, n.handlePayments)
		default:
			n.logger.Warn("no handler for configured topic", "topic", topic)
		}
	}
}

func (n *Notifier) handleChat(ctx context.Context, e *pubsub.Event) error {
	if e.Type != events.EventTypeChatMessage {
		n.logger.Debug("ignoring event", "topic", e.Topic, "event_type", e.Type)
		return nil
	}

	var p events.ChatMessageEvent
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return fmt.Errorf("decode chat event: %w", err)
	}

	n.fanOut(ctx, e.Targets(), func(recipientID uuid.UUID) *domain.Notification {
		return &domain.Notification{
			ID:          uuid.New(),
			RecipientID: recipientID,
			SenderID:    &p.SenderID,
			Type:        domain.NotificationTypeChatMessage,
			Title:       "New message from " + p.SenderName,
			Body:        p.Preview,
			ReferenceID: &p.MessageID,
			CreatedAt:   time.Now(),
		}
	})
	return nil
}

func (n *Notifier) handleJobs(ctx context.Context, e *pubsub.Event) error {
	var notifType, title string
	switch e.Type {
	case events.EventTypeBidPlaced:
		notifType = domain.NotificationTypeBidPlaced
		title = "New bid on your job"
	case events.EventTypeJobAwarded:
		notifType = domain.NotificationTypeJobAwarded
		title = "You were awarded a job"
	case events.EventTypeJobCompleted:
		notifType = domain.NotificationTypeJobCompleted
		title = "Job marked as completed"
	default:
		n.logger.Debug("ignoring event", "topic", e.Topic, "event_type", e.Type)
		return nil
	}

	var p events.JobEvent
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return fmt.Errorf("decode job event: %w", err)
	}

	n.fanOut(ctx, e.Targets(), func(recipientID uuid.UUID) *domain.Notification {
		return &domain.Notification{
			ID:          uuid.New(),
			RecipientID: recipientID,
			SenderID:    &p.ActorID,
			Type:        notifType,
			Title:       title,
			Body:        p.JobTitle,
			ReferenceID: &p.JobID,
			CreatedAt:   time.Now(),
		}
	})
	return nil
}

func (n *Notifier) handlePayments(ctx context.Context, e *pubsub.Event) error {
	var notifType, title string
	switch e.Type {
	case events.EventTypePaymentReceived:
		notifType = domain.NotificationTypePaymentReceived
		title = "Payment received"
	case events.EventTypePaymentReleased:
		notifType = domain.NotificationTypePaymentReleased
		title = "Payment released"
	default:
		n.logger.Debug("ignoring event", "topic", e.Topic, "event_type", e.Type)
		return nil
	}

	var p events.PaymentEvent
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return fmt.Errorf("decode payment event: %w", err)
	}

	n.fanOut(ctx, e.Targets(), func(recipientID uuid.UUID) *domain.Notification {
		return &domain.Notification{
			ID:          uuid.New(),
			RecipientID: recipientID,
			SenderID:    &p.ActorID,
			Type:        notifType,
			Title:       title,
			Body:        p.JobTitle,
			ReferenceID: &p.PaymentID,
			CreatedAt:   time.Now(),
		}
	})
	return nil
}

// fanOut builds, persists and pushes one notification per recipient.
// Per-recipient failures are logged and do not block the others.
func (n *Notifier) fanOut(ctx context.Context, recipients []uuid.UUID, build func(uuid.UUID) *domain.Notification) {
	for _, recipientID := range recipients {
		notif := build(recipientID)

		if err := n.store.Create(ctx, notif); err != nil {
			n.logger.Error("failed to persist notification",
				"error", err, "recipient_id", recipientID, "type", notif.Type)
			continue
		}

		// Push failure only costs the live hint; the row is durable and
		// will surface on the recipient's next notification fetch
		err := n.pub.Publish(ctx, pubsub.UserTopic(recipientID), events.EventTypeNotificationNew,
			notificationPush{Notification: *notif}, events.WithTargetUser(recipientID))
		if err != nil {
			n.logger.Warn("failed to push notification",
				"recipient_id", recipientID, "notification_id", notif.ID)
		}
	}
}

// notificationPush mirrors the wire payload shape the hub forwards
// verbatim to the recipient's connections.
type notificationPush struct {
	Notification domain.Notification `json:"notification"`
}
