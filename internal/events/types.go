package events

import "github.com/google/uuid"

// Event types carried on the bus topics. Room-channel events reuse the
// wire message type names so receiving hubs can pass them through.
const (
	EventTypeChatMessage     = "chat.message"
	EventTypeBidPlaced       = "job.bid_placed"
	EventTypeJobAwarded      = "job.awarded"
	EventTypeJobCompleted    = "job.completed"
	EventTypePaymentReceived = "payment.received"
	EventTypePaymentReleased = "payment.released"
	EventTypeNotificationNew = "notification.new"
)

// ChatMessageEvent is published on the chat topic after a message is
// persisted, targeted at the room participants other than the sender.
type ChatMessageEvent struct {
	RoomID     uuid.UUID `json:"room_id"`
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Preview    string    `json:"preview"`
}

// JobEvent is published on the jobs topic by the marketplace backend.
type JobEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	JobTitle  string    `json:"job_title"`
	ActorID   uuid.UUID `json:"actor_id"`
	ActorName string    `json:"actor_name"`
}

// PaymentEvent is published on the payments topic by the marketplace
// backend after a payment state change.
type PaymentEvent struct {
	PaymentID uuid.UUID  `json:"payment_id"`
	JobID     *uuid.UUID `json:"job_id,omitempty"`
	JobTitle  string     `json:"job_title,omitempty"`
	Amount    int64      `json:"amount"` // minor units
	Currency  string     `json:"currency"`
	ActorID   uuid.UUID  `json:"actor_id"`
	ActorName string     `json:"actor_name"`
}
