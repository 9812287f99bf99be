package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification types recognized by the delivery path.
const (
	NotificationTypeChatMessage     = "chat_message"
	NotificationTypeBidPlaced       = "bid_placed"
	NotificationTypeJobAwarded      = "job_awarded"
	NotificationTypeJobCompleted    = "job_completed"
	NotificationTypePaymentReceived = "payment_received"
	NotificationTypePaymentReleased = "payment_released"
)

// Notification is the durable fallback for events that reach a user who
// may not be connected. Created by the delivery path, flags mutated by
// the recipient's later interactions, never deleted here.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	RecipientID uuid.UUID  `json:"recipient_id"`
	SenderID    *uuid.UUID `json:"sender_id,omitempty"`
	Type        string     `json:"type"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`

	// ReferenceID links back to the originating entity (message, job,
	// payment) when there is one.
	ReferenceID *uuid.UUID `json:"reference_id,omitempty"`

	Read        bool       `json:"read"`
	Delivered   bool       `json:"delivered"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
