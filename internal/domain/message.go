package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind classifies a chat message.
type MessageKind string

const (
	MessageKindText      MessageKind = "text"
	MessageKindSystem    MessageKind = "system"
	MessageKindJobUpdate MessageKind = "job_update"
)

// Message is a chat message. Immutable once persisted, except for the
// read flag and the edited timestamp.
type Message struct {
	ID         uuid.UUID   `json:"id"`
	RoomID     uuid.UUID   `json:"room_id"`
	SenderID   uuid.UUID   `json:"sender_id"`
	SenderName string      `json:"sender_name,omitempty"`
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content"`
	ReplyTo    *uuid.UUID  `json:"reply_to,omitempty"`
	Read       bool        `json:"read"`
	EditedAt   *time.Time  `json:"edited_at,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
