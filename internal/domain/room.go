package domain

import (
	"time"

	"github.com/google/uuid"
)

// RoomKind classifies a conversation scope. Authorization and presence
// semantics differ per kind, the wire protocol does not.
type RoomKind string

const (
	RoomKindGeneral RoomKind = "general"
	RoomKindJob     RoomKind = "job"     // job-scoped, one room per bidder
	RoomKindDirect  RoomKind = "direct"  // direct message between two users
	RoomKindSupport RoomKind = "support" // customer support
)

// Valid reports whether k is a known room kind.
func (k RoomKind) Valid() bool {
	switch k {
	case RoomKindGeneral, RoomKindJob, RoomKindDirect, RoomKindSupport:
		return true
	}
	return false
}

// RoomKey addresses a room in the subscriber registry and on the broker.
// Keeping kind and id together prevents collisions between differently
// purposed string-keyed namespaces (room channels vs user channels).
type RoomKey struct {
	Kind RoomKind
	ID   uuid.UUID
}

// Topic returns the broker channel name for the room.
func (k RoomKey) Topic() string {
	return "room:" + string(k.Kind) + ":" + k.ID.String()
}

func (k RoomKey) String() string {
	return k.Topic()
}

// Room is a durable conversation scope. The participant set in storage is
// authoritative for authorization; the in-memory subscriber set is not.
type Room struct {
	ID    uuid.UUID `json:"id"`
	Kind  RoomKind  `json:"kind"`
	Title string    `json:"title,omitempty"`

	// JobID is set for job rooms only.
	JobID *uuid.UUID `json:"job_id,omitempty"`

	// Denormalized last-message fields, maintained by the storage layer
	// on every message insert.
	LastMessagePreview string     `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`

	// UnreadCount is per requesting user, populated on fetch.
	UnreadCount int `json:"unread_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the registry/broker key for the room.
func (r *Room) Key() RoomKey {
	return RoomKey{Kind: r.Kind, ID: r.ID}
}

// Participant is a durable room membership record.
type Participant struct {
	RoomID      uuid.UUID `json:"room_id"`
	UserID      uuid.UUID `json:"user_id"`
	UnreadCount int       `json:"unread_count"`
	JoinedAt    time.Time `json:"joined_at"`
}
