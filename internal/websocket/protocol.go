package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sweeply/gateway/internal/domain"
)

// Message types for client -> server
const (
	MsgTypeSubscribeRoom   = "subscribe_room"
	MsgTypeUnsubscribeRoom = "unsubscribe_room"
	MsgTypeSendMessage     = "send_message"
	MsgTypeMarkRead        = "mark_read"
	MsgTypeTyping          = "typing"
	MsgTypeStopTyping      = "stop_typing"
	MsgTypeGetRoomList     = "get_room_list"
	MsgTypePing            = "ping"
)

// Message types for server -> client
const (
	MsgTypeConnectionEstablished = "connection_established"
	MsgTypeSubscribed            = "subscribed"
	MsgTypeUnsubscribed          = "unsubscribed"
	MsgTypeNewMessage            = "new_message"
	MsgTypeMessageRead           = "message_read"
	MsgTypeTypingBroadcast       = "typing"
	MsgTypeRoomList              = "room_list"
	MsgTypeRoomUpdated           = "room_updated"
	MsgTypeError                 = "error"
	MsgTypePong                  = "pong"
	MsgTypeNotification          = "notification"
)

// CloseUnauthenticated is sent when a connection arrives without a valid
// identity; no other condition closes the socket from the server side.
const CloseUnauthenticated = 4001

// Envelope is the base WebSocket message frame, discriminated by Type.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// NewEnvelope creates an envelope with the current timestamp
func NewEnvelope(msgType string, payload interface{}) (*Envelope, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now(),
	}, nil
}

// ============================================================================
// Client -> Server Payloads
// ============================================================================

// SubscribeRoomPayload subscribes the connection to a room's broadcasts
type SubscribeRoomPayload struct {
	RoomID string `json:"room_id"`
}

// UnsubscribeRoomPayload removes the connection from a room
type UnsubscribeRoomPayload struct {
	RoomID string `json:"room_id"`
}

// SendMessagePayload carries a new chat message
type SendMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"`
}

// MarkReadPayload marks messages read; an empty MessageIDs list means
// every unread message in the room
type MarkReadPayload struct {
	RoomID     string   `json:"room_id"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// TypingPayload for typing/stop_typing indicators
type TypingPayload struct {
	RoomID string `json:"room_id"`
}

// ============================================================================
// Server -> Client Payloads
// ============================================================================

// ConnectionEstablishedPayload confirms the authenticated session
type ConnectionEstablishedPayload struct {
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
}

// SubscribedPayload acks a room subscription
type SubscribedPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

// UnsubscribedPayload acks a room unsubscription
type UnsubscribedPayload struct {
	RoomID uuid.UUID `json:"room_id"`
}

// NewMessagePayload broadcasts a persisted message to room subscribers
type NewMessagePayload struct {
	RoomID  uuid.UUID      `json:"room_id"`
	Message domain.Message `json:"message"`
}

// MessageReadPayload is the read receipt broadcast to other subscribers
type MessageReadPayload struct {
	RoomID     uuid.UUID   `json:"room_id"`
	UserID     uuid.UUID   `json:"user_id"`
	MessageIDs []uuid.UUID `json:"message_ids"`
}

// TypingBroadcastPayload is the ephemeral typing indicator
type TypingBroadcastPayload struct {
	RoomID   uuid.UUID `json:"room_id"`
	UserID   uuid.UUID `json:"user_id"`
	Username string    `json:"username"`
	IsTyping bool      `json:"is_typing"`
}

// RoomListPayload replies to get_room_list, sender only
type RoomListPayload struct {
	Rooms []domain.Room `json:"rooms"`
}

// RoomUpdates carries the denormalized fields refreshed by a new message
type RoomUpdates struct {
	LastMessagePreview string    `json:"last_message_preview"`
	LastMessageAt      time.Time `json:"last_message_at"`
}

// RoomUpdatedPayload notifies subscribers of room-level changes
type RoomUpdatedPayload struct {
	RoomID  uuid.UUID   `json:"room_id"`
	Updates RoomUpdates `json:"updates"`
}

// ErrorPayload for error replies; RoomID is set when the error pertains
// to a specific room
type ErrorPayload struct {
	Message string     `json:"message"`
	RoomID  *uuid.UUID `json:"room_id,omitempty"`
}

// NotificationPayload pushes a durable notification to a connected user
type NotificationPayload struct {
	Notification domain.Notification `json:"notification"`
}
