package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeply/gateway/internal/domain"
)

func TestNewEnvelope_CreatesCorrectEnvelope(t *testing.T) {
	before := time.Now()
	env, err := NewEnvelope("test.event", map[string]string{"key": "value"})
	after := time.Now()

	require.NoError(t, err)
	require.NotNil(t, env)

	assert.Equal(t, "test.event", env.Type)
	assert.NotNil(t, env.Payload)
	assert.False(t, env.Timestamp.IsZero())
	assert.True(t, !env.Timestamp.Before(before) && !env.Timestamp.After(after))
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env, err := NewEnvelope(MsgTypePong, nil)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("null"), env.Payload)
}

func TestNewEnvelope_InvalidPayload(t *testing.T) {
	// Channels cannot be marshalled to JSON
	env, err := NewEnvelope("test.event", make(chan int))
	assert.Error(t, err)
	assert.Nil(t, env)
}

func TestEnvelope_JSONSerialization(t *testing.T) {
	env, err := NewEnvelope(MsgTypeNewMessage, NewMessagePayload{
		RoomID: uuid.New(),
		Message: domain.Message{
			ID:        uuid.New(),
			RoomID:    uuid.New(),
			SenderID:  uuid.New(),
			Kind:      domain.MessageKindText,
			Content:   "hello",
			CreatedAt: time.Now(),
		},
	})
	require.NoError(t, err)

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, MsgTypeNewMessage, decoded.Type)
	assert.NotEmpty(t, decoded.Payload)
}

func TestErrorPayload_OmitsRoomIDWhenNil(t *testing.T) {
	data, err := json.Marshal(ErrorPayload{Message: "something broke"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "room_id")

	roomID := uuid.New()
	data, err = json.Marshal(ErrorPayload{Message: "room trouble", RoomID: &roomID})
	require.NoError(t, err)
	assert.Contains(t, string(data), roomID.String())
}

func TestSendMessagePayload_OptionalReplyTo(t *testing.T) {
	var p SendMessagePayload
	require.NoError(t, json.Unmarshal([]byte(`{"room_id":"abc","content":"hi"}`), &p))
	assert.Empty(t, p.ReplyTo)

	require.NoError(t, json.Unmarshal([]byte(`{"room_id":"abc","content":"hi","reply_to":"def"}`), &p))
	assert.Equal(t, "def", p.ReplyTo)
}

func TestMarkReadPayload_OptionalMessageIDs(t *testing.T) {
	var p MarkReadPayload
	require.NoError(t, json.Unmarshal([]byte(`{"room_id":"abc"}`), &p))
	assert.Empty(t, p.MessageIDs)
}
