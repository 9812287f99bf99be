package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeply/gateway/internal/domain"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(nil, nil, uuid.New(), "tester", slog.Default())
}

func testRoomKey() domain.RoomKey {
	return domain.RoomKey{Kind: domain.RoomKindJob, ID: uuid.New()}
}

// drain reads one queued frame off the client's send channel.
func drain(t *testing.T, c *Client) *Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		return &env
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func TestRegistry_SubscribeFirstAndIdempotence(t *testing.T) {
	r := NewRegistry()
	key := testRoomKey()
	c := testClient(t)

	added, first := r.Subscribe(key, c)
	assert.True(t, added)
	assert.True(t, first)

	// Same client again: no-op, not first
	added, first = r.Subscribe(key, c)
	assert.False(t, added)
	assert.False(t, first)
	assert.Equal(t, 1, r.Count(key))

	// Second client: added but not first
	added, first = r.Subscribe(key, testClient(t))
	assert.True(t, added)
	assert.False(t, first)
	assert.Equal(t, 2, r.Count(key))
}

func TestRegistry_UnsubscribeLast(t *testing.T) {
	r := NewRegistry()
	key := testRoomKey()
	c1 := testClient(t)
	c2 := testClient(t)
	r.Subscribe(key, c1)
	r.Subscribe(key, c2)

	removed, last := r.Unsubscribe(key, c1)
	assert.True(t, removed)
	assert.False(t, last)

	removed, last = r.Unsubscribe(key, c2)
	assert.True(t, removed)
	assert.True(t, last)
	assert.Equal(t, 0, r.Count(key))

	// Absent client: no-op
	removed, last = r.Unsubscribe(key, c1)
	assert.False(t, removed)
	assert.False(t, last)
}

func TestRegistry_DropReturnsEmptiedRooms(t *testing.T) {
	r := NewRegistry()
	keyA := testRoomKey()
	keyB := testRoomKey()
	c := testClient(t)
	other := testClient(t)

	r.Subscribe(keyA, c)
	r.Subscribe(keyB, c)
	r.Subscribe(keyB, other)

	emptied := r.Drop(c)
	// Only keyA lost its last subscriber
	require.Len(t, emptied, 1)
	assert.Equal(t, keyA, emptied[0])
	assert.Equal(t, 0, r.Count(keyA))
	assert.Equal(t, 1, r.Count(keyB))

	// Dropping again finds nothing
	assert.Empty(t, r.Drop(c))
}

func TestRegistry_Broadcast(t *testing.T) {
	r := NewRegistry()
	key := testRoomKey()
	c1 := testClient(t)
	c2 := testClient(t)
	r.Subscribe(key, c1)
	r.Subscribe(key, c2)

	env, err := NewEnvelope(MsgTypeTypingBroadcast, TypingBroadcastPayload{
		RoomID:   key.ID,
		UserID:   c1.UserID(),
		Username: c1.Username(),
		IsTyping: true,
	})
	require.NoError(t, err)

	r.Broadcast(key, env)
	assert.Equal(t, MsgTypeTypingBroadcast, drain(t, c1).Type)
	assert.Equal(t, MsgTypeTypingBroadcast, drain(t, c2).Type)
}

func TestRegistry_BroadcastExcept(t *testing.T) {
	r := NewRegistry()
	key := testRoomKey()
	sender := testClient(t)
	other := testClient(t)
	r.Subscribe(key, sender)
	r.Subscribe(key, other)

	env, err := NewEnvelope(MsgTypeMessageRead, MessageReadPayload{
		RoomID: key.ID,
		UserID: sender.UserID(),
	})
	require.NoError(t, err)

	r.BroadcastExcept(key, env, sender)

	assert.Equal(t, MsgTypeMessageRead, drain(t, other).Type)
	select {
	case <-sender.send:
		t.Error("sender received its own broadcast")
	default:
		// ok
	}
}

func TestRegistry_BroadcastToEmptyRoom(t *testing.T) {
	r := NewRegistry()
	env, err := NewEnvelope(MsgTypePong, nil)
	require.NoError(t, err)
	// Should not panic
	r.Broadcast(testRoomKey(), env)
}

func TestClient_RoomKeyByID(t *testing.T) {
	c := testClient(t)
	key := testRoomKey()
	c.JoinRoom(key)

	got, ok := c.RoomKeyByID(key.ID)
	require.True(t, ok)
	assert.Equal(t, key, got)

	_, ok = c.RoomKeyByID(uuid.New())
	assert.False(t, ok)

	c.LeaveRoom(key)
	_, ok = c.RoomKeyByID(key.ID)
	assert.False(t, ok)
}

func TestClient_EnqueueAfterCloseIsSilent(t *testing.T) {
	c := testClient(t)
	c.closeSend()

	// Must not panic or block
	env, err := NewEnvelope(MsgTypePong, nil)
	require.NoError(t, err)
	assert.NoError(t, c.Send(env))

	// Idempotent close
	c.closeSend()
}
