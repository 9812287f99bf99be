package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeply/gateway/internal/auth"
	"github.com/sweeply/gateway/internal/domain"
	"github.com/sweeply/gateway/internal/events"
	"github.com/sweeply/gateway/internal/pubsub"
)

func newTestServer(t *testing.T) (*httptest.Server, *auth.TokenService, *fakeRoomStore) {
	t.Helper()

	tokens, err := auth.NewTokenService("handler-test-signing-key-32-chars!!")
	require.NoError(t, err)

	store := newFakeRoomStore()
	ps := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { ps.Close() })

	logger := slog.Default()
	hub := NewHub(store, &fakeNotifStore{}, ps, events.NewPublisher(ps, logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, tokens, "", logger))
	t.Cleanup(srv.Close)
	return srv, tokens, store
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err, "upgrade itself should succeed")
	defer conn.Close()

	// The server closes with the unauthenticated code instead of
	// rejecting the handshake
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close frame, got %v", err)
	assert.Equal(t, CloseUnauthenticated, closeErr.Code)
}

func TestHandler_RejectsInvalidToken(t *testing.T) {
	srv, _, _ := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token=garbage", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	assert.Equal(t, CloseUnauthenticated, closeErr.Code)
}

func TestHandler_EstablishesAuthenticatedSession(t *testing.T) {
	srv, tokens, _ := newTestServer(t)

	userID := uuid.New()
	token, _, err := tokens.GenerateAccessToken(userID, "alice")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, MsgTypeConnectionEstablished, env.Type)

	var p ConnectionEstablishedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, "alice", p.Username)
}

func TestHandler_EndToEndSubscribeAndSend(t *testing.T) {
	srv, tokens, store := newTestServer(t)

	userID := uuid.New()
	room := store.addRoom(domain.RoomKindJob, userID)
	token, _, err := tokens.GenerateAccessToken(userID, "alice")
	require.NoError(t, err)

	headers := map[string][]string{"Authorization": {"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), headers)
	require.NoError(t, err)
	defer conn.Close()

	// The write pump may coalesce queued envelopes into one frame,
	// newline separated
	var pending []string
	read := func() *Envelope {
		if len(pending) == 0 {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, data, err := conn.ReadMessage()
			require.NoError(t, err)
			pending = strings.Split(string(data), "\n")
		}
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(pending[0]), &env))
		pending = pending[1:]
		return &env
	}

	require.Equal(t, MsgTypeConnectionEstablished, read().Type)

	env, err := NewEnvelope(MsgTypeSubscribeRoom, SubscribeRoomPayload{RoomID: room.ID.String()})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
	require.Equal(t, MsgTypeSubscribed, read().Type)

	env, err = NewEnvelope(MsgTypeSendMessage, SendMessagePayload{RoomID: room.ID.String(), Content: "hello"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))

	got := read()
	require.Equal(t, MsgTypeNewMessage, got.Type)
	var p NewMessagePayload
	require.NoError(t, json.Unmarshal(got.Payload, &p))
	assert.Equal(t, "hello", p.Message.Content)
}
