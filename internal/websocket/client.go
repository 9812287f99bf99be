package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sweeply/gateway/internal/domain"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 65536
)

// Client is one authenticated transport session. A user may hold several
// concurrently (multi-device). Identity is fixed at construction; the
// subscription set and the send channel are the only mutable state.
type Client struct {
	id       uuid.UUID
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   uuid.UUID
	username string

	mu     sync.RWMutex
	rooms  map[domain.RoomKey]bool
	closed bool

	logger    *slog.Logger
	createdAt time.Time
}

// NewClient creates a client for an already-authenticated connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, username string, logger *slog.Logger) *Client {
	return &Client{
		id:        uuid.New(),
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 256),
		userID:    userID,
		username:  username,
		rooms:     make(map[domain.RoomKey]bool),
		logger:    logger,
		createdAt: time.Now(),
	}
}

// ID returns the opaque connection handle.
func (c *Client) ID() uuid.UUID { return c.id }

// UserID returns the owning user's id.
func (c *Client) UserID() uuid.UUID { return c.userID }

// Username returns the owning user's name.
func (c *Client) Username() string { return c.username }

// JoinRoom records the subscription on the connection's own state.
func (c *Client) JoinRoom(key domain.RoomKey) {
	c.mu.Lock()
	c.rooms[key] = true
	c.mu.Unlock()
}

// LeaveRoom removes the subscription from the connection's own state.
func (c *Client) LeaveRoom(key domain.RoomKey) {
	c.mu.Lock()
	delete(c.rooms, key)
	c.mu.Unlock()
}

// IsInRoom checks if the client is subscribed to a room.
func (c *Client) IsInRoom(key domain.RoomKey) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[key]
}

// RoomKeyByID looks up the subscribed room key for a bare room id, so
// operations like unsubscribe and typing need no storage round-trip.
func (c *Client) RoomKeyByID(roomID uuid.UUID) (domain.RoomKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for key := range c.rooms {
		if key.ID == roomID {
			return key, true
		}
	}
	return domain.RoomKey{}, false
}

// Rooms returns all room keys the client is subscribed to.
func (c *Client) Rooms() []domain.RoomKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]domain.RoomKey, 0, len(c.rooms))
	for key := range c.rooms {
		keys = append(keys, key)
	}
	return keys
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.logger.Warn("websocket read error", "error", err, "user_id", c.userID)
				}
				return
			}

			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				c.sendError("invalid format", nil)
				continue
			}

			c.hub.HandleMessage(c, &env)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(data)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send queues an envelope for delivery to the client.
func (c *Client) Send(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.enqueue(data)
	return nil
}

// enqueue places raw bytes on the send channel. A connection that is
// already torn down, or whose buffer is full, drops the frame silently:
// fan-out must never abort or surface an error because one recipient
// went away.
func (c *Client) enqueue(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.logger.Debug("send on closed connection dropped", "user_id", c.userID, "conn_id", c.id)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("client send buffer full, dropping message", "user_id", c.userID, "conn_id", c.id)
	}
}

// closeSend marks the connection closed and closes the send channel.
// Idempotent; called only by the hub during teardown.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// sendError sends an error reply to the client
func (c *Client) sendError(message string, roomID *uuid.UUID) {
	env, _ := NewEnvelope(MsgTypeError, ErrorPayload{
		Message: message,
		RoomID:  roomID,
	})
	_ = c.Send(env)
}
