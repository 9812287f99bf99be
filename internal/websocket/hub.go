package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sweeply/gateway/internal/domain"
	"github.com/sweeply/gateway/internal/events"
	"github.com/sweeply/gateway/internal/pubsub"
)

const maxMessageLength = 10000

// RoomStore is the storage collaborator for rooms and messages. The
// participant set it holds is authoritative for authorization and is
// consulted on every subscribe and send, never cached.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID uuid.UUID) (*domain.Room, error)
	IsParticipant(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	GetRoomParticipants(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
	CreateMessage(ctx context.Context, msg *domain.Message) error
	MarkRead(ctx context.Context, roomID, userID uuid.UUID, messageIDs []uuid.UUID) ([]uuid.UUID, error)
	GetUserRooms(ctx context.Context, userID uuid.UUID) ([]domain.Room, error)
}

// NotificationStore is the slice of notification storage the hub needs:
// flipping the delivered flag once a pushed notification reaches a live
// connection.
type NotificationStore interface {
	MarkDelivered(ctx context.Context, notificationID uuid.UUID) error
}

// Hub owns all active connections and routes their inbound traffic. It
// also bridges the in-process registry to the broker: while a room has
// local subscribers the hub consumes that room's broker channel, and
// while a user has local connections it consumes their user channel.
type Hub struct {
	registry *Registry

	// Registered clients by user ID (one user can have multiple connections)
	clients map[uuid.UUID]map[*Client]struct{}

	// Broker subscriptions held on behalf of local connections
	roomSubs map[domain.RoomKey]pubsub.Subscription
	userSubs map[uuid.UUID]pubsub.Subscription

	// Channel for registering clients
	register chan *Client

	// Channel for unregistering clients
	unregister chan *Client

	mu sync.RWMutex

	store  RoomStore
	notifs NotificationStore
	ps     pubsub.PubSub
	pub    *events.Publisher
	logger *slog.Logger
}

// NewHub creates a new Hub
func NewHub(store RoomStore, notifs NotificationStore, ps pubsub.PubSub, pub *events.Publisher, logger *slog.Logger) *Hub {
	return &Hub{
		registry:   NewRegistry(),
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		roomSubs:   make(map[domain.RoomKey]pubsub.Subscription),
		userSubs:   make(map[uuid.UUID]pubsub.Subscription),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		store:      store,
		notifs:     notifs,
		ps:         ps,
		pub:        pub,
		logger:     logger,
	}
}

// Registry exposes the room registry, mainly for tests.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub. Idempotent: a second call
// for the same client finds nothing left to release.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	first := h.clients[c.UserID()] == nil
	if first {
		h.clients[c.UserID()] = make(map[*Client]struct{})
	}
	h.clients[c.UserID()][c] = struct{}{}
	h.mu.Unlock()

	if first {
		h.subscribeUserChannel(c.UserID())
	}

	h.logger.Debug("client registered", "user_id", c.UserID(), "conn_id", c.ID())
}

func (h *Hub) handleUnregister(c *Client) {
	h.mu.Lock()
	userID := c.UserID()
	lastConn := false
	if conns, ok := h.clients[userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, userID)
			lastConn = true
		}
	}

	var userSub pubsub.Subscription
	if lastConn {
		userSub = h.userSubs[userID]
		delete(h.userSubs, userID)
	}
	h.mu.Unlock()

	if userSub != nil {
		userSub.Unsubscribe()
	}

	// Release every room subscription; drop broker channels for rooms
	// with no local subscribers left
	emptied := h.registry.Drop(c)
	h.dropRoomChannels(emptied)

	c.closeSend()
	h.logger.Debug("client disconnected", "user_id", userID, "conn_id", c.ID())
}

// HandleMessage routes one inbound frame. Every failure becomes an error
// reply to the originating connection; no inbound message ever closes
// the socket.
func (h *Hub) HandleMessage(c *Client, env *Envelope) {
	switch env.Type {
	case MsgTypeSubscribeRoom:
		h.handleSubscribeRoom(c, env.Payload)
	case MsgTypeUnsubscribeRoom:
		h.handleUnsubscribeRoom(c, env.Payload)
	case MsgTypeSendMessage:
		h.handleSendMessage(c, env.Payload)
	case MsgTypeMarkRead:
		h.handleMarkRead(c, env.Payload)
	case MsgTypeTyping:
		h.handleTyping(c, env.Payload, true)
	case MsgTypeStopTyping:
		h.handleTyping(c, env.Payload, false)
	case MsgTypeGetRoomList:
		h.handleGetRoomList(c)
	case MsgTypePing:
		h.handlePing(c)
	default:
		c.sendError("unknown type: "+env.Type, nil)
	}
}

func (h *Hub) handleSubscribeRoom(c *Client, payload json.RawMessage) {
	var p SubscribeRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError("invalid format", nil)
		return
	}

	roomID, errMsg := parseRoomID(p.RoomID)
	if errMsg != "" {
		c.sendError(errMsg, nil)
		return
	}

	ctx := context.Background()
	room, ok := h.authorizeRoom(ctx, c, roomID)
	if !ok {
		return
	}

	key := room.Key()
	c.JoinRoom(key)
	_, firstLocal := h.registry.Subscribe(key, c)
	if firstLocal {
		h.subscribeRoomChannel(key)
	}

	env, _ := NewEnvelope(MsgTypeSubscribed, SubscribedPayload{RoomID: roomID})
	_ = c.Send(env)

	h.logger.Debug("client subscribed to room", "user_id", c.UserID(), "room", key)
}

func (h *Hub) handleUnsubscribeRoom(c *Client, payload json.RawMessage) {
	var p UnsubscribeRoomPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError("invalid format", nil)
		return
	}

	roomID, errMsg := parseRoomID(p.RoomID)
	if errMsg != "" {
		c.sendError(errMsg, nil)
		return
	}

	// Unconditional ack: unsubscribing from a room the connection never
	// subscribed to is a no-op
	if key, ok := c.RoomKeyByID(roomID); ok {
		c.LeaveRoom(key)
		if _, last := h.registry.Unsubscribe(key, c); last {
			h.dropRoomChannels([]domain.RoomKey{key})
		}
	}

	env, _ := NewEnvelope(MsgTypeUnsubscribed, UnsubscribedPayload{RoomID: roomID})
	_ = c.Send(env)
}

func (h *Hub) handleSendMessage(c *Client, payload json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError("invalid format", nil)
		return
	}

	roomID, errMsg := parseRoomID(p.RoomID)
	if errMsg != "" {
		c.sendError(errMsg, nil)
		return
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		c.sendError(domain.ErrEmptyMessage.Error(), &roomID)
		return
	}
	if len(content) > maxMessageLength {
		c.sendError("message exceeds maximum length", &roomID)
		return
	}

	var replyTo *uuid.UUID
	if p.ReplyTo != "" {
		id, err := uuid.Parse(p.ReplyTo)
		if err != nil {
			c.sendError("invalid format", &roomID)
			return
		}
		replyTo = &id
	}

	ctx := context.Background()
	room, ok := h.authorizeRoom(ctx, c, roomID)
	if !ok {
		return
	}
	key := room.Key()

	msg := &domain.Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		SenderID:   c.UserID(),
		SenderName: c.Username(),
		Kind:       domain.MessageKindText,
		Content:    content,
		ReplyTo:    replyTo,
		CreatedAt:  time.Now(),
	}

	// Persisting also refreshes the room's last-message fields and
	// increments unread counters for the other participants
	if err := h.store.CreateMessage(ctx, msg); err != nil {
		h.logger.Error("failed to save message",
			"error", err, "room_id", roomID, "user_id", c.UserID(), "msg_type", MsgTypeSendMessage)
		c.sendError("failed to save message", &roomID)
		return
	}

	// Local fan-out first; the broker is not in the path of local delivery
	h.broadcastRoom(ctx, key, nil, MsgTypeNewMessage, NewMessagePayload{
		RoomID:  roomID,
		Message: *msg,
	})
	h.broadcastRoom(ctx, key, nil, MsgTypeRoomUpdated, RoomUpdatedPayload{
		RoomID: roomID,
		Updates: RoomUpdates{
			LastMessagePreview: preview(content),
			LastMessageAt:      msg.CreatedAt,
		},
	})

	h.publishChatEvent(ctx, room, msg)
}

func (h *Hub) handleMarkRead(c *Client, payload json.RawMessage) {
	var p MarkReadPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.sendError("invalid format", nil)
		return
	}

	roomID, errMsg := parseRoomID(p.RoomID)
	if errMsg != "" {
		c.sendError(errMsg, nil)
		return
	}

	messageIDs := make([]uuid.UUID, 0, len(p.MessageIDs))
	for _, raw := range p.MessageIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.sendError("invalid format", &roomID)
			return
		}
		messageIDs = append(messageIDs, id)
	}

	ctx := context.Background()
	room, ok := h.authorizeRoom(ctx, c, roomID)
	if !ok {
		return
	}

	// An empty id list means everything unread in the room. Also resets
	// the caller's unread counter; calling again finds nothing to mark.
	affected, err := h.store.MarkRead(ctx, roomID, c.UserID(), messageIDs)
	if err != nil {
		h.logger.Error("failed to mark messages read",
			"error", err, "room_id", roomID, "user_id", c.UserID(), "msg_type", MsgTypeMarkRead)
		c.sendError("failed to update read state", &roomID)
		return
	}
	if len(affected) == 0 {
		return
	}

	h.broadcastRoom(ctx, room.Key(), c, MsgTypeMessageRead, MessageReadPayload{
		RoomID:     roomID,
		UserID:     c.UserID(),
		MessageIDs: affected,
	})
}

func (h *Hub) handleTyping(c *Client, payload json.RawMessage, isTyping bool) {
	var p TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return
	}

	roomID, err := uuid.Parse(p.RoomID)
	if err != nil {
		return
	}

	// Typing indicators are ephemeral and best-effort: no persistence,
	// no rate limiting, and only for rooms the connection is already
	// subscribed to
	key, ok := c.RoomKeyByID(roomID)
	if !ok {
		return
	}

	h.broadcastRoom(context.Background(), key, c, MsgTypeTypingBroadcast, TypingBroadcastPayload{
		RoomID:   roomID,
		UserID:   c.UserID(),
		Username: c.Username(),
		IsTyping: isTyping,
	})
}

func (h *Hub) handleGetRoomList(c *Client) {
	rooms, err := h.store.GetUserRooms(context.Background(), c.UserID())
	if err != nil {
		h.logger.Error("failed to load room list", "error", err, "user_id", c.UserID())
		c.sendError("failed to load room list", nil)
		return
	}

	env, _ := NewEnvelope(MsgTypeRoomList, RoomListPayload{Rooms: rooms})
	_ = c.Send(env)
}

func (h *Hub) handlePing(c *Client) {
	env, _ := NewEnvelope(MsgTypePong, nil)
	_ = c.Send(env)
}

// authorizeRoom resolves the room and checks the durable participant set.
// Both failures reply to the sender; neither touches the registry.
func (h *Hub) authorizeRoom(ctx context.Context, c *Client, roomID uuid.UUID) (*domain.Room, bool) {
	room, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			c.sendError("room not found", &roomID)
		} else {
			h.logger.Error("room lookup failed", "error", err, "room_id", roomID, "user_id", c.UserID())
			c.sendError("failed to load room", &roomID)
		}
		return nil, false
	}

	isParticipant, err := h.store.IsParticipant(ctx, roomID, c.UserID())
	if err != nil {
		h.logger.Error("participant check failed", "error", err, "room_id", roomID, "user_id", c.UserID())
		c.sendError("failed to load room", &roomID)
		return nil, false
	}
	if !isParticipant {
		c.sendError("Access denied to room "+roomID.String(), &roomID)
		return nil, false
	}

	return room, true
}

// broadcastRoom delivers to local subscribers and republishes on the
// room's broker channel for other instances. A broker failure only costs
// cross-process propagation; local delivery has already happened.
func (h *Hub) broadcastRoom(ctx context.Context, key domain.RoomKey, except *Client, msgType string, payload interface{}) {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		h.logger.Error("failed to create broadcast message", "error", err, "msg_type", msgType)
		return
	}

	if except != nil {
		h.registry.BroadcastExcept(key, env, except)
	} else {
		h.registry.Broadcast(key, env)
	}

	if err := h.pub.Publish(ctx, key.Topic(), msgType, json.RawMessage(env.Payload)); err != nil {
		h.logger.Warn("cross-process fan-out lost", "room", key, "msg_type", msgType)
	}
}

// publishChatEvent hands the persisted message to the event bus so the
// notification path can reach participants who are not subscribed here.
func (h *Hub) publishChatEvent(ctx context.Context, room *domain.Room, msg *domain.Message) {
	participants, err := h.store.GetRoomParticipants(ctx, room.ID)
	if err != nil {
		h.logger.Error("participant fetch failed", "error", err, "room_id", room.ID)
		return
	}

	targets := participants[:0:0]
	for _, id := range participants {
		if id != msg.SenderID {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		return
	}

	_ = h.pub.Publish(ctx, pubsub.TopicChat, events.EventTypeChatMessage, events.ChatMessageEvent{
		RoomID:     room.ID,
		MessageID:  msg.ID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Preview:    preview(msg.Content),
	}, events.WithTargetUsers(targets))
}

// ============================================================================
// Broker bridge
// ============================================================================

func (h *Hub) subscribeRoomChannel(key domain.RoomKey) {
	h.mu.Lock()
	if _, exists := h.roomSubs[key]; exists {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	sub, err := h.ps.Subscribe(context.Background(), key.Topic(), h.roomEventHandler(key))
	if err != nil {
		// Local fan-out still works; only cross-process events are lost
		h.logger.Error("room channel subscribe failed", "error", err, "room", key)
		return
	}

	h.mu.Lock()
	h.roomSubs[key] = sub
	h.mu.Unlock()
}

func (h *Hub) dropRoomChannels(keys []domain.RoomKey) {
	if len(keys) == 0 {
		return
	}
	h.mu.Lock()
	subs := make([]pubsub.Subscription, 0, len(keys))
	for _, key := range keys {
		if sub, ok := h.roomSubs[key]; ok {
			subs = append(subs, sub)
			delete(h.roomSubs, key)
		}
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// roomEventHandler relays room events published by other instances to
// local subscribers. Events stamped with our own origin were already
// broadcast locally and are skipped.
func (h *Hub) roomEventHandler(key domain.RoomKey) pubsub.Handler {
	return func(ctx context.Context, e *pubsub.Event) {
		if e.Origin == h.pub.Origin() {
			return
		}
		h.registry.Broadcast(key, &Envelope{
			Type:      e.Type,
			Payload:   e.Payload,
			Timestamp: e.Timestamp,
		})
	}
}

func (h *Hub) subscribeUserChannel(userID uuid.UUID) {
	sub, err := h.ps.Subscribe(context.Background(), pubsub.UserTopic(userID), h.userEventHandler(userID))
	if err != nil {
		h.logger.Error("user channel subscribe failed", "error", err, "user_id", userID)
		return
	}

	h.mu.Lock()
	h.userSubs[userID] = sub
	h.mu.Unlock()
}

// userEventHandler delivers user-channel events to every local connection
// of the user. Unlike room events these are never pre-delivered locally,
// so origin is irrelevant.
func (h *Hub) userEventHandler(userID uuid.UUID) pubsub.Handler {
	return func(ctx context.Context, e *pubsub.Event) {
		msgType := e.Type
		if msgType == events.EventTypeNotificationNew {
			msgType = MsgTypeNotification
		}

		delivered := h.SendToUser(userID, &Envelope{
			Type:      msgType,
			Payload:   e.Payload,
			Timestamp: e.Timestamp,
		})

		if delivered && e.Type == events.EventTypeNotificationNew {
			h.markNotificationDelivered(ctx, e.Payload)
		}
	}
}

func (h *Hub) markNotificationDelivered(ctx context.Context, payload json.RawMessage) {
	var p struct {
		Notification struct {
			ID uuid.UUID `json:"id"`
		} `json:"notification"`
	}
	if err := json.Unmarshal(payload, &p); err != nil || p.Notification.ID == uuid.Nil {
		return
	}
	if err := h.notifs.MarkDelivered(ctx, p.Notification.ID); err != nil {
		h.logger.Error("failed to mark notification delivered",
			"error", err, "notification_id", p.Notification.ID)
	}
}

// SendToUser pushes an envelope to every local connection of the user.
// Reports whether at least one connection was found.
func (h *Hub) SendToUser(userID uuid.UUID, env *Envelope) bool {
	h.mu.RLock()
	conns, ok := h.clients[userID]
	if !ok {
		h.mu.RUnlock()
		return false
	}
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(env)
	if err != nil {
		return false
	}
	for _, c := range clients {
		c.enqueue(data)
	}
	return len(clients) > 0
}

// IsUserOnline checks if a user has any active connections
func (h *Hub) IsUserOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[userID]
	return ok && len(conns) > 0
}

// OnlineUserIDs returns IDs of all users with at least one connection
func (h *Hub) OnlineUserIDs() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

func parseRoomID(raw string) (uuid.UUID, string) {
	if raw == "" {
		return uuid.Nil, "missing required field: room_id"
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, "invalid format"
	}
	return id, ""
}

func preview(content string) string {
	const max = 120
	if len(content) <= max {
		return content
	}
	return content[:max]
}
