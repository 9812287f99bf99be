package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeply/gateway/internal/auth"
)

// TokenValidator checks a bearer token and returns its claims.
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// Handler handles WebSocket upgrade requests
type Handler struct {
	hub      *Hub
	tokens   TokenValidator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a WebSocket handler. An empty allowedOrigin accepts
// every origin.
func NewHandler(hub *Hub, tokens TokenValidator, allowedOrigin string, logger *slog.Logger) *Handler {
	return &Handler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
		logger: logger,
	}
}

// ServeHTTP upgrades HTTP to WebSocket and handles the connection.
// Authentication happens after the upgrade so the failure can be reported
// with a close frame instead of an opaque handshake rejection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	claims, err := h.validate(token)
	if err != nil {
		h.logger.Debug("websocket auth rejected", "error", err, "remote_addr", r.RemoteAddr)
		msg := websocket.FormatCloseMessage(CloseUnauthenticated, "authentication required")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
		conn.Close()
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.Username, h.logger)
	h.hub.Register(client)

	env, _ := NewEnvelope(MsgTypeConnectionEstablished, ConnectionEstablishedPayload{
		UserID:   claims.UserID,
		Username: claims.Username,
	})
	_ = client.Send(env)

	// Use a dedicated context for the WebSocket connection lifecycle.
	// The request context gets cancelled when ServeHTTP returns after upgrade.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.WritePump(ctx)
	client.ReadPump(ctx) // Block here until client disconnects
}

func (h *Handler) validate(token string) (*auth.Claims, error) {
	if token == "" {
		return nil, auth.ErrMissingToken
	}
	return h.tokens.ValidateAccessToken(token)
}

// bearerToken extracts the access token from the "token" query parameter
// or the Authorization header. Browser WebSocket clients cannot set
// headers, hence the query parameter.
func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}
