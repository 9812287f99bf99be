// Package server assembles the HTTP surface: health checks, the
// read-side API, and the WebSocket endpoint.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sweeply/gateway/internal/api"
	"github.com/sweeply/gateway/internal/auth"
	"github.com/sweeply/gateway/internal/config"
	"github.com/sweeply/gateway/internal/database"
	"github.com/sweeply/gateway/internal/middleware"
	"github.com/sweeply/gateway/internal/websocket"
)

// Dependencies holds all service dependencies for the server
type Dependencies struct {
	DB           *database.DB
	Tokens       *auth.TokenService
	RoomHandler  *api.RoomHandler
	NotifHandler *api.NotificationHandler
	WSHandler    *websocket.Handler
	WSLimiter    *middleware.RateLimiter
	Logger       *slog.Logger
}

// New creates an HTTP server with all routes configured.
func New(cfg *config.Config, deps *Dependencies) *http.Server {
	mux := http.NewServeMux()

	registerRoutes(mux, deps)

	handler := chainMiddleware(mux,
		requestIDMiddleware,
		corsMiddleware(cfg),
		loggingMiddleware(deps.Logger),
		recoverMiddleware(deps.Logger),
	)

	return &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies) {
	// Health check - essential for docker, k8s, load balancers
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Ready check - verifies DB connectivity
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.DB.Health(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","error":"database unavailable"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	authMiddleware := auth.Middleware(deps.Tokens)

	// Read-side endpoints: clients fetch history and notification state
	// here; all writes flow through the WebSocket
	mux.Handle("GET /rooms", authMiddleware(http.HandlerFunc(deps.RoomHandler.ListRooms)))
	mux.Handle("GET /rooms/{id}/messages", authMiddleware(http.HandlerFunc(deps.RoomHandler.GetMessages)))
	mux.Handle("GET /notifications", authMiddleware(http.HandlerFunc(deps.NotifHandler.List)))
	mux.Handle("GET /notifications/unread_count", authMiddleware(http.HandlerFunc(deps.NotifHandler.UnreadCount)))
	mux.Handle("POST /notifications/{id}/read", authMiddleware(http.HandlerFunc(deps.NotifHandler.MarkRead)))

	// WebSocket endpoint; the handshake is rate limited per client IP,
	// authentication happens inside the handler
	mux.Handle("GET /ws", deps.WSLimiter.Middleware(deps.WSHandler))
}
