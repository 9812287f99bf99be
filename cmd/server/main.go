package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sweeply/gateway/internal/api"
	"github.com/sweeply/gateway/internal/auth"
	"github.com/sweeply/gateway/internal/config"
	"github.com/sweeply/gateway/internal/database"
	"github.com/sweeply/gateway/internal/events"
	"github.com/sweeply/gateway/internal/middleware"
	"github.com/sweeply/gateway/internal/notify"
	"github.com/sweeply/gateway/internal/pubsub"
	"github.com/sweeply/gateway/internal/server"
	"github.com/sweeply/gateway/internal/websocket"
)

func main() {
	// .env is a dev convenience; production reads the host environment
	_ = godotenv.Load()

	// Structured logging from the start
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Create context for initialization
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to database")

	if err := database.EnsureSchema(ctx, db, cfg.MigrationsDir); err != nil {
		slog.Error("failed to ensure database schema", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	roomRepo := database.NewRoomRepository(db)
	notifRepo := database.NewNotificationRepository(db)

	// Initialize token service (use a default key for dev if not set)
	jwtKey := cfg.JWTSigningKey
	if jwtKey == "" {
		if cfg.IsDevelopment() {
			jwtKey = "dev-signing-key-do-not-use-in-production!!" // 44 chars
			slog.Warn("using default JWT signing key - DO NOT USE IN PRODUCTION")
		} else {
			slog.Error("JWT_SIGNING_KEY is required in production")
			os.Exit(1)
		}
	}

	tokenService, err := auth.NewTokenService(jwtKey)
	if err != nil {
		slog.Error("failed to create token service", "error", err)
		os.Exit(1)
	}

	// Initialize the broker: in-memory for a single instance, Redis when
	// multiple gateway processes share the fan-out
	var ps pubsub.PubSub
	if cfg.PubSubType == "redis" {
		ps, err = pubsub.NewRedisPubSub(cfg.RedisURL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.Info("using redis pubsub")
	} else {
		ps = pubsub.NewMemoryPubSub()
		slog.Info("using in-memory pubsub")
	}
	defer ps.Close()

	publisher := events.NewPublisher(ps, logger)

	// Initialize WebSocket hub and handler
	wsHub := websocket.NewHub(roomRepo, notifRepo, ps, publisher, logger)
	go wsHub.Run(context.Background())
	wsHandler := websocket.NewHandler(wsHub, tokenService, cfg.AllowedOrigin, logger)

	// Notification delivery path: bus events -> durable rows -> user channels
	notifier := notify.New(notifRepo, publisher, logger)
	subscriber := events.NewSubscriber(ps, logger)
	notifier.Register(subscriber, cfg.BusTopics)
	if err := subscriber.Start(context.Background()); err != nil {
		slog.Error("failed to start event subscriber", "error", err)
		os.Exit(1)
	}

	// Handshake rate limiter with periodic cleanup of idle entries
	wsLimiter := middleware.NewRateLimiter(cfg.HandshakePerMin)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			wsLimiter.Cleanup()
		}
	}()

	// Create and start server
	deps := &server.Dependencies{
		DB:           db,
		Tokens:       tokenService,
		RoomHandler:  api.NewRoomHandler(roomRepo, logger),
		NotifHandler: api.NewNotificationHandler(notifRepo, logger),
		WSHandler:    wsHandler,
		WSLimiter:    wsLimiter,
		Logger:       logger,
	}

	srv := server.New(cfg, deps)

	// Graceful shutdown setup
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	// Give active connections 10 seconds to finish
	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	subscriber.Stop()

	slog.Info("server stopped")
}
