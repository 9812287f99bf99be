package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddr)
	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "memory", cfg.PubSubType)
	assert.Equal(t, []string{"jobs", "chat", "payments"}, cfg.BusTopics)
	assert.Equal(t, 30, cfg.HandshakePerMin)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("APP_ENV", "production")
	t.Setenv("PUBSUB_TYPE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("BUS_TOPICS", "jobs, chat")
	t.Setenv("WS_HANDSHAKES_PER_MIN", "120")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ServerAddr)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "redis", cfg.PubSubType)
	assert.Equal(t, []string{"jobs", "chat"}, cfg.BusTopics)
	assert.Equal(t, 120, cfg.HandshakePerMin)
}

func TestLoad_RedisRequiresURL(t *testing.T) {
	t.Setenv("PUBSUB_TYPE", "redis")
	t.Setenv("REDIS_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidPubSubType(t *testing.T) {
	t.Setenv("PUBSUB_TYPE", "kafka")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidHandshakeRate(t *testing.T) {
	t.Setenv("WS_HANDSHAKES_PER_MIN", "lots")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_EmptyBusTopics(t *testing.T) {
	t.Setenv("BUS_TOPICS", " , ,")

	_, err := Load()
	assert.Error(t, err)
}
