package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, TypingBackendPostgres, cfg.TypingBackend)
	assert.Equal(t, 5*time.Second, cfg.TypingTTL)
	assert.Equal(t, 128, cfg.WSSendBuffer)
	assert.Equal(t, "chat.events", cfg.AMQPExchange)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9000")
	t.Setenv("TYPING_TTL", "2s")
	t.Setenv("TYPING_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.TypingTTL)
	assert.Equal(t, TypingBackendRedis, cfg.TypingBackend)
	assert.True(t, cfg.DebugRoutes)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}

func TestValidateRedisBackendNeedsURL(t *testing.T) {
	cfg := &Config{JWTSecret: "s", TypingBackend: TypingBackendRedis, TypingTTL: time.Second, WSSendBuffer: 1}
	require.Error(t, cfg.Validate())

	cfg.RedisURL = "redis://localhost:6379"
	require.NoError(t, cfg.Validate())
}

func TestValidateUnknownBackend(t *testing.T) {
	cfg := &Config{JWTSecret: "s", TypingBackend: "memcached", TypingTTL: time.Second, WSSendBuffer: 1}
	require.Error(t, cfg.Validate())
}
