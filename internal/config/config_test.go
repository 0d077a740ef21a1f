package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("RELAY_BACKEND", "local")
	t.Setenv("JWT_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, RelayLocal, cfg.RelayBackend)
	assert.Equal(t, 5*time.Minute, cfg.IdentityCacheTTL)
	assert.Equal(t, 90*time.Second, cfg.PresenceTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("RELAY_BACKEND", "NATS")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PRESENCE_TTL", "30s")
	t.Setenv("RECONCILE_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, RelayNATS, cfg.RelayBackend)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 30*time.Second, cfg.PresenceTTL)
	assert.Equal(t, 10*time.Minute, cfg.ReconcileInterval)
}

func TestLoadRejectsUnknownRelay(t *testing.T) {
	t.Setenv("ENV", "test")
	t.Setenv("RELAY_BACKEND", "kafka")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("RELAY_BACKEND", "local")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}
