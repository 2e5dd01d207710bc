package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"APP_ADDR", "STORE_BACKEND", "DEFAULT_ROOM", "DB_QUERY_TIMEOUT", "SYNC_SUBSCRIBE_RETRIES", "WS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.GetAppAddr())
	assert.Equal(t, BackendFile, cfg.GetStoreBackend())
	assert.Equal(t, "general", cfg.GetDefaultRoom())
	assert.Equal(t, 5*time.Second, cfg.GetDBQueryTimeout())
	assert.Equal(t, 5, cfg.GetSyncSubscribeRetries())
	assert.Zero(t, cfg.GetPresenceOfflineDebounce())
	assert.Empty(t, cfg.GetAllowedOrigins())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("PRESENCE_STALE_THRESHOLD", "3s")
	t.Setenv("SYNC_SUBSCRIBE_RETRIES", "9")
	t.Setenv("DEFAULT_ROOM", "lobby")
	t.Setenv("WS_ALLOWED_ORIGINS", " app.example.com, ,*.example.org ")

	cfg := FromEnv()

	assert.Equal(t, BackendPostgres, cfg.GetStoreBackend())
	assert.Equal(t, 3*time.Second, cfg.GetPresenceStaleThreshold())
	assert.Equal(t, 9, cfg.GetSyncSubscribeRetries())
	assert.Equal(t, "lobby", cfg.GetDefaultRoom())
	assert.Equal(t, []string{"app.example.com", "*.example.org"}, cfg.GetAllowedOrigins())
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SYNC_HEARTBEAT_INTERVAL", "soon")
	t.Setenv("SYNC_SUBSCRIBE_RETRIES", "many")

	cfg := FromEnv()

	assert.Equal(t, 30*time.Second, cfg.GetSyncHeartbeatInterval())
	assert.Equal(t, 5, cfg.GetSyncSubscribeRetries())
}
