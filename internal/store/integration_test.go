package store

import (
	"context"
	"testing"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/testutils"
	"github.com/stretchr/testify/require"
)

// These run against real servers when the matching variables are set in the
// environment or in .env.test.

func TestPostgresStore_Contract(t *testing.T) {
	cfg := testutils.ConfigForTests(t, "POSTGRES_URL")
	s, err := NewPostgresStore(context.Background(), cfg.GetPostgresURL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testStoreContract(t, s, testutils.UniqueRoom("it"))
}

func TestRedisStore_Contract(t *testing.T) {
	cfg := testutils.ConfigForTests(t, "REDIS_URL")
	s, err := NewRedisStore(context.Background(), cfg.GetRedisURL())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testStoreContract(t, s, testutils.UniqueRoom("it"))
}

func TestSurrealStore_Contract(t *testing.T) {
	cfg := testutils.ConfigForTests(t, "SURREAL_URL", "SURREAL_NS", "SURREAL_DB").(*config.Config)
	cfg.StoreBackend = config.BackendSurreal
	s, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testStoreContract(t, s, testutils.UniqueRoom("it"))
}
