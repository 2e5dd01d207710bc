package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/database"
	"github.com/spf13/afero"
)

// Open builds the backend named by STORE_BACKEND. The file backend uses fs,
// which may be nil to mean the OS filesystem.
func Open(ctx context.Context, cfg config.Provider, fs afero.Fs) (MessageStore, error) {
	backend := cfg.GetStoreBackend()
	slog.InfoContext(ctx, "Opening message store", "event", "store_open", "backend", backend)

	switch backend {
	case config.BackendFile, "":
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return NewFileStore(fs, cfg.GetFileStoreDir())

	case config.BackendSurreal:
		conn := database.NewConnection(cfg)
		if err := conn.Connect(ctx); err != nil {
			return nil, unavailable("connect surrealdb", err)
		}
		conn.StartMonitoring()
		return NewSurrealStore(conn), nil

	case config.BackendPostgres:
		if cfg.GetPostgresURL() == "" {
			return nil, fmt.Errorf("store backend %q requires POSTGRES_URL", backend)
		}
		return NewPostgresStore(ctx, cfg.GetPostgresURL())

	case config.BackendRedis:
		if cfg.GetRedisURL() == "" {
			return nil, fmt.Errorf("store backend %q requires REDIS_URL", backend)
		}
		return NewRedisStore(ctx, cfg.GetRedisURL())

	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
