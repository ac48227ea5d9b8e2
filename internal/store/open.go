package store

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"

	"github.com/gravitas-games/gridstash/internal/config"
)

// Open builds the backend selected by cfg.Storage. client is reused by the
// redis backend and may be nil for the others.
func Open(ctx context.Context, cfg *config.Config, client *redis.Client) (Store, error) {
	format, err := ParseFormat(cfg.Storage.Format)
	if err != nil {
		return nil, err
	}
	switch cfg.Storage.Backend {
	case "redis":
		if client == nil {
			return DialRedis(ctx, &redis.Options{
				Addr:     cfg.Redis.Address,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			}, cfg.Redis.SnapshotPrefix, format)
		}
		return NewRedisStore(client, cfg.Redis.SnapshotPrefix, format), nil
	case "sqlite":
		return OpenSQLite(cfg.SQLite.Path, format)
	case "file":
		return NewFileStore(cfg.Storage.Dir, format)
	default:
		return nil, errors.Newf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
