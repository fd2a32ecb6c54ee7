package prefs

import (
	"context"
	"fmt"

	"coinboard/internal/config"
)

// Open builds the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.Prefs) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return NewMemoryBackend(), nil
	case config.BackendFile, "":
		return NewFileBackend(cfg.Path, cfg.PollInterval), nil
	case config.BackendSQLite:
		return NewSQLiteBackend(cfg.SQLitePath, cfg.PollInterval)
	case config.BackendRedis:
		return NewRedisBackend(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			Channel:  cfg.Redis.Channel,
		})
	default:
		return nil, fmt.Errorf("unknown prefs backend %q", cfg.Backend)
	}
}
