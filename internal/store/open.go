package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/coil-condensation-monitor/internal/config"
)

// Open builds the configured backend. With REDIS_MIRROR set, every write is
// repeated on Redis and mirror failures are reported through onMirrorFailure.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, onMirrorFailure func(op string)) (Backend, error) {
	var primary Backend
	switch cfg.StorageBackend {
	case config.StorageMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		primary = NewMemory()
	case config.StorageRedis:
		r, err := dialRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		primary = r
	default:
		s, err := OpenSQLite(ctx, cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		primary = s
	}

	if !cfg.RedisMirror {
		logger.Info("storage ready", "backend", cfg.StorageBackend)
		return primary, nil
	}
	secondary, err := dialRedis(ctx, cfg)
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("redis mirror: %w", err)
	}
	logger.Info("storage ready", "backend", cfg.StorageBackend, "mirror", "redis")
	return NewMirrored(primary, secondary, logger, onMirrorFailure), nil
}

func dialRedis(ctx context.Context, cfg *config.Config) (*Redis, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return DialRedis(pingCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
}
