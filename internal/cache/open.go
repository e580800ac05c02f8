package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config selects and configures the cache backend.
type Config struct {
	Driver      string        `mapstructure:"driver" validate:"oneof=redis postgres memory"`
	RedisURL    string        `mapstructure:"redis-url" validate:"required_if=Driver redis"`
	DatabaseURL string        `mapstructure:"database-url" validate:"required_if=Driver postgres"`
	KeyPrefix   string        `mapstructure:"key-prefix"`
	Retention   time.Duration `mapstructure:"retention" validate:"gte=0"`
	TTL         time.Duration `mapstructure:"ttl" validate:"gte=1ms"`
}

// Open connects to the configured backend and returns a Store over it.
func Open(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) (*Store, error) {
	var backend Backend

	switch cfg.Driver {
	case DriverRedis:
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		backend = NewRedis(client, cfg.KeyPrefix, cfg.Retention)
	case DriverPostgres:
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		pg := NewPostgres(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		backend = pg
	case DriverMemory, "":
		backend = NewMemory()
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}

	if logger != nil {
		logger.Info("cache backend ready", zap.String("driver", cfg.Driver))
	}

	return New(backend, logger, opts...), nil
}
