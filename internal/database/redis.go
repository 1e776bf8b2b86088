package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pagecraft/pagecraft/internal/config"
)

// NewRedis creates the client behind the session store and the sign-in
// limiter. Every guarded request reads a session, so reads and writes are
// capped at cfg.OpTimeout and a slow server surfaces as an error instead of
// a hung request. The server must answer a ping before startup continues.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}
	applyRedisLimits(opts, cfg)

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// applyRedisLimits overrides URL-derived options with configured limits.
func applyRedisLimits(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
}
