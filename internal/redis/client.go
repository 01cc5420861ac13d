package redis

import (
	"context"
	"fmt"
	"time"

	"marketplace-chat/config"

	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client from configuration. Callers own the
// client and must Close it.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping reports whether the server answers within two seconds.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
