package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"junction/internal/store"
)

// InitStore opens the persistent store. A redis store is guarded by a
// circuit breaker when one is configured.
func (c *Connector) InitStore(ctx context.Context) (store.Store, error) {
	if c.Config.Store.Type == "memory" {
		c.Logger.WarnwCtx(ctx, "Using in-memory store, state will not survive a restart")
		return store.NewMemoryStore(), nil
	}

	rdb, err := c.InitRedis(ctx)
	if err != nil {
		return nil, err
	}

	var s store.Store = store.NewRedisStore(rdb, c.Config.Store.Redis.KeyPrefix)
	if c.Config.CircuitBreaker.Enabled {
		s = store.NewCircuitBreakerStore(s, "redis", c.Config.CircuitBreaker)
	}
	return s, nil
}

func (c *Connector) InitRedis(ctx context.Context) (*redis.Client, error) {
	cfg := c.Config.Store.Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	err := c.retry(ctx, "redis", func() error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	c.Logger.InfowCtx(ctx, "Redis connected successfully", "addr", rdb.Options().Addr)
	return rdb, nil
}
