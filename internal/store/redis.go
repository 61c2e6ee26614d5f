package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"junction/pkg/metrics"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore namespaces every key under prefix when one is given.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.IncStoreOperation("redis", operation, status)
	metrics.ObserveStoreOperationDuration("redis", operation, time.Since(start))
}

func (s *RedisStore) Get(ctx context.Context, key string) (value string, found bool, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())

	value, err = s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis GET %s failed: %w", key, err)
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) (err error) {
	defer func(start time.Time) { observe("set", start, err) }(time.Now())

	if err = s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s failed: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) (err error) {
	defer func(start time.Time) { observe("del", start, err) }(time.Now())

	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = s.key(k)
	}
	if err = s.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (value string, found bool, err error) {
	defer func(start time.Time) { observe("hget", start, err) }(time.Now())

	value, err = s.client.HGet(ctx, s.key(key), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis HGET %s %s failed: %w", key, field, err)
	}
	return value, true, nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) (err error) {
	defer func(start time.Time) { observe("hset", start, err) }(time.Now())

	if err = s.client.HSet(ctx, s.key(key), field, value).Err(); err != nil {
		return fmt.Errorf("redis HSET %s %s failed: %w", key, field, err)
	}
	return nil
}

func (s *RedisStore) HMSet(ctx context.Context, key string, fields map[string]string) (err error) {
	defer func(start time.Time) { observe("hmset", start, err) }(time.Now())

	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(fields))
	for f, v := range fields {
		values[f] = v
	}
	if err = s.client.HSet(ctx, s.key(key), values).Err(); err != nil {
		return fmt.Errorf("redis HSET %s failed: %w", key, err)
	}
	return nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (values map[string]string, err error) {
	defer func(start time.Time) { observe("hgetall", start, err) }(time.Now())

	values, err = s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL %s failed: %w", key, err)
	}
	return values, nil
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, incr int64) (value int64, err error) {
	defer func(start time.Time) { observe("hincrby", start, err) }(time.Now())

	value, err = s.client.HIncrBy(ctx, s.key(key), field, incr).Result()
	if err != nil {
		return 0, fmt.Errorf("redis HINCRBY %s %s failed: %w", key, field, err)
	}
	return value, nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (err error) {
	defer func(start time.Time) { observe("expire", start, err) }(time.Now())

	if err = s.client.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return fmt.Errorf("redis EXPIRE %s failed: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) (err error) {
	defer func(start time.Time) { observe("sadd", start, err) }(time.Now())

	if len(members) == 0 {
		return nil
	}
	if err = s.client.SAdd(ctx, s.key(key), toInterfaces(members)...).Err(); err != nil {
		return fmt.Errorf("redis SADD %s failed: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) (err error) {
	defer func(start time.Time) { observe("srem", start, err) }(time.Now())

	if len(members) == 0 {
		return nil
	}
	if err = s.client.SRem(ctx, s.key(key), toInterfaces(members)...).Err(); err != nil {
		return fmt.Errorf("redis SREM %s failed: %w", key, err)
	}
	return nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) (members []string, err error) {
	defer func(start time.Time) { observe("smembers", start, err) }(time.Now())

	members, err = s.client.SMembers(ctx, s.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %s failed: %w", key, err)
	}
	return members, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
