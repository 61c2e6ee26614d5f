package store

import (
	"context"
	"time"

	"junction/internal/config"
	"junction/pkg/circuitbreaker"
)

// CircuitBreakerStore fails fast while the backing store is unhealthy.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

// NewCircuitBreakerStore wraps s, or returns s untouched when the breaker is
// disabled.
func NewCircuitBreakerStore(s Store, name string, cfg config.CircuitBreakerConfig) Store {
	if !cfg.Enabled {
		return s
	}

	cbConfig := circuitbreaker.Tuned(name, cfg.MaxRequests, cfg.Interval, cfg.Timeout, cfg.FailureRatio, cfg.MinRequests)
	return &CircuitBreakerStore{
		store: s,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

type lookup struct {
	value string
	found bool
}

func (s *CircuitBreakerStore) State() string {
	return s.cb.State().String()
}

func (s *CircuitBreakerStore) run(ctx context.Context, fn func() error) error {
	_, err := circuitbreaker.Do(ctx, s.cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (s *CircuitBreakerStore) Get(ctx context.Context, key string) (string, bool, error) {
	res, err := circuitbreaker.Do(ctx, s.cb, func() (lookup, error) {
		v, ok, err := s.store.Get(ctx, key)
		return lookup{v, ok}, err
	})
	return res.value, res.found, err
}

func (s *CircuitBreakerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.run(ctx, func() error { return s.store.Set(ctx, key, value, ttl) })
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, keys ...string) error {
	return s.run(ctx, func() error { return s.store.Delete(ctx, keys...) })
}

func (s *CircuitBreakerStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	res, err := circuitbreaker.Do(ctx, s.cb, func() (lookup, error) {
		v, ok, err := s.store.HGet(ctx, key, field)
		return lookup{v, ok}, err
	})
	return res.value, res.found, err
}

func (s *CircuitBreakerStore) HSet(ctx context.Context, key, field, value string) error {
	return s.run(ctx, func() error { return s.store.HSet(ctx, key, field, value) })
}

func (s *CircuitBreakerStore) HMSet(ctx context.Context, key string, fields map[string]string) error {
	return s.run(ctx, func() error { return s.store.HMSet(ctx, key, fields) })
}

func (s *CircuitBreakerStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return circuitbreaker.Do(ctx, s.cb, func() (map[string]string, error) {
		return s.store.HGetAll(ctx, key)
	})
}

func (s *CircuitBreakerStore) HIncrBy(ctx context.Context, key, field string, incr int64) (int64, error) {
	return circuitbreaker.Do(ctx, s.cb, func() (int64, error) {
		return s.store.HIncrBy(ctx, key, field, incr)
	})
}

func (s *CircuitBreakerStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.run(ctx, func() error { return s.store.Expire(ctx, key, ttl) })
}

func (s *CircuitBreakerStore) SAdd(ctx context.Context, key string, members ...string) error {
	return s.run(ctx, func() error { return s.store.SAdd(ctx, key, members...) })
}

func (s *CircuitBreakerStore) SRem(ctx context.Context, key string, members ...string) error {
	return s.run(ctx, func() error { return s.store.SRem(ctx, key, members...) })
}

func (s *CircuitBreakerStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return circuitbreaker.Do(ctx, s.cb, func() ([]string, error) {
		return s.store.SMembers(ctx, key)
	})
}

// Ping bypasses the breaker so health checks see the real backend state.
func (s *CircuitBreakerStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *CircuitBreakerStore) Close() error {
	return s.store.Close()
}
