package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junction/internal/config"
)

type failingStore struct {
	*MemoryStore
	err error
}

func (s *failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	return s.MemoryStore.Get(ctx, key)
}

func TestCircuitBreakerStoreDisabledReturnsInner(t *testing.T) {
	inner := NewMemoryStore()
	assert.Same(t, inner, NewCircuitBreakerStore(inner, "store-disabled", config.CircuitBreakerConfig{}).(*MemoryStore))
}

func TestCircuitBreakerStorePassesThroughAndTrips(t *testing.T) {
	ctx := context.Background()
	inner := &failingStore{MemoryStore: NewMemoryStore()}
	s := NewCircuitBreakerStore(inner, "store-trip", config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	})

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	inner.err = errors.New("connection refused")
	for i := 0; i < 4; i++ {
		_, _, _ = s.Get(ctx, "k")
	}

	inner.err = nil
	_, _, err = s.Get(ctx, "k")
	assert.Error(t, err)
	assert.Equal(t, "open", s.(*CircuitBreakerStore).State())
}
