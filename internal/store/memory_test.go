package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*MemoryStore, *ManualClock) {
	clock := NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewMemoryStore(WithClock(clock.Now)), clock
}

func TestMemoryStoreStringTTL(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(time.Minute)

	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreHashExpireRefresh(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore()

	require.NoError(t, s.HMSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, s.Expire(ctx, "h", 10*time.Second))

	clock.Advance(8 * time.Second)
	require.NoError(t, s.HSet(ctx, "h", "c", "3"))
	require.NoError(t, s.Expire(ctx, "h", 10*time.Second))

	clock.Advance(8 * time.Second)
	all, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": "3"}, all)

	clock.Advance(2 * time.Second)
	_, ok, err := s.HGet(ctx, "h", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreHIncrBy(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	v, err := s.HIncrBy(ctx, "h", "count", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = s.HIncrBy(ctx, "h", "count", 4)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	require.NoError(t, s.HSet(ctx, "h", "word", "abc"))
	_, err = s.HIncrBy(ctx, "h", "word", 1)
	assert.Error(t, err)
}

func TestMemoryStoreSets(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	require.NoError(t, s.SAdd(ctx, "set", "b", "a", "b"))
	members, err := s.SMembers(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, members)

	require.NoError(t, s.SRem(ctx, "set", "a", "missing"))
	members, err = s.SMembers(ctx, "set")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)

	members, err = s.SMembers(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestMemoryStoreWrongType(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	_, err := s.HGetAll(ctx, "k")
	assert.ErrorIs(t, err, ErrWrongType)
	assert.ErrorIs(t, s.SAdd(ctx, "k", "m"), ErrWrongType)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore()

	require.NoError(t, s.Set(ctx, "a", "1", 0))
	require.NoError(t, s.HSet(ctx, "b", "f", "v"))
	require.NoError(t, s.Delete(ctx, "a", "b", "c"))

	_, ok, _ := s.Get(ctx, "a")
	assert.False(t, ok)
	all, _ := s.HGetAll(ctx, "b")
	assert.Empty(t, all)
}
