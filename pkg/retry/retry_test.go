package retry

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"junction/internal/config"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	var retries []int
	err := RetryWithCallback(context.Background(), "test", fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return stderrors.New("not yet")
		}
		return nil
	}, func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "test", fastPolicy(3), func() error {
		calls++
		return stderrors.New("down")
	})

	assert.EqualError(t, err, "down")
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnFatalError(t *testing.T) {
	calls := 0
	cause := stderrors.New("bad credentials")
	err := Retry(context.Background(), "test", fastPolicy(5), func() error {
		calls++
		return NewFatalError(cause)
	})

	assert.True(t, stderrors.Is(err, cause))
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, "test", fastPolicy(5), func() error {
		calls++
		return stderrors.New("down")
	})

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(config.RetryConfig{MaxAttempts: 7, MaxInterval: time.Minute})
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, time.Minute, p.MaxInterval)
	assert.Equal(t, DefaultPolicy().InitialInterval, p.InitialInterval)
	assert.Equal(t, DefaultPolicy().Multiplier, p.Multiplier)
}

func TestCalculateBackoffDuration(t *testing.T) {
	assert.Equal(t, time.Second, CalculateBackoffDuration(0, time.Second, 2, time.Minute))
	assert.Equal(t, 4*time.Second, CalculateBackoffDuration(2, time.Second, 2, time.Minute))
	assert.Equal(t, 5*time.Second, CalculateBackoffDuration(10, time.Second, 2, 5*time.Second))
}
