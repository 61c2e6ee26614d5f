package stores

import (
	"context"
	"strconv"
	"time"

	"junction/internal/store"
)

const (
	fieldCount       = "count"
	fieldWindowStart = "window_start"
)

// RateStore counts events per (channel, label) in fixed windows. A counter
// whose window has elapsed reads as zero and restarts at one on the next
// increment.
type RateStore struct {
	store store.Store
	now   func() time.Time
}

// NewRateStore uses now as its clock, or time.Now when nil.
func NewRateStore(s store.Store, now func() time.Time) *RateStore {
	if now == nil {
		now = time.Now
	}
	return &RateStore{store: s, now: now}
}

func windowDuration(window float64) time.Duration {
	return time.Duration(window * float64(time.Second))
}

// current returns the counter value, or false when none exists for the
// live window.
func (r *RateStore) current(ctx context.Context, key string, window float64) (int64, bool, error) {
	fields, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return 0, false, err
	}

	startRaw, ok := fields[fieldWindowStart]
	if !ok {
		return 0, false, nil
	}
	startNanos, err := strconv.ParseInt(startRaw, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	if r.now().Sub(time.Unix(0, startNanos)) >= windowDuration(window) {
		return 0, false, nil
	}

	count, err := strconv.ParseInt(fields[fieldCount], 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return count, true, nil
}

func (r *RateStore) Increment(ctx context.Context, channelID, label string, window float64) error {
	key := rateKey(channelID, label)

	_, live, err := r.current(ctx, key, window)
	if err != nil {
		return err
	}

	if live {
		if _, err := r.store.HIncrBy(ctx, key, fieldCount, 1); err != nil {
			return err
		}
	} else {
		err := r.store.HMSet(ctx, key, map[string]string{
			fieldCount:       "1",
			fieldWindowStart: strconv.FormatInt(r.now().UnixNano(), 10),
		})
		if err != nil {
			return err
		}
	}

	return r.store.Expire(ctx, key, 2*windowDuration(window))
}

// GetMessagesPerSecond returns count/window for the live window.
func (r *RateStore) GetMessagesPerSecond(ctx context.Context, channelID, label string, window float64) (float64, error) {
	if window <= 0 {
		return 0, nil
	}

	count, live, err := r.current(ctx, rateKey(channelID, label), window)
	if err != nil || !live {
		return 0, err
	}
	return float64(count) / window, nil
}
