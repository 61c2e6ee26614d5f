package transport

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle paces outbound delivery to count messages per window. A zero
// count disables it.
type Throttle struct {
	limiter *rate.Limiter
}

func NewThrottle(count int, window time.Duration) *Throttle {
	if count <= 0 {
		return &Throttle{}
	}
	if window <= 0 {
		window = time.Second
	}
	return &Throttle{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(count)), count),
	}
}

func (t *Throttle) Wait(ctx context.Context) error {
	if t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

func (t *Throttle) Enabled() bool {
	return t.limiter != nil
}
