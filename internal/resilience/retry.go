package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff describes an exponential retry schedule.
type Backoff struct {
	Attempts int           // total attempts including the first; default 3
	Base     time.Duration // delay before the first retry; default 250ms
	Max      time.Duration // cap; default 10s
	Jitter   float64       // +/- fraction of each delay; 0 disables
}

func (b Backoff) normalized() Backoff {
	if b.Attempts <= 0 {
		b.Attempts = 3
	}
	if b.Base <= 0 {
		b.Base = 250 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 10 * time.Second
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	return b
}

// Delay returns the wait before retry number n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	b = b.normalized()
	d := float64(b.Base) * math.Pow(2, float64(n))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. retryable defaults to IsTransient.
// onRetry, if set, is called before each wait.
func Retry[T any](
	ctx context.Context,
	b Backoff,
	retryable func(error) bool,
	onRetry func(attempt int, err error),
	fn func(ctx context.Context) (T, error),
) (T, error) {
	b = b.normalized()
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var err error
	for attempt := 0; attempt < b.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !retryable(err) || attempt == b.Attempts-1 {
			return zero, err
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}

		t := time.NewTimer(b.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, err
		case <-t.C:
		}
	}
	return zero, err
}
