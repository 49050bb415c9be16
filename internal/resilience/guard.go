package resilience

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Guard combines a retry schedule with a breaker. Every attempt is
// recorded by the breaker.
type Guard struct {
	Name    string
	Backoff Backoff
	Breaker *Breaker
}

// Run executes fn under the guard. ErrOpen is never retried.
func Run[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	retryable := func(err error) bool {
		return !errors.Is(err, ErrOpen) && IsTransient(err)
	}
	onRetry := func(attempt int, err error) {
		zap.L().Debug("resilience: retrying",
			zap.String("upstream", g.Name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	call := fn
	if g.Breaker != nil {
		call = func(ctx context.Context) (T, error) {
			return Call(ctx, g.Breaker, fn)
		}
	}
	return Retry(ctx, g.Backoff, retryable, onRetry, call)
}
