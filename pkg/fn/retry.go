package fn

import (
	"context"
	"time"
)

// Retry re-runs op up to attempts times with exponential backoff,
// returning the last failure if none succeed. Context cancellation
// aborts between attempts.
func Retry[T any](ctx context.Context, attempts int, base time.Duration, op func(context.Context) Result[T]) Result[T] {
	if attempts < 1 {
		attempts = 1
	}
	var last Result[T]
	delay := base
	for i := 0; i < attempts; i++ {
		last = op(ctx)
		if last.IsOk() {
			return last
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return last
}
