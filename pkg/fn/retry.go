package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts configures exponential backoff.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
}

// DefaultRetry is three attempts starting at 500ms.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// Retry calls f until it succeeds, attempts run out, or ctx is done.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	var result Result[T]
	wait := opts.InitialWait

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() {
			return result
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		if opts.Retryable != nil && !opts.Retryable(result.err) {
			break
		}

		sleep := wait
		if opts.Jitter {
			sleep = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if opts.MaxWait > 0 && sleep > opts.MaxWait {
			sleep = opts.MaxWait
		}

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return Err[T](ctx.Err())
		case <-t.C:
		}

		wait *= 2
		if opts.MaxWait > 0 && wait > opts.MaxWait {
			wait = opts.MaxWait
		}
	}
	return result
}
