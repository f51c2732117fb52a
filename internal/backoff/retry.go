package backoff

import (
	"context"
	"time"
)

// Result describes how a retried call finished.
type Result[T any] struct {
	Value    T
	Attempts int
	// Errors holds the error of every failed attempt, in order.
	Errors []error
}

// Options bounds a retry loop.
type Options struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	Policy      Policy
	// Retryable decides whether an error warrants another attempt. Nil
	// retries every error.
	Retryable func(error) bool
	// OnRetry is called before sleeping ahead of attempt+1.
	OnRetry func(attempt int, err error)
}

// Do calls fn until it succeeds, the attempts run out, the error is not
// retryable or ctx is done. The error of the last attempt is returned as is.
func Do[T any](ctx context.Context, opts Options, fn func(ctx context.Context, attempt int) (T, error)) (Result[T], error) {
	var result Result[T]
	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		result.Attempts = attempt
		value, err := fn(ctx, attempt)
		if err == nil {
			result.Value = value
			return result, nil
		}
		result.Errors = append(result.Errors, err)

		if attempt >= maxAttempts || (opts.Retryable != nil && !opts.Retryable(err)) {
			return result, err
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}
		if sleepErr := wait(ctx, opts.Policy.Delay(attempt)); sleepErr != nil {
			return result, sleepErr
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
