package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

var (
	errTemporary = errors.New("temporary error")
	errPermanent = errors.New("permanent error")
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	result, err := Do(context.Background(), Options{MaxAttempts: 3, Policy: Fixed(time.Millisecond)},
		func(_ context.Context, attempt int) (string, error) {
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if result.Value != "ok" || result.Attempts != 1 || len(result.Errors) != 0 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestDoRetriesOnceThenSucceeds(t *testing.T) {
	var retried []int
	result, err := Do(context.Background(), Options{
		MaxAttempts: 2,
		Policy:      Fixed(time.Millisecond),
		OnRetry:     func(attempt int, _ error) { retried = append(retried, attempt) },
	}, func(_ context.Context, attempt int) (int, error) {
		if attempt == 1 {
			return 0, errTemporary
		}
		return attempt, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if result.Value != 2 || result.Attempts != 2 {
		t.Errorf("unexpected result %+v", result)
	}
	if len(retried) != 1 || retried[0] != 1 {
		t.Errorf("OnRetry calls = %v", retried)
	}
}

func TestDoReturnsLastError(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), Options{MaxAttempts: 2, Policy: Fixed(time.Millisecond)},
		func(_ context.Context, attempt int) (struct{}, error) {
			calls++
			if attempt == 2 {
				return struct{}{}, errPermanent
			}
			return struct{}{}, errTemporary
		})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("Do() error = %v, want last attempt error", err)
	}
	if calls != 2 || len(result.Errors) != 2 {
		t.Errorf("calls = %d, errors = %v", calls, result.Errors)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Options{
		MaxAttempts: 5,
		Policy:      Fixed(time.Millisecond),
		Retryable:   func(err error) bool { return !errors.Is(err, errPermanent) },
	}, func(_ context.Context, _ int) (int, error) {
		calls++
		return 0, errPermanent
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, _ = Do(context.Background(), Options{}, func(_ context.Context, _ int) (int, error) {
		calls++
		return 0, errTemporary
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := Do(ctx, Options{MaxAttempts: 3, Policy: Fixed(time.Hour)},
		func(_ context.Context, _ int) (int, error) {
			cancel()
			return 0, errTemporary
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	if err := wait(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("wait() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("wait() error = %v, want Canceled", err)
	}
	if err := wait(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("wait(0) on cancelled ctx = %v", err)
	}
}
