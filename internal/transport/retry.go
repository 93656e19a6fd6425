package transport

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second}
}

// Do paces fn through the limiter and retries it only while it fails with a
// rate-limit APIError. Every other error is returned on the first attempt.
func Do[T any](ctx context.Context, policy RetryPolicy, limiter *AdaptiveLimiter, logger *slog.Logger, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.RateLimited() {
			return zero, err
		}
		if limiter != nil {
			limiter.Throttled()
		}
		if attempt == attempts {
			break
		}

		delay := policy.delay(attempt, apiErr.RetryAfter)
		logger.Warn("rate limited, backing off",
			"endpoint", apiErr.Endpoint,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay_ms", delay.Milliseconds(),
		)
		if err := sleepContext(ctx, delay); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func (p RetryPolicy) delay(attempt int, retryAfter time.Duration) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if retryAfter > 0 {
		return min(retryAfter, maxDelay)
	}
	delay := p.BaseDelay * time.Duration(1<<(attempt-1))
	if p.BaseDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(p.BaseDelay)/4 + 1))
	}
	return min(delay, maxDelay)
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
