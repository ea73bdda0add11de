package dnsclient

import (
	"context"
	"math/rand"
	"time"
)

// retryConfig configures the exponential backoff used around every provider
// call. Grounded on AleutianLocal's context/retry.go, trimmed to the one
// knob set the DNS Client needs (no circuit breaker — the provider is a
// single external dependency the Reconciler already treats as fail-open).
type retryConfig struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffFactor  float64
	jitterFactor   float64
}

func defaultRetryConfig(maxAttempts int) retryConfig {
	return retryConfig{
		maxAttempts:    maxAttempts,
		initialBackoff: 250 * time.Millisecond,
		maxBackoff:     5 * time.Second,
		backoffFactor:  2.0,
		jitterFactor:   0.2,
	}
}

// retryableFunc returns nil on success. A non-nil, non-retryable error
// aborts immediately; a retryable one is retried up to maxAttempts.
type retryableFunc func(ctx context.Context, attempt int) (retryable bool, err error)

func retry(ctx context.Context, cfg retryConfig, fn retryableFunc) error {
	backoff := cfg.initialBackoff
	var lastErr error

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		retryable, err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable || attempt == cfg.maxAttempts {
			return lastErr
		}

		wait := jittered(backoff, cfg.jitterFactor)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff = nextBackoff(backoff, cfg.backoffFactor, cfg.maxBackoff)
	}

	return lastErr
}

func jittered(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(base) * (1.0 + jitter))
}

func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
