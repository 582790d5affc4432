package stepflow

import (
	"context"
	"math"
	"time"
)

func CalculateRetryDelay(strategy RetryStrategy, baseDelay time.Duration, retryAttempt int) time.Duration {
	switch strategy {
	case RetryStrategyExponential:
		// Exponential backoff: baseDelay * 2^retryAttempt
		multiplier := math.Pow(2, float64(retryAttempt))
		return time.Duration(float64(baseDelay) * multiplier)

	case RetryStrategyLinear:
		// Linear backoff: baseDelay * retryAttempt
		return baseDelay * time.Duration(retryAttempt)

	case RetryStrategyFixed:
		fallthrough
	default:
		// Fixed delay: always use baseDelay
		return baseDelay
	}
}

// sleep blocks for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isFalse reports whether a work result is the false sentinel.
func isFalse(result any) bool {
	b, ok := result.(bool)

	return ok && !b
}
