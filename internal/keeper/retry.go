package keeper

import (
	"context"
	"time"
)

// RetryResult reports the outcome of a retried liquidation. Err keeps the
// last typed error so callers can classify it; Reason is its message.
type RetryResult struct {
	Success  bool
	Attempts int
	Reason   string
	Err      error
}

// ComputeBackoff returns base * 2^(attempt-1). Attempt values below 1 and a
// zero base both yield no delay.
func ComputeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}
	return base << uint(attempt-1)
}

// LiquidateWithRetry runs action up to maxAttempts times with exponential
// backoff between attempts. At least one attempt is always made. The last
// error message becomes the failure reason.
func LiquidateWithRetry(ctx context.Context, action func(context.Context) error, maxAttempts int, base time.Duration) RetryResult {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	result := RetryResult{}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt

		err := action(ctx)
		if err == nil {
			result.Success = true
			result.Reason = ""
			result.Err = nil
			return result
		}
		result.Err = err
		result.Reason = err.Error()

		if attempt < maxAttempts {
			delay := ComputeBackoff(base, attempt)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return result
				case <-time.After(delay):
				}
			}
		}
	}
	return result
}
