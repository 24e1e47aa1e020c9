package llmclient

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy configures retry behavior for outbound model calls.
type RetryPolicy struct {
	MaxRetries int           // retry attempts beyond the initial call
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on the delay between retries
	Multiplier float64       // exponential backoff factor
	Jitter     bool          // randomize delays to avoid thundering herds
	OnRetry    func(err error, attempt int, delay time.Duration)
}

// DefaultRetryPolicy returns the default policy: two retries with 1s base
// delay, doubling, capped at 60s, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay calculates the backoff delay for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	if p.Jitter {
		// +/- 50%
		d *= 0.5 + rand.Float64()
	}
	return time.Duration(d)
}

// Retry executes fn, retrying per the policy. Only errors classified by
// IsRetryable are retried; a RateLimitError's Retry-After hint overrides the
// computed backoff unless it exceeds MaxDelay, in which case the error is
// surfaced immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if rl, ok := err.(*RateLimitError); ok && rl.RetryAfter != nil {
			hinted := time.Duration(*rl.RetryAfter * float64(time.Second))
			if hinted > policy.MaxDelay {
				return zero, err
			}
			delay = hinted
		}

		if policy.OnRetry != nil {
			policy.OnRetry(err, attempt+1, delay)
		}

		select {
		case <-ctx.Done():
			return zero, &AbortError{ClientError: ClientError{Message: "request cancelled during retry", Cause: ctx.Err()}}
		case <-time.After(delay):
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}

	return zero, err
}
