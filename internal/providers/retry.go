package providers

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds retries of transient failures. The delay before retry n
// (starting at 0) is BaseDelay * 2^n, or the server's Retry-After when that
// is longer and under MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy is used when Options.Retry is left zero.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   60 * time.Second,
}

// retryWithBackoff runs fn until it succeeds, fails permanently, the retries
// run out or ctx ends. It returns the number of attempts made.
func retryWithBackoff(ctx context.Context, policy RetryPolicy, fn func() error) (int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		attempts++
		lastErr = fn()
		if lastErr == nil {
			return attempts, nil
		}

		// Don't retry auth, bad requests or unparseable replies
		if !IsTransient(lastErr) {
			break
		}

		if attempt < policy.MaxRetries {
			select {
			case <-ctx.Done():
				return attempts, &Error{Kind: classify(ctx.Err()), Attempts: attempts, Err: ctx.Err()}
			case <-time.After(policy.delay(attempt, lastErr)):
			}
		}
	}

	var pe *Error
	if errors.As(lastErr, &pe) {
		pe.Attempts = attempts
	}
	return attempts, lastErr
}

func (p RetryPolicy) delay(attempt int, err error) time.Duration {
	d := p.BaseDelay * time.Duration(1<<uint(attempt))
	var pe *Error
	if errors.As(err, &pe) && pe.RetryAfter > d {
		d = pe.RetryAfter
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
