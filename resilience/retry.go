// Package resilience provides retry, circuit breaker, rate limiting, and
// hedging primitives shared by every provider adapter.
package resilience

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/lookatitude/vox-interpret/core"
)

// RetryPolicy configures Retry's backoff schedule and which error codes are
// eligible for a retry attempt.
type RetryPolicy struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffFactor   float64
	Jitter          bool
	RetryableErrors []core.ErrorCode
}

// DefaultRetryPolicy mirrors the TransientProvider budget: three attempts,
// 500ms initial backoff doubling up to 30s, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 500 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2.0
	}
	return p
}

func (p RetryPolicy) isRetryable(err error) bool {
	var e *core.Error
	if !errors.As(err, &e) {
		return false
	}
	for _, code := range p.RetryableErrors {
		if e.Code == code {
			return true
		}
	}
	return core.IsRetryable(err)
}

// Retry runs fn, retrying with exponential backoff while the policy's
// attempt budget remains and the returned error is retryable. It stops
// immediately on a non-retryable error or context cancellation.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	policy = policy.normalized()

	var zero T
	backoff := policy.InitialBackoff

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == policy.MaxAttempts || !policy.isRetryable(err) {
			return zero, err
		}

		wait := backoff
		if policy.Jitter {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if wait > policy.MaxBackoff {
			wait = policy.MaxBackoff
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * policy.BackoffFactor)
		if backoff > policy.MaxBackoff {
			backoff = policy.MaxBackoff
		}
	}
	return zero, ctx.Err()
}
