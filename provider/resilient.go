package provider

import (
	"context"
	"io"
	"time"

	"github.com/lookatitude/vox-interpret/lang"
	"github.com/lookatitude/vox-interpret/resilience"
)

// ResilientTranslator wraps a Translator with rate limiting, circuit
// breaking, and retry, applied in that order: a call first waits for a rate
// limit slot, is then short-circuited by the breaker if the backend is
// unhealthy, and only then gets retried on transient failure.
type ResilientTranslator struct {
	Translator
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	policy  resilience.RetryPolicy
}

// NewResilientTranslator composes the three layers around inner.
func NewResilientTranslator(inner Translator, limits resilience.ProviderLimits, failureThreshold int, resetTimeout time.Duration) *ResilientTranslator {
	return &ResilientTranslator{
		Translator: inner,
		limiter:    resilience.NewRateLimiter(limits),
		breaker:    resilience.NewCircuitBreaker(failureThreshold, resetTimeout),
		policy:     resilience.DefaultRetryPolicy(),
	}
}

// Translate runs the wrapped Translator under the full resilience stack.
func (r *ResilientTranslator) Translate(ctx context.Context, text string, pair lang.Pair, formal bool) (string, error) {
	if err := r.limiter.Allow(ctx); err != nil {
		return "", err
	}
	defer r.limiter.Release()

	return resilience.Retry(ctx, r.policy, func(ctx context.Context) (string, error) {
		res, err := r.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return r.Translator.Translate(ctx, text, pair, formal)
		})
		if err != nil {
			return "", err
		}
		return res.(string), nil
	})
}

// ResilientTTS wraps a StreamingTTS backend the same way.
type ResilientTTS struct {
	StreamingTTS
	limiter *resilience.RateLimiter
	breaker *resilience.CircuitBreaker
	policy  resilience.RetryPolicy
}

func NewResilientTTS(inner StreamingTTS, limits resilience.ProviderLimits, failureThreshold int, resetTimeout time.Duration) *ResilientTTS {
	return &ResilientTTS{
		StreamingTTS: inner,
		limiter:      resilience.NewRateLimiter(limits),
		breaker:      resilience.NewCircuitBreaker(failureThreshold, resetTimeout),
		policy:       resilience.DefaultRetryPolicy(),
	}
}

func (r *ResilientTTS) Synthesize(ctx context.Context, text string, avatarID string) (io.ReadCloser, error) {
	if err := r.limiter.Allow(ctx); err != nil {
		return nil, err
	}
	defer r.limiter.Release()

	return resilience.Retry(ctx, r.policy, func(ctx context.Context) (io.ReadCloser, error) {
		res, err := r.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
			return r.StreamingTTS.Synthesize(ctx, text, avatarID)
		})
		if err != nil {
			return nil, err
		}
		return res.(io.ReadCloser), nil
	})
}
