package resilience

import (
	"context"
	"sync"
	"time"
)

// ProviderLimits describes the throughput ceilings a provider adapter must
// respect: requests per minute, tokens per minute, maximum concurrent calls,
// and a mandatory cooldown before the next retry attempt. Zero means
// unlimited for RPM, TPM, and MaxConcurrent.
type ProviderLimits struct {
	RPM             int
	TPM             int
	MaxConcurrent   int
	CooldownOnRetry time.Duration
}

// RateLimiter enforces ProviderLimits with a token-bucket for RPM and TPM
// and a counting semaphore for concurrency.
type RateLimiter struct {
	limits ProviderLimits

	mu            sync.Mutex
	rpmTokens     float64
	rpmLastRefill time.Time
	tpmTokens     float64
	tpmLastRefill time.Time
	concurrent    int
}

const pollInterval = 5 * time.Millisecond

// NewRateLimiter constructs a limiter with full buckets.
func NewRateLimiter(limits ProviderLimits) *RateLimiter {
	rl := &RateLimiter{limits: limits}
	now := time.Now()
	if limits.RPM > 0 {
		rl.rpmTokens = float64(limits.RPM)
		rl.rpmLastRefill = now
	}
	if limits.TPM > 0 {
		rl.tpmTokens = float64(limits.TPM)
		rl.tpmLastRefill = now
	}
	return rl
}

func (rl *RateLimiter) refillRPMLocked() {
	now := time.Now()
	elapsed := now.Sub(rl.rpmLastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.rpmTokens += elapsed * (float64(rl.limits.RPM) / 60.0)
	if cap := float64(rl.limits.RPM); rl.rpmTokens > cap {
		rl.rpmTokens = cap
	}
	rl.rpmLastRefill = now
}

func (rl *RateLimiter) refillTPMLocked() {
	now := time.Now()
	elapsed := now.Sub(rl.tpmLastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tpmTokens += elapsed * (float64(rl.limits.TPM) / 60.0)
	if cap := float64(rl.limits.TPM); rl.tpmTokens > cap {
		rl.tpmTokens = cap
	}
	rl.tpmLastRefill = now
}

// Allow blocks until an RPM token and a concurrency slot are both available,
// or ctx is done. Every successful Allow must be paired with Release.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	for {
		rl.mu.Lock()
		ok := true
		if rl.limits.RPM > 0 {
			rl.refillRPMLocked()
			if rl.rpmTokens < 1 {
				ok = false
			}
		}
		if ok && rl.limits.MaxConcurrent > 0 && rl.concurrent >= rl.limits.MaxConcurrent {
			ok = false
		}
		if ok {
			if rl.limits.RPM > 0 {
				rl.rpmTokens--
			}
			if rl.limits.MaxConcurrent > 0 {
				rl.concurrent++
			}
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release frees the concurrency slot acquired by a prior Allow call.
func (rl *RateLimiter) Release() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.concurrent > 0 {
		rl.concurrent--
	}
}

// Wait blocks for the configured retry cooldown, or returns immediately if
// none is configured.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.limits.CooldownOnRetry <= 0 {
		return nil
	}
	timer := time.NewTimer(rl.limits.CooldownOnRetry)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ConsumeTokens blocks until count TPM tokens are available, or ctx is done.
// A zero or negative count, or an unlimited TPM budget, returns immediately.
func (rl *RateLimiter) ConsumeTokens(ctx context.Context, count int) error {
	if rl.limits.TPM <= 0 || count <= 0 {
		return nil
	}
	need := float64(count)
	for {
		rl.mu.Lock()
		rl.refillTPMLocked()
		if rl.tpmTokens >= need {
			rl.tpmTokens -= need
			rl.mu.Unlock()
			return nil
		}
		rl.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
