package provider

import (
	"errors"

	"github.com/lookatitude/vox-interpret/core"
)

// NewTransientError wraps cause as a TransientProvider error: retryable up
// to the resilience package's default budget.
func NewTransientError(op string, cause error) *core.Error {
	return core.NewError(op, core.ErrProviderDown, "provider call failed, may succeed on retry", cause)
}

// NewRateLimitedError wraps cause as a throttling response from the
// provider.
func NewRateLimitedError(op string, cause error) *core.Error {
	return core.NewError(op, core.ErrRateLimit, "provider throttled the request", cause)
}

// NewPermanentError wraps cause as a PermanentProvider error: never
// retried, the owning Pipeline transitions straight to failed.
func NewPermanentError(op string, cause error) *core.Error {
	return core.NewError(op, core.ErrPermanent, "provider rejected the request", cause)
}

// IsPermanent reports whether err is a PermanentProvider error.
func IsPermanent(err error) bool {
	var e *core.Error
	return errors.As(err, &e) && e.Code == core.ErrPermanent
}
