package resilience

import (
	"context"
	"time"
)

type hedgeOutcome[T any] struct {
	val       T
	err       error
	isPrimary bool
}

// Hedge races primary against secondary. secondary only starts once delay
// elapses without a primary result, or immediately if primary fails before
// delay elapses. The first success wins; if both fail, primary's error is
// returned.
func Hedge[T any](ctx context.Context, primary, secondary func(context.Context) (T, error), delay time.Duration) (T, error) {
	results := make(chan hedgeOutcome[T], 2)

	go func() {
		v, err := primary(ctx)
		results <- hedgeOutcome[T]{val: v, err: err, isPrimary: true}
	}()

	secondaryLaunched := false
	launchSecondary := func() {
		if secondaryLaunched {
			return
		}
		secondaryLaunched = true
		go func() {
			v, err := secondary(ctx)
			results <- hedgeOutcome[T]{val: v, err: err, isPrimary: false}
		}()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	var zero T
	var primaryDone, secondaryDone bool
	var primaryErr error

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
			launchSecondary()
		case res := <-results:
			if res.err == nil {
				return res.val, nil
			}
			if res.isPrimary {
				primaryDone = true
				primaryErr = res.err
				launchSecondary()
			} else {
				secondaryDone = true
			}
			if primaryDone && secondaryDone {
				return zero, primaryErr
			}
		}
	}
}
