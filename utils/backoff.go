package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewExponentialBackoff creates a new exponential backoff configuration
func NewExponentialBackoff(initial, max, maxElapsed time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = maxElapsed
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.1
	return b
}

// Retry runs op until it succeeds, returns a backoff.Permanent error,
// the policy gives up, or ctx is done. Each retry is logged.
func Retry(ctx context.Context, policy backoff.BackOff, what string, op func() error) error {
	return backoff.RetryNotify(op, backoff.WithContext(policy, ctx),
		func(err error, wait time.Duration) {
			Logger.Warnw("Retrying after error",
				"operation", what,
				"error", err,
				"wait", wait,
			)
		})
}
