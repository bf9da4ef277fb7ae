package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
)

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), NewExponentialBackoff(time.Millisecond, 5*time.Millisecond, time.Second), "test", func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), NewExponentialBackoff(time.Millisecond, 5*time.Millisecond, time.Second), "test", func() error {
		calls++
		return backoff.Permanent(errors.New("bad request"))
	})

	assert.EqualError(t, err, "bad request")
	assert.Equal(t, 1, calls)
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, NewExponentialBackoff(time.Millisecond, 5*time.Millisecond, time.Second), "test", func() error {
		return errors.New("transient")
	})

	assert.Error(t, err)
}
