package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	err := RetryWithConfig(context.Background(), &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2,
		RetryIf:      DefaultRetryIf,
	}, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := RetryWithConfig(context.Background(), &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		RetryIf:      DefaultRetryIf,
	}, func(ctx context.Context) error {
		attempts++
		return errors.New("always fails")
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	permanent := &PermanentError{Err: errors.New("bad input")}
	err := RetryWithConfig(context.Background(), DefaultConfig(), func(ctx context.Context) error {
		attempts++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New("fails")
	})

	require.Error(t, err)
	assert.Equal(t, 0, attempts)
}

func TestTierMoveConfigSchedule(t *testing.T) {
	cfg := TierMoveConfig()

	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.MaxDelay)

	r := New(cfg)
	assert.Equal(t, 500*time.Millisecond, r.nextDelay(100*time.Millisecond))
	assert.Equal(t, 2*time.Second, r.nextDelay(500*time.Millisecond))
	assert.Equal(t, 2*time.Second, r.nextDelay(2*time.Second))
}
