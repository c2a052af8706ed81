package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	res := Run(context.Background(), RetryPolicy{MaxAttempts: 3, BackoffMs: 1}, func(error) bool { return true }, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, res.Err)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, 3, calls)
}

func TestRetryStopsWhenShouldRetryFalse(t *testing.T) {
	calls := 0
	res := Run(context.Background(), RetryPolicy{MaxAttempts: 5, BackoffMs: 1}, func(error) bool { return false }, func(attempt int) error {
		calls++
		return errors.New("permanent")
	})
	require.Error(t, res.Err)
	require.Equal(t, 1, calls)
	require.Equal(t, 1, res.Attempts)
}

func TestRetryDelayGeometric(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 4, BackoffMs: 100}
	require.Equal(t, int64(0), p.Delay(1).Milliseconds())
	require.Equal(t, int64(100), p.Delay(2).Milliseconds())
	require.Equal(t, int64(200), p.Delay(3).Milliseconds())
	require.Equal(t, int64(400), p.Delay(4).Milliseconds())
}
