package source

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	require.NoError(t, ClassifyStatus("u", http.StatusOK))
	require.ErrorIs(t, ClassifyStatus("u", http.StatusNotFound), ErrNotFound)
	require.ErrorIs(t, ClassifyStatus("u", http.StatusForbidden), ErrNotFound)
	require.True(t, IsTransient(ClassifyStatus("u", http.StatusTooManyRequests)))
	require.True(t, IsTransient(ClassifyStatus("u", http.StatusBadGateway)))
}

func fastPolicy(attempts int) *RetryPolicy {
	return NewRetryPolicy(RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond})
}

func TestRetryPolicyRetriesTransient(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return &TransientError{URL: "u", StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryPolicyStopsOnNotFound(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy(4).Do(context.Background(), func(context.Context) error {
		calls++
		return ErrNotFound
	})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, calls)
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		return &TransientError{URL: "u", Err: errors.New("reset")}
	})
	require.True(t, IsTransient(err))
	require.Equal(t, 3, calls)
}

func TestBackoffCapped(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 400 * time.Millisecond})
	for n := 0; n < 8; n++ {
		require.LessOrEqual(t, p.Backoff(n), 400*time.Millisecond)
	}
}

func visitFrom(results map[int]error) VisitFunc {
	return func(_ context.Context, n int) error {
		if err, ok := results[n]; ok {
			return err
		}
		return ErrNotFound
	}
}

func TestEnumerateDenseStopsAtFirstNotFound(t *testing.T) {
	t.Parallel()

	out, err := Enumerate(context.Background(), EnumerateOptions{Dense: true}, visitFrom(map[int]error{
		1: nil, 2: nil, 3: ErrEmpty, 4: nil,
	}))
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 4}, out.Found)
	require.Contains(t, out.Failed, 3)
	require.Equal(t, StopNotFound, out.Stop)
	require.Equal(t, 5, out.Last)
}

func TestEnumerateSparseToleratesFourMisses(t *testing.T) {
	t.Parallel()

	out, err := Enumerate(context.Background(), EnumerateOptions{Max: 20}, visitFrom(map[int]error{
		1: nil, 6: nil,
	}))
	require.NoError(t, err)
	require.Equal(t, []int{1, 6}, out.Found)
	require.Equal(t, StopMisses, out.Stop)
	require.Equal(t, 11, out.Last)
}

func TestEnumerateSparseStopsAfterFiveMisses(t *testing.T) {
	t.Parallel()

	out, err := Enumerate(context.Background(), EnumerateOptions{Max: 20}, visitFrom(map[int]error{
		1: nil, 7: nil,
	}))
	require.NoError(t, err)
	require.Equal(t, []int{1}, out.Found)
	require.Equal(t, 6, out.Last)
}

func TestEnumerateSparseCountsFailuresAsMisses(t *testing.T) {
	t.Parallel()

	boom := &TransientError{URL: "u", StatusCode: 503}
	out, err := Enumerate(context.Background(), EnumerateOptions{Max: 3, MissThreshold: 5}, visitFrom(map[int]error{
		1: nil, 2: boom, 3: nil,
	}))
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, out.Found)
	require.Equal(t, boom, out.Failed[2])
	require.Equal(t, StopMax, out.Stop)
}

func TestEnumerateSparseRequiresMax(t *testing.T) {
	t.Parallel()

	_, err := Enumerate(context.Background(), EnumerateOptions{}, visitFrom(nil))
	require.Error(t, err)
}

func TestEnumerateCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	out, err := Enumerate(ctx, EnumerateOptions{Dense: true}, func(_ context.Context, n int) error {
		if n == 2 {
			cancel()
		}
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StopCancelled, out.Stop)
	require.Equal(t, []int{1, 2}, out.Found)
}
