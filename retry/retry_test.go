/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errTemporary = errors.New("temporary")
var errPermanent = errors.New("permanent")

func TestDoWithRetry(t *testing.T) {
	t.Run("succeeds after retries", func(t *testing.T) {
		calls, notified := 0, 0
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), nil,
			func(error, time.Duration) { notified++ },
			func(context.Context) error {
				calls++
				if calls < 3 {
					return errTemporary
				}
				return nil
			})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
		require.Equal(t, 2, notified)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := DoWithRetry(context.Background(), NewExponentialBackoffPolicy(time.Millisecond, 2), nil, nil,
			func(context.Context) error {
				calls++
				return errTemporary
			})
		require.ErrorIs(t, err, errTemporary)
		require.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		isRetryable := func(err error) bool { return !errors.Is(err, errPermanent) }
		err := DoWithRetry(context.Background(), NewConstantBackoffPolicy(time.Millisecond, 5), isRetryable, nil,
			func(context.Context) error {
				calls++
				return errPermanent
			})
		require.ErrorIs(t, err, errPermanent)
		require.Equal(t, 1, calls)
	})

	t.Run("stops on canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := DoWithRetry(ctx, NewConstantBackoffPolicy(time.Hour, 0), nil, nil,
			func(context.Context) error {
				calls++
				cancel()
				return errTemporary
			})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})
}

func TestExponentialBackoffPolicy_Multiplier(t *testing.T) {
	b := ExponentialBackoffPolicy{InitialInterval: 100 * time.Millisecond, Multiplier: 3, MaxAttempts: 2}.NewBackOff()
	first := b.NextBackOff()
	require.Greater(t, first, time.Duration(0))
	require.LessOrEqual(t, first, 150*time.Millisecond)
	second := b.NextBackOff()
	require.Greater(t, second, 100*time.Millisecond)
	require.Equal(t, time.Duration(-1), b.NextBackOff())
}
