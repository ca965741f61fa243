/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRate_PerSecond(t *testing.T) {
	require.Equal(t, 500.0, Rate{Count: 500, Duration: time.Second}.PerSecond())
	require.Equal(t, 0.5, Rate{Count: 30, Duration: time.Minute}.PerSecond())
	require.Zero(t, Rate{Count: 1}.PerSecond())
}

func TestNew(t *testing.T) {
	rate := Rate{Count: 10, Duration: time.Second}
	tests := []struct {
		alg     Alg
		want    Limiter
		wantErr bool
	}{
		{alg: "", want: &TokenBucketLimiter{}},
		{alg: AlgTokenBucket, want: &TokenBucketLimiter{}},
		{alg: AlgLeakyBucket, want: &LeakyBucketLimiter{}},
		{alg: AlgSlidingWindow, want: &SlidingWindowLimiter{}},
		{alg: "fixed_window", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.alg), func(t *testing.T) {
			lim, err := New(Params{Alg: tt.alg, Capacity: 10, Rate: rate, MaxKeys: 5})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.IsType(t, tt.want, lim)

			allow, _, err := lim.Allow(context.Background(), "key", 1)
			require.NoError(t, err)
			require.True(t, allow)
		})
	}
}

func TestNew_CapacityIsBurst(t *testing.T) {
	for _, alg := range []Alg{AlgTokenBucket, AlgLeakyBucket, AlgSlidingWindow} {
		alg := alg
		t.Run(string(alg), func(t *testing.T) {
			lim, err := New(Params{Alg: alg, Capacity: 3, Rate: Rate{Count: 1, Duration: time.Hour}})
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				allow, _, allowErr := lim.Allow(context.Background(), "key", 1)
				require.NoError(t, allowErr)
				require.True(t, allow, "request %d", i+1)
			}
			allow, _, err := lim.Allow(context.Background(), "key", 1)
			require.NoError(t, err)
			require.False(t, allow)
		})
	}
}
