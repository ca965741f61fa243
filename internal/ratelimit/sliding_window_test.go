/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// SlidingWindowLimiterTestSuite contains tests for SlidingWindowLimiter
type SlidingWindowLimiterTestSuite struct {
	suite.Suite
}

func TestSlidingWindowLimiter(t *testing.T) {
	suite.Run(t, new(SlidingWindowLimiterTestSuite))
}

func (ts *SlidingWindowLimiterTestSuite) TestInvalidRate() {
	_, err := NewSlidingWindowLimiter(Rate{Count: 0, Duration: time.Second}, 0)
	ts.Error(err)
	_, err = NewSlidingWindowLimiter(Rate{Count: 1}, 0)
	ts.Error(err)
}

func (ts *SlidingWindowLimiterTestSuite) TestAllowWithCost() {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 6, Duration: time.Minute}, 100)
	ts.Require().NoError(err)
	ctx := context.Background()

	allow, retryAfter, err := limiter.Allow(ctx, "client", 5)
	ts.NoError(err)
	ts.True(allow)
	ts.Zero(retryAfter)

	allow, retryAfter, err = limiter.Allow(ctx, "client", 5)
	ts.NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))
	ts.LessOrEqual(retryAfter, time.Minute)

	allow, _, err = limiter.Allow(ctx, "client", 1)
	ts.NoError(err)
	ts.True(allow)
}

func (ts *SlidingWindowLimiterTestSuite) TestKeysAreIndependent() {
	for _, maxKeys := range []int{0, 10} {
		limiter, err := NewSlidingWindowLimiter(Rate{Count: 1, Duration: time.Minute}, maxKeys)
		ts.Require().NoError(err)
		ctx := context.Background()

		allow, _, err := limiter.Allow(ctx, "key-1", 1)
		ts.NoError(err)
		ts.True(allow)
		allow, _, err = limiter.Allow(ctx, "key-1", 1)
		ts.NoError(err)
		ts.False(allow)
		allow, _, err = limiter.Allow(ctx, "key-2", 1)
		ts.NoError(err)
		ts.True(allow, "maxKeys=%d", maxKeys)
	}
}
