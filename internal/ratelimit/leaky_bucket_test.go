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

// LeakyBucketLimiterTestSuite contains tests for LeakyBucketLimiter
type LeakyBucketLimiterTestSuite struct {
	suite.Suite
}

func TestLeakyBucketLimiter(t *testing.T) {
	suite.Run(t, new(LeakyBucketLimiterTestSuite))
}

func (ts *LeakyBucketLimiterTestSuite) TestAllowSequential() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 1, Duration: time.Minute}, 2, 100)
	ts.Require().NoError(err)
	ctx := context.Background()

	// The burst plus the first emission interval.
	for i := 0; i < 3; i++ {
		allow, retryAfter, err := limiter.Allow(ctx, "test-key", 1)
		ts.NoError(err)
		ts.True(allow, "request %d", i+1)
		ts.Zero(retryAfter)
	}

	allow, retryAfter, err := limiter.Allow(ctx, "test-key", 1)
	ts.NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))

	allow, _, err = limiter.Allow(ctx, "other-key", 1)
	ts.NoError(err)
	ts.True(allow)
}

func (ts *LeakyBucketLimiterTestSuite) TestAllowWithCost() {
	limiter, err := NewLeakyBucketLimiter(Rate{Count: 1, Duration: time.Minute}, 4, 0)
	ts.Require().NoError(err)
	ctx := context.Background()

	allow, _, err := limiter.Allow(ctx, "test-key", 5)
	ts.NoError(err)
	ts.True(allow)

	allow, retryAfter, err := limiter.Allow(ctx, "test-key", 1)
	ts.NoError(err)
	ts.False(allow)
	ts.Greater(retryAfter, time.Duration(0))
}
