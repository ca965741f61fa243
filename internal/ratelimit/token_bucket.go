/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hookrelay/hookrelay/tokenbucket"
)

// TokenBucketLimiter adapts tokenbucket.Limiter to the Limiter interface.
type TokenBucketLimiter struct {
	limiter *tokenbucket.Limiter
}

// NewTokenBucketLimiter creates a new token bucket rate limiter.
func NewTokenBucketLimiter(capacity float64, refillRate Rate, maxKeys int) (*TokenBucketLimiter, error) {
	lim, err := tokenbucket.NewWithOpts(capacity, refillRate.PerSecond(), tokenbucket.Opts{MaxKeys: maxKeys})
	if err != nil {
		return nil, fmt.Errorf("new token bucket: %w", err)
	}
	return &TokenBucketLimiter{lim}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
// A cost above the bucket capacity is never allowed and gets no retry hint.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string, cost int) (allow bool, retryAfter time.Duration, err error) {
	res, err := l.limiter.Take(key, float64(cost))
	if err != nil {
		if errors.Is(err, tokenbucket.ErrCostExceedsCapacity) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return res.Allowed, res.RetryAfter, nil
}
