/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// PerSecond returns the rate in units per second.
func (r Rate) PerSecond() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Count) / r.Duration.Seconds()
}

// Limiter interface defines the rate limiting contract.
// Allow reports whether a request with the given key and cost may proceed.
// When it may not, retryAfter is a hint for the client on when to retry.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int) (allow bool, retryAfter time.Duration, err error)
}

// Alg is a rate limiting algorithm.
type Alg string

// Rate limiting algorithms.
const (
	AlgTokenBucket   Alg = "token_bucket"
	AlgLeakyBucket   Alg = "leaky_bucket"
	AlgSlidingWindow Alg = "sliding_window"
)

// Params are the parameters for constructing a Limiter via New.
type Params struct {
	Alg Alg

	// Capacity is the number of units a fresh key may spend at once with every algorithm:
	// the bucket size for the token bucket, the burst plus one emission for the leaky bucket
	// and the number of units per window for the sliding window.
	Capacity int

	// Rate is the refill rate (token bucket), the drain rate (leaky bucket) or the window (sliding window).
	Rate Rate

	// MaxKeys bounds the number of tracked keys. Zero means no limit.
	MaxKeys int
}

// New creates a Limiter for the given algorithm.
func New(params Params) (Limiter, error) {
	switch params.Alg {
	case AlgTokenBucket, "":
		return NewTokenBucketLimiter(float64(params.Capacity), params.Rate, params.MaxKeys)
	case AlgLeakyBucket:
		// GCRA admits MaxBurst+1 units at once.
		return NewLeakyBucketLimiter(params.Rate, params.Capacity-1, params.MaxKeys)
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(Rate{Count: params.Capacity, Duration: params.Rate.Duration}, params.MaxKeys)
	default:
		return nil, fmt.Errorf("unknown rate limiting algorithm %q", params.Alg)
	}
}
