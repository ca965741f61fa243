/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/hookrelay/hookrelay/lrucache"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
type SlidingWindowLimiter struct {
	getLimiter func(key string) *slidingwindow.Limiter
	maxRate    Rate
}

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
// With maxKeys == 0 the number of tracked keys is not limited.
func NewSlidingWindowLimiter(maxRate Rate, maxKeys int) (*SlidingWindowLimiter, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("sliding window requires positive count and duration, got %d per %s",
			maxRate.Count, maxRate.Duration)
	}
	newWindowLimiter := func() *slidingwindow.Limiter {
		lim, _ := slidingwindow.NewLimiter(
			maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
				return slidingwindow.NewLocalWindow()
			})
		return lim
	}

	if maxKeys == 0 {
		var mu sync.Mutex
		limiters := make(map[string]*slidingwindow.Limiter)
		return &SlidingWindowLimiter{
			maxRate: maxRate,
			getLimiter: func(key string) *slidingwindow.Limiter {
				mu.Lock()
				defer mu.Unlock()
				lim, ok := limiters[key]
				if !ok {
					lim = newWindowLimiter()
					limiters[key] = lim
				}
				return lim
			},
		}, nil
	}

	store, err := lrucache.New[string, *slidingwindow.Limiter](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		getLimiter: func(key string) *slidingwindow.Limiter {
			lim, _ := store.GetOrPut(key, newWindowLimiter)
			return lim
		},
	}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string, cost int) (allow bool, retryAfter time.Duration, err error) {
	now := time.Now()
	if l.getLimiter(key).AllowN(now, int64(cost)) {
		return true, 0, nil
	}
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}
