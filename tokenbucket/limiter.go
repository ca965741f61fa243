/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package tokenbucket provides a per-key token bucket rate limiter.
//
// Every key owns a bucket that starts full and refills continuously at a fixed rate,
// never exceeding its capacity. Refill is computed lazily from the wall-clock time
// elapsed since the previous call for the same key, so no background goroutine is needed.
package tokenbucket

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hookrelay/hookrelay/lrucache"
)

// MaxRetryAfter caps Result.RetryAfter for very slow refill rates.
const MaxRetryAfter = time.Duration(math.MaxInt64)

// ErrNegativeCost is returned by Take when the requested cost is negative.
var ErrNegativeCost = errors.New("cost must not be negative")

// ErrCostExceedsCapacity is returned by Take when the requested cost can never be satisfied.
var ErrCostExceedsCapacity = errors.New("cost exceeds bucket capacity")

// Opts represents options for the Limiter.
type Opts struct {
	// MaxKeys limits the number of tracked buckets.
	// When the limit is exceeded, the bucket of the least recently used key is dropped,
	// and this key gets a new full bucket when it comes back.
	// Zero means no limit.
	MaxKeys int

	// BucketsMetrics collects statistics of the buckets storage. Used only if MaxKeys > 0.
	BucketsMetrics lrucache.MetricsCollector
}

// Result describes the outcome of a single Take call.
type Result struct {
	Allowed bool
	// Remaining is the number of tokens left in the bucket after the call.
	Remaining float64
	// RetryAfter is the time after which the same request would be allowed. Zero if Allowed.
	RetryAfter time.Duration
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

type bucketStore interface {
	getOrCreate(key string, create func() *bucket) *bucket
	peek(key string) (*bucket, bool)
	len() int
}

// Limiter is a per-key token bucket rate limiter. It is safe for concurrent use.
type Limiter struct {
	capacity float64
	rate     float64 // tokens per second

	mu      sync.Mutex
	buckets bucketStore

	now func() time.Time
}

// New creates a new Limiter with the given bucket capacity and refill rate (tokens per second).
// The number of tracked keys is not limited.
func New(capacity, ratePerSecond float64) (*Limiter, error) {
	return NewWithOpts(capacity, ratePerSecond, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(capacity, ratePerSecond float64, opts Opts) (*Limiter, error) {
	if !(capacity > 0) || math.IsInf(capacity, 0) {
		return nil, fmt.Errorf("capacity must be a positive finite number, got %v", capacity)
	}
	if !(ratePerSecond > 0) || math.IsInf(ratePerSecond, 0) {
		return nil, fmt.Errorf("rate must be a positive finite number, got %v", ratePerSecond)
	}
	if opts.MaxKeys < 0 {
		return nil, fmt.Errorf("max keys must be greater or equal to 0 (no limit), got %d", opts.MaxKeys)
	}

	var store bucketStore = mapStore{}
	if opts.MaxKeys > 0 {
		cache, err := lrucache.New[string, *bucket](opts.MaxKeys, opts.BucketsMetrics)
		if err != nil {
			return nil, fmt.Errorf("new buckets cache: %w", err)
		}
		store = lruStore{cache}
	}
	return &Limiter{capacity: capacity, rate: ratePerSecond, buckets: store, now: time.Now}, nil
}

// Capacity returns the maximum number of tokens a bucket can hold.
func (l *Limiter) Capacity() float64 {
	return l.capacity
}

// Rate returns the refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	return l.rate
}

// Consume tries to take cost tokens from the bucket of the key.
// It returns true and subtracts the tokens if the bucket holds at least cost tokens,
// otherwise it returns false and leaves the bucket unchanged.
// Negative costs and costs above the capacity are always denied.
func (l *Limiter) Consume(key string, cost float64) bool {
	res, err := l.Take(key, cost)
	return err == nil && res.Allowed
}

// ConsumeOne is a shortcut for Consume(key, 1).
func (l *Limiter) ConsumeOne(key string) bool {
	return l.Consume(key, 1)
}

// Take is like Consume but reports the state of the bucket and how long to wait before retrying.
func (l *Limiter) Take(key string, cost float64) (Result, error) {
	if cost < 0 || math.IsNaN(cost) {
		return Result{}, ErrNegativeCost
	}
	if cost > l.capacity {
		return Result{}, ErrCostExceedsCapacity
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets.getOrCreate(key, func() *bucket {
		return &bucket{tokens: l.capacity, lastRefill: now}
	})
	l.refill(b, now)

	if b.tokens >= cost {
		b.tokens -= cost
		return Result{Allowed: true, Remaining: b.tokens}, nil
	}
	return Result{Allowed: false, Remaining: b.tokens, RetryAfter: l.refillTime(cost - b.tokens)}, nil
}

// refillTime returns how long it takes to refill the given number of tokens, capped at MaxRetryAfter.
func (l *Limiter) refillTime(tokens float64) time.Duration {
	d := math.Ceil(tokens / l.rate * float64(time.Second))
	if d >= float64(MaxRetryAfter) {
		return MaxRetryAfter
	}
	return time.Duration(d)
}

// Tokens returns the number of tokens the bucket of the key held after its last update.
// It neither refills the bucket nor creates it.
func (l *Limiter) Tokens(key string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets.peek(key)
	if !ok {
		return 0, false
	}
	return b.tokens, true
}

// Len returns the number of tracked buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buckets.len()
}

// refill adds tokens for the time elapsed since the last refill.
// A clock that did not move forward leaves the bucket untouched.
func (l *Limiter) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(l.capacity, b.tokens+elapsed.Seconds()*l.rate)
	b.lastRefill = now
}

type mapStore map[string]*bucket

func (s mapStore) getOrCreate(key string, create func() *bucket) *bucket {
	b, ok := s[key]
	if !ok {
		b = create()
		s[key] = b
	}
	return b
}

func (s mapStore) peek(key string) (*bucket, bool) {
	b, ok := s[key]
	return b, ok
}

func (s mapStore) len() int {
	return len(s)
}

type lruStore struct {
	cache *lrucache.LRUCache[string, *bucket]
}

func (s lruStore) getOrCreate(key string, create func() *bucket) *bucket {
	b, _ := s.cache.GetOrPut(key, create)
	return b
}

func (s lruStore) peek(key string) (*bucket, bool) {
	return s.cache.Peek(key)
}

func (s lruStore) len() int {
	return s.cache.Len()
}
