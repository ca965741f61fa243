/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package tokenbucket

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func newTestLimiter(t *testing.T, capacity, rate float64, opts Opts) (*Limiter, *fakeClock) {
	t.Helper()
	l, err := NewWithOpts(capacity, rate, opts)
	require.NoError(t, err)
	clock := newFakeClock()
	l.now = clock.Now
	return l, clock
}

func TestNew_InvalidArgs(t *testing.T) {
	tests := []struct {
		name     string
		capacity float64
		rate     float64
		opts     Opts
	}{
		{name: "zero capacity", capacity: 0, rate: 1},
		{name: "negative capacity", capacity: -5, rate: 1},
		{name: "NaN capacity", capacity: math.NaN(), rate: 1},
		{name: "infinite capacity", capacity: math.Inf(1), rate: 1},
		{name: "zero rate", capacity: 1, rate: 0},
		{name: "negative rate", capacity: 1, rate: -1},
		{name: "negative max keys", capacity: 1, rate: 1, opts: Opts{MaxKeys: -1}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithOpts(tt.capacity, tt.rate, tt.opts)
			require.Error(t, err)
		})
	}
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	l, clock := newTestLimiter(t, 5, 1, Opts{})

	for i := 0; i < 5; i++ {
		require.True(t, l.Consume("k", 1), "request %d", i+1)
	}
	require.False(t, l.Consume("k", 1))

	clock.Advance(time.Second)
	require.True(t, l.Consume("k", 1))
	require.False(t, l.Consume("k", 1))
}

func TestLimiter_RetryAfter(t *testing.T) {
	l, _ := newTestLimiter(t, 4, 2, Opts{})
	res, err := l.Take("k", 3)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = l.Take("k", 2)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, 500*time.Millisecond, res.RetryAfter)
}

func TestLimiter_RetryAfterSlowRate(t *testing.T) {
	l, _ := newTestLimiter(t, 1, 1e-11, Opts{})
	require.True(t, l.Consume("k", 1))

	res, err := l.Take("k", 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	require.Equal(t, MaxRetryAfter, res.RetryAfter)
}

func TestLimiter_FractionalRefill(t *testing.T) {
	l, clock := newTestLimiter(t, 10, 4, Opts{})

	require.True(t, l.Consume("k", 10))
	clock.Advance(250 * time.Millisecond)

	res, err := l.Take("k", 2)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.InDelta(t, 1.0, res.Remaining, 1e-9)
	assert.Equal(t, 250*time.Millisecond, res.RetryAfter)

	clock.Advance(250 * time.Millisecond)
	res, err = l.Take("k", 2)
	require.NoError(t, err)
	require.True(t, res.Allowed)
	assert.InDelta(t, 0.0, res.Remaining, 1e-9)
	assert.Zero(t, res.RetryAfter)
}

func TestLimiter_NeverExceedsCapacity(t *testing.T) {
	l, clock := newTestLimiter(t, 3, 100, Opts{})

	require.True(t, l.Consume("k", 1))
	clock.Advance(time.Hour)
	require.True(t, l.Consume("k", 0))
	tokens, ok := l.Tokens("k")
	require.True(t, ok)
	require.Equal(t, 3.0, tokens)

	require.True(t, l.Consume("k", 3))
	require.False(t, l.Consume("k", 0.5))
	tokens, _ = l.Tokens("k")
	require.Equal(t, 0.0, tokens)
}

func TestLimiter_DeniedLeavesTokensUnchanged(t *testing.T) {
	l, _ := newTestLimiter(t, 5, 1, Opts{})

	require.True(t, l.Consume("k", 3))
	require.False(t, l.Consume("k", 3))
	tokens, _ := l.Tokens("k")
	require.Equal(t, 2.0, tokens)
	require.True(t, l.Consume("k", 2))
}

func TestLimiter_ClockGoingBackwards(t *testing.T) {
	l, clock := newTestLimiter(t, 5, 1, Opts{})

	require.True(t, l.Consume("k", 2))
	clock.Advance(-10 * time.Second)
	require.True(t, l.Consume("k", 1))
	tokens, _ := l.Tokens("k")
	require.Equal(t, 2.0, tokens)

	// Refill is measured from the last forward-moving instant.
	clock.Advance(11 * time.Second)
	require.True(t, l.Consume("k", 0))
	tokens, _ = l.Tokens("k")
	require.Equal(t, 3.0, tokens)
}

func TestLimiter_IndependentKeys(t *testing.T) {
	l, _ := newTestLimiter(t, 2, 1, Opts{})

	require.True(t, l.Consume("a", 2))
	require.False(t, l.Consume("a", 1))
	require.True(t, l.Consume("b", 2))
	require.Equal(t, 2, l.Len())

	_, ok := l.Tokens("c")
	require.False(t, ok)
	require.Equal(t, 2, l.Len())
}

func TestLimiter_InvalidCost(t *testing.T) {
	l, _ := newTestLimiter(t, 5, 1, Opts{})

	_, err := l.Take("k", -1)
	require.ErrorIs(t, err, ErrNegativeCost)
	require.False(t, l.Consume("k", -1))

	_, err = l.Take("k", 6)
	require.ErrorIs(t, err, ErrCostExceedsCapacity)
	require.False(t, l.Consume("k", 6))

	// Rejected calls do not create buckets.
	require.Equal(t, 0, l.Len())
}

func TestLimiter_MaxKeys(t *testing.T) {
	l, _ := newTestLimiter(t, 1, 0.001, Opts{MaxKeys: 2})

	require.True(t, l.ConsumeOne("a"))
	require.True(t, l.ConsumeOne("b"))
	require.False(t, l.ConsumeOne("a")) // "a" becomes the most recently used key.
	require.True(t, l.ConsumeOne("c"))  // "b" is dropped.
	require.Equal(t, 2, l.Len())

	_, ok := l.Tokens("b")
	require.False(t, ok)
	require.True(t, l.ConsumeOne("b")) // New full bucket.
	require.False(t, l.ConsumeOne("b"))
}

func TestLimiter_Concurrent(t *testing.T) {
	const capacity = 100
	l, _ := newTestLimiter(t, capacity, 1, Opts{})

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if l.ConsumeOne("shared") {
					allowed.Inc()
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(capacity), allowed.Load())
}

func ExampleLimiter_Consume() {
	limiter, err := New(5, 1)
	if err != nil {
		panic(err)
	}
	for i := 1; i <= 6; i++ {
		fmt.Printf("request %d allowed: %v\n", i, limiter.Consume("client-1", 1))
	}
	fmt.Println("other client allowed:", limiter.Consume("client-2", 1))

	// Output:
	// request 1 allowed: true
	// request 2 allowed: true
	// request 3 allowed: true
	// request 4 allowed: true
	// request 5 allowed: true
	// request 6 allowed: false
	// other client allowed: true
}
