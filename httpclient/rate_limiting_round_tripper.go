/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// Response headers the remote side (e.g. a Discord webhook) uses to announce its own limits.
const (
	RateLimitRemainingHeader  = "X-RateLimit-Remaining"
	RateLimitResetAfterHeader = "X-RateLimit-Reset-After"
)

var errServerPauseExceedsWait = errors.New("server requested pause exceeds the wait deadline")

// RateLimitingRoundTripperOpts represents options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration

	// ObeyServerLimits makes the round tripper hold further requests when the remote side reports
	// an exhausted bucket (X-RateLimit-Remaining: 0 with X-RateLimit-Reset-After) or answers 429 with Retry-After.
	ObeyServerLimits bool
}

// RateLimitingRoundTripper wraps an http.RoundTripper and limits the rate of outgoing requests.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	RateLimit        int
	Burst            int
	WaitTimeout      time.Duration
	ObeyServerLimits bool

	rateLimiter *rate.Limiter
	now         func() time.Time

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with specified rate limit (requests per second).
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper with specified rate limit and options.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if rateLimit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst must be positive")
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}
	return &RateLimitingRoundTripper{
		Delegate:         delegate,
		RateLimit:        rateLimit,
		Burst:            opts.Burst,
		WaitTimeout:      opts.WaitTimeout,
		ObeyServerLimits: opts.ObeyServerLimits,
		rateLimiter:      rate.NewLimiter(rate.Limit(rateLimit), opts.Burst),
		now:              time.Now,
	}, nil
}

// RoundTrip waits until a pause requested by the server is over and the local limiter admits the request,
// then executes it. Both waits together are bounded by WaitTimeout.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(r.Context(), rt.WaitTimeout)
	defer cancel()

	err := rt.waitServerPause(ctx)
	if err == nil {
		err = rt.rateLimiter.Wait(ctx)
	}
	if err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, &RateLimitingWaitError{Inner: err}
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil {
		return resp, err
	}
	if rt.ObeyServerLimits {
		if pause := serverRequestedPause(resp); pause > 0 {
			rt.pauseFor(pause)
		}
	}
	return resp, nil
}

func (rt *RateLimitingRoundTripper) pauseFor(d time.Duration) {
	until := rt.now().Add(d)
	rt.mu.Lock()
	if until.After(rt.pausedUntil) {
		rt.pausedUntil = until
	}
	rt.mu.Unlock()
}

func (rt *RateLimitingRoundTripper) waitServerPause(ctx context.Context) error {
	rt.mu.Lock()
	pausedUntil := rt.pausedUntil
	rt.mu.Unlock()

	now := rt.now()
	if !pausedUntil.After(now) {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && pausedUntil.After(deadline) {
		return errServerPauseExceedsWait
	}
	timer := time.NewTimer(pausedUntil.Sub(now))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// serverRequestedPause returns how long the remote side asked to wait before the next request.
func serverRequestedPause(resp *http.Response) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if d := parseSecondsHeader(resp.Header.Get("Retry-After")); d > 0 {
			return d
		}
	}
	if resp.Header.Get(RateLimitRemainingHeader) == "0" {
		return parseSecondsHeader(resp.Header.Get(RateLimitResetAfterHeader))
	}
	return 0
}

// parseSecondsHeader parses a possibly fractional number of seconds ("1", "0.25").
func parseSecondsHeader(v string) time.Duration {
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 || secs > float64(time.Hour/time.Second) {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// RateLimitingWaitError is returned by RateLimitingRoundTripper when the wait for the limiter failed.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}
