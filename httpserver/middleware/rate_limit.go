/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hookrelay/hookrelay/internal/ratelimit"
	"github.com/hookrelay/hookrelay/log"
	"github.com/hookrelay/hookrelay/restapi"
)

// RateLimitLogFieldKey it is the name of the logged field that contains a key for the requests rate limiter.
const RateLimitLogFieldKey = "rate_limit_key"

// RateLimitParams contains data that relates to the rate limiting procedure
// and could be used for rejecting or handling an occurred error.
type RateLimitParams struct {
	ErrDomain          string
	ResponseStatusCode int
	Key                string
	Cost               int
	RetryAfter         time.Duration
}

// RateLimitGetKeyFunc returns a key for rate limiting by an HTTP request.
// If bypass is true, the request is not limited.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitGetCostFunc returns how many tokens the request consumes.
type RateLimitGetCostFunc func(r *http.Request) int

// RateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type RateLimitOnRejectFunc func(rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger)

// RateLimitOnErrorFunc is a function that is called for rejecting HTTP request when an error occurred during rate limiting.
type RateLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	GetKey             RateLimitGetKeyFunc
	GetCost            RateLimitGetCostFunc
	ResponseStatusCode int
	DryRun             bool
	OnReject           RateLimitOnRejectFunc
	OnRejectInDryRun   RateLimitOnRejectFunc
	OnError            RateLimitOnErrorFunc
}

type rateLimitHandler struct {
	next      http.Handler
	limiter   ratelimit.Limiter
	errDomain string
	opts      RateLimitOpts
}

// RateLimit is a middleware that limits the rate of HTTP requests. By default, requests are keyed by client IP.
func RateLimit(limiter ratelimit.Limiter, errDomain string) func(next http.Handler) http.Handler {
	return RateLimitWithOpts(limiter, errDomain, RateLimitOpts{})
}

// RateLimitWithOpts is a more configurable version of a middleware that limits the rate of HTTP requests.
func RateLimitWithOpts(limiter ratelimit.Limiter, errDomain string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	if opts.GetKey == nil {
		opts.GetKey = func(r *http.Request) (string, bool, error) {
			return GetClientIP(r, false), false, nil
		}
	}
	if opts.GetCost == nil {
		opts.GetCost = func(*http.Request) int { return 1 }
	}
	if opts.ResponseStatusCode == 0 {
		opts.ResponseStatusCode = http.StatusTooManyRequests
	}
	if opts.OnReject == nil {
		opts.OnReject = DefaultRateLimitOnReject
	}
	if opts.OnRejectInDryRun == nil {
		opts.OnRejectInDryRun = DefaultRateLimitOnRejectInDryRun
	}
	if opts.OnError == nil {
		opts.OnError = DefaultRateLimitOnError
	}
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{next: next, limiter: limiter, errDomain: errDomain, opts: opts}
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	params := RateLimitParams{ErrDomain: h.errDomain, ResponseStatusCode: h.opts.ResponseStatusCode}
	logger := GetLoggerFromContext(r.Context())

	key, bypass, err := h.opts.GetKey(r)
	if err != nil {
		h.opts.OnError(rw, r, params, err, h.next, logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}
	params.Key = key
	params.Cost = h.opts.GetCost(r)
	r = r.WithContext(NewContextWithRateLimitKey(r.Context(), key))

	allow, retryAfter, err := h.limiter.Allow(r.Context(), key, params.Cost)
	if err != nil {
		h.opts.OnError(rw, r, params, err, h.next, logger)
		return
	}
	if allow {
		h.next.ServeHTTP(rw, r)
		return
	}
	params.RetryAfter = retryAfter
	if h.opts.DryRun {
		h.opts.OnRejectInDryRun(rw, r, params, h.next, logger)
		return
	}
	h.opts.OnReject(rw, r, params, h.next, logger)
}

// DefaultRateLimitOnReject responds with 429 and Retry-After header when the rate limit is exceeded.
func DefaultRateLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(log.String(RateLimitLogFieldKey, params.Key))
	}
	rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(params.RetryAfter.Seconds()))))
	apiErr := restapi.NewError(params.ErrDomain, restapi.ErrCodeTooManyRequests, restapi.ErrMessageTooManyRequests)
	restapi.RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}

// DefaultRateLimitOnError responds with 500 when an error occurs during rate limiting.
func DefaultRateLimitOnError(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error("rate limiting error", log.String(RateLimitLogFieldKey, params.Key), log.Error(err))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

// DefaultRateLimitOnRejectInDryRun lets the request through and logs that it would have been rejected.
func DefaultRateLimitOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Warn("too many requests, serving will be continued because of dry run mode",
			log.String(RateLimitLogFieldKey, params.Key), log.Int("rate_limit_cost", params.Cost))
	}
	next.ServeHTTP(rw, r)
}
