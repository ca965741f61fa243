/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"

	"github.com/hookrelay/hookrelay/log"
	"github.com/hookrelay/hookrelay/restapi"
)

// InFlightLimitErrCode is an error code that is used in a response body
// if the request is rejected by the middleware that limits in-flight HTTP requests.
const InFlightLimitErrCode = "tooManyInFlightRequests"

// InFlightLimitErrMessage is an error message that is used in a response body
// if the request is rejected by the middleware that limits in-flight HTTP requests.
const InFlightLimitErrMessage = "Too many in-flight requests."

// InFlightLimitOpts represents options for the InFlightLimit middleware.
type InFlightLimitOpts struct {
	// ResponseStatusCode is returned for rejected requests. 503 by default.
	ResponseStatusCode int
	// OnReject is called instead of the default JSON error response.
	OnReject func(rw http.ResponseWriter, r *http.Request, logger log.FieldLogger)
}

type inFlightLimitHandler struct {
	next   http.Handler
	slots  chan struct{}
	domain string
	opts   InFlightLimitOpts
}

// InFlightLimit is a middleware that limits the total number of currently served (in-flight) HTTP requests.
// Requests over the limit are rejected immediately.
func InFlightLimit(limit int, errDomain string) (func(next http.Handler) http.Handler, error) {
	return InFlightLimitWithOpts(limit, errDomain, InFlightLimitOpts{})
}

// InFlightLimitWithOpts is a more configurable version of InFlightLimit.
func InFlightLimitWithOpts(limit int, errDomain string, opts InFlightLimitOpts) (func(next http.Handler) http.Handler, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit should be positive, got %d", limit)
	}
	if opts.ResponseStatusCode == 0 {
		opts.ResponseStatusCode = http.StatusServiceUnavailable
	}
	slots := make(chan struct{}, limit)
	return func(next http.Handler) http.Handler {
		return &inFlightLimitHandler{next: next, slots: slots, domain: errDomain, opts: opts}
	}, nil
}

func (h *inFlightLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	select {
	case h.slots <- struct{}{}:
	default:
		logger := GetLoggerFromContext(r.Context())
		if h.opts.OnReject != nil {
			h.opts.OnReject(rw, r, logger)
			return
		}
		if logger != nil {
			logger.Warn("too many in-flight requests, request is rejected", log.Int("in_flight_limit", cap(h.slots)))
		}
		restapi.RespondError(rw, h.opts.ResponseStatusCode,
			restapi.NewError(h.domain, InFlightLimitErrCode, InFlightLimitErrMessage), logger)
		return
	}
	defer func() { <-h.slots }()
	h.next.ServeHTTP(rw, r)
}
