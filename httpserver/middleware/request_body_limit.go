/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/hookrelay/hookrelay/log"
	"github.com/hookrelay/hookrelay/restapi"
)

// RequestBodyLimit returns a middleware that rejects request bodies larger than maxSizeBytes with 413.
// A declared Content-Length is checked up front, a chunked body fails while it is being decoded.
// GET, HEAD and OPTIONS requests pass through untouched: the relay reads their input from the query only.
func RequestBodyLimit(maxSizeBytes uint64, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if !methodHasBody(r.Method) {
				next.ServeHTTP(rw, r)
				return
			}
			if r.ContentLength > 0 && uint64(r.ContentLength) > maxSizeBytes {
				logger := GetLoggerFromContext(r.Context())
				if logger != nil {
					logger = logger.With(log.Int64("content_length", r.ContentLength), log.Int64("max_body_size", int64(maxSizeBytes))) //nolint:gosec // limit comes from config
				}
				restapi.RespondMalformedRequestError(rw, errDomain, restapi.NewTooLargeMalformedRequestError(maxSizeBytes), logger)
				return
			}
			restapi.SetRequestMaxBodySize(rw, r, maxSizeBytes)
			next.ServeHTTP(rw, r)
		})
	}
}

func methodHasBody(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
