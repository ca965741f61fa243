/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strings"
)

// Default values of CORS headers that are sent with every response.
const (
	DefaultCORSAllowedMethods = "POST,OPTIONS,GET"
	DefaultCORSAllowedHeaders = "Content-Type,x-api-key"
)

// CORSOpts represents options for the CORS middleware.
type CORSOpts struct {
	// AllowedOrigins is a list of origins that are echoed back in Access-Control-Allow-Origin.
	AllowedOrigins []string
	AllowedMethods string
	AllowedHeaders string
}

// CORS is a middleware that sets CORS headers and answers preflight requests with 204.
func CORS(opts CORSOpts) func(next http.Handler) http.Handler {
	if opts.AllowedMethods == "" {
		opts.AllowedMethods = DefaultCORSAllowedMethods
	}
	if opts.AllowedHeaders == "" {
		opts.AllowedHeaders = DefaultCORSAllowedHeaders
	}
	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			h := rw.Header()
			if origin := r.Header.Get("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}
			h.Set("Access-Control-Allow-Methods", opts.AllowedMethods)
			h.Set("Access-Control-Allow-Headers", opts.AllowedHeaders)
			if r.Method == http.MethodOptions {
				rw.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(rw, r)
		})
	}
}
