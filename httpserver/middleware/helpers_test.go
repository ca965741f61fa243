/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name         string
		remoteAddr   string
		headers      map[string]string
		trustProxy   bool
		wantClientIP string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:1234", wantClientIP: "10.0.0.1"},
		{name: "remote addr w/o port", remoteAddr: "10.0.0.1", wantClientIP: "10.0.0.1"},
		{
			name:         "forwarded for is ignored when proxy is not trusted",
			remoteAddr:   "10.0.0.1:1234",
			headers:      map[string]string{headerForwardedFor: "1.1.1.1"},
			wantClientIP: "10.0.0.1",
		},
		{
			name:         "first forwarded for entry",
			remoteAddr:   "10.0.0.1:1234",
			headers:      map[string]string{headerForwardedFor: " 1.1.1.1 , 2.2.2.2"},
			trustProxy:   true,
			wantClientIP: "1.1.1.1",
		},
		{
			name:         "real ip",
			remoteAddr:   "10.0.0.1:1234",
			headers:      map[string]string{headerRealIP: "3.3.3.3"},
			trustProxy:   true,
			wantClientIP: "3.3.3.3",
		},
		{
			name:         "no proxy headers",
			remoteAddr:   "[::1]:1234",
			trustProxy:   true,
			wantClientIP: "::1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tt.wantClientIP, GetClientIP(req, tt.trustProxy))
		})
	}
}

func TestWrapResponseWriterIfNeeded(t *testing.T) {
	rw := httptest.NewRecorder()
	wrw := WrapResponseWriterIfNeeded(rw, 1)
	require.Same(t, wrw, WrapResponseWriterIfNeeded(wrw, 1))
	wrw.WriteHeader(http.StatusTeapot)
	require.Equal(t, http.StatusTeapot, wrw.Status())
}
