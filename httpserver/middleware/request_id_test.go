/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type mockRequestIDNextHandler struct {
	called            int
	requestID         string
	internalRequestID string
}

func (h *mockRequestIDNextHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.called++
	h.requestID = GetRequestIDFromContext(r.Context())
	h.internalRequestID = GetInternalRequestIDFromContext(r.Context())
}

func TestRequestIDHandler_ServeHTTP(t *testing.T) {
	opts := RequestIDOpts{
		GenerateID:         func() string { return "generated-id" },
		GenerateInternalID: func() string { return "generated-int-id" },
	}

	tests := []struct {
		name          string
		headerValue   string
		wantRequestID string
	}{
		{name: "no header", headerValue: "", wantRequestID: "generated-id"},
		{name: "acceptable header", headerValue: "my-request-id", wantRequestID: "my-request-id"},
		{name: "too long header", headerValue: strings.Repeat("a", MaxRequestIDLength+1), wantRequestID: "generated-id"},
		{name: "header with control characters", headerValue: "id\x01", wantRequestID: "generated-id"},
		{name: "header with non-ASCII characters", headerValue: "идентификатор", wantRequestID: "generated-id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.headerValue != "" {
				req.Header.Set(headerRequestID, tt.headerValue)
			}
			resp := httptest.NewRecorder()
			next := &mockRequestIDNextHandler{}

			RequestIDWithOpts(opts)(next).ServeHTTP(resp, req)

			require.Equal(t, 1, next.called)
			require.Equal(t, tt.wantRequestID, next.requestID)
			require.Equal(t, "generated-int-id", next.internalRequestID)
			require.Equal(t, tt.wantRequestID, resp.Header().Get(headerRequestID))
			require.Equal(t, "generated-int-id", resp.Header().Get(headerInternalRequestID))
		})
	}

	t.Run("default generators", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		resp := httptest.NewRecorder()
		next := &mockRequestIDNextHandler{}
		RequestID()(next).ServeHTTP(resp, req)
		require.Len(t, next.requestID, 20)
		require.Len(t, next.internalRequestID, 20)
		require.NotEqual(t, next.requestID, next.internalRequestID)
	})
}
