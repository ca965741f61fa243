/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRequestJSON(t *testing.T) {
	type payload struct {
		Content string `json:"content"`
	}

	tests := []struct {
		name        string
		body        string
		contentType string
		opts        DecodeOpts
		want        payload
		wantCode    int
	}{
		{name: "ok", body: `{"content":"hi"}`, contentType: "application/json; charset=utf-8", want: payload{"hi"}},
		{name: "no content type", body: `{"content":"hi"}`, want: payload{"hi"}},
		{name: "empty body", body: ``, wantCode: http.StatusBadRequest},
		{name: "empty body allowed", body: ``, opts: DecodeOpts{AllowEmptyBody: true}},
		{name: "broken json", body: `{"content":`, wantCode: http.StatusBadRequest},
		{name: "syntax error", body: `{"content" "hi"}`, wantCode: http.StatusBadRequest},
		{name: "wrong type", body: `{"content":1}`, wantCode: http.StatusBadRequest},
		{name: "unknown field", body: `{"x":1}`, opts: DecodeOpts{DisallowUnknownFields: true}, wantCode: http.StatusBadRequest},
		{name: "two objects", body: `{}{}`, wantCode: http.StatusBadRequest},
		{name: "unsupported media type", body: `{}`, contentType: "text/plain", wantCode: http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			var got payload
			err := DecodeRequestJSONWithOpts(req, &got, tt.opts)
			if tt.wantCode != 0 {
				var reqErr *MalformedRequestError
				require.True(t, errors.As(err, &reqErr), "unexpected error %v", err)
				require.Equal(t, tt.wantCode, reqErr.HTTPStatusCode)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSetRequestMaxBodySize(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"content":"0123456789"}`))
	SetRequestMaxBodySize(httptest.NewRecorder(), req, 8)

	var dst map[string]string
	err := DecodeRequestJSON(req, &dst)
	var reqErr *MalformedRequestError
	require.True(t, errors.As(err, &reqErr))
	require.Equal(t, http.StatusRequestEntityTooLarge, reqErr.HTTPStatusCode)
	require.Equal(t, "Request body must not be larger than 8B.", reqErr.Message)
}
