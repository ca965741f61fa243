/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/log/logtest"
)

const testDomain = "TestDomain"

func TestRespondJSON(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		resp := httptest.NewRecorder()
		logger := logtest.NewRecorder()
		RespondJSON(resp, map[string]interface{}{"ok": true, "html": "<b>"}, logger)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, ContentTypeAppJSON, resp.Header().Get("Content-Type"))
		require.Equal(t, `{"html":"<b>","ok":true}`, resp.Body.String())
		require.Empty(t, logger.Entries())
	})

	t.Run("marshaling error", func(t *testing.T) {
		resp := httptest.NewRecorder()
		logger := logtest.NewRecorder()
		RespondJSON(resp, make(chan bool), logger)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		require.Empty(t, resp.Body.String())
		_, found := logger.FindEntry("error while marshaling json for response body")
		require.True(t, found)
	})

	t.Run("nil data", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondCodeAndJSON(resp, http.StatusNoContent, nil, nil)
		require.Equal(t, http.StatusNoContent, resp.Code)
		require.Empty(t, resp.Body.String())
	})
}

func TestRespondError(t *testing.T) {
	MustInitAndRegisterMetrics("test")
	defer UnregisterMetrics()

	resp := httptest.NewRecorder()
	logger := logtest.NewRecorder()
	apiErr := NewError(testDomain, ErrCodeTooManyRequests, ErrMessageTooManyRequests).AddContext("retryAfter", 3)
	RespondError(resp, http.StatusTooManyRequests, apiErr, logger)

	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	var body ErrorResponseData
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Equal(t, testDomain, body.Err.Domain)
	require.Equal(t, "tooManyRequests", body.Err.Code)
	require.Equal(t, "Too many requests.", body.Err.Message)
	require.EqualValues(t, 3, body.Err.Context["retryAfter"])

	entry, found := logger.FindEntry("error in response")
	require.True(t, found)
	field, found := entry.FindField("error_code")
	require.True(t, found)
	require.Equal(t, "tooManyRequests", string(field.Bytes))

	require.Equal(t, 1.0, testutil.ToFloat64(metricsResponseErrors.WithLabelValues(testDomain, "tooManyRequests")))
}

func TestRespondMalformedRequestOrInternalError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondMalformedRequestOrInternalError(resp, testDomain,
		&MalformedRequestError{HTTPStatusCode: http.StatusRequestEntityTooLarge, Message: "Too large."}, nil)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"TestDomain","code":"requestEntityTooLarge","message":"Too large."}}`,
		resp.Body.String())

	resp = httptest.NewRecorder()
	RespondMalformedRequestOrInternalError(resp, testDomain, errors.New("boom"), logtest.NewRecorder())
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"TestDomain","code":"internalError","message":"Internal error."}}`,
		resp.Body.String())
}

func TestNewErrorForStatus(t *testing.T) {
	require.Equal(t, "badGateway", NewErrorForStatus(testDomain, http.StatusBadGateway, "").Code)
	require.Equal(t, "notFound", NewErrorForStatus(testDomain, http.StatusNotFound, "").Code)
	require.Equal(t, "internalError", NewErrorForStatus(testDomain, http.StatusInternalServerError, "").Code)
	require.Equal(t, "multiStatus", NewErrorForStatus(testDomain, http.StatusMultiStatus, "").Code)
}
