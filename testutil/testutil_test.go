/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type mockT struct {
	failed bool
}

func (t *mockT) FailNow() {
	t.failed = true
	panic("fail now")
}

func (t *mockT) Errorf(string, ...interface{}) {}

func runMockT(f func(t *mockT)) (failed bool) {
	t := &mockT{}
	defer func() {
		_ = recover()
		failed = t.failed
	}()
	f(t)
	return t.failed
}

func TestRequireErrorInRecorder(t *testing.T) {
	tests := []struct {
		name        string
		code        int
		contentType string
		body        string
		wantFailed  bool
	}{
		{"ok", 404, contentTypeAppJSON, `{"error":{"domain":"Relay","code":"notFound"}}`, false},
		{"wrong code", 400, contentTypeAppJSON, `{"error":{"domain":"Relay","code":"notFound"}}`, true},
		{"wrong content type", 404, "text/html", `{"error":{"domain":"Relay","code":"notFound"}}`, true},
		{"wrong domain", 404, contentTypeAppJSON, `{"error":{"domain":"Other","code":"notFound"}}`, true},
		{"not wrapped", 404, contentTypeAppJSON, `{"domain":"Relay","code":"notFound"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			resp.Header().Set("Content-Type", tt.contentType)
			resp.WriteHeader(tt.code)
			_, _ = resp.WriteString(tt.body)
			failed := runMockT(func(mt *mockT) {
				RequireErrorInRecorder(mt, resp, http.StatusNotFound, "Relay", "notFound")
			})
			require.Equal(t, tt.wantFailed, failed)
		})
	}
}

func TestRequireSamplesCountInHistogram(t *testing.T) {
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_seconds"}, []string{"l"})
	hist.WithLabelValues("a").Observe(1)
	hist.WithLabelValues("a").Observe(2)
	RequireSamplesCountInHistogram(t, hist.WithLabelValues("a"), 2)
	require.True(t, runMockT(func(mt *mockT) {
		RequireSamplesCountInHistogram(mt, hist.WithLabelValues("a"), 3)
	}))
}

func TestWaitListeningServer(t *testing.T) {
	addr := GetLocalAddrWithFreeTCPPort()
	require.Error(t, WaitListeningServer(addr, time.Millisecond*50))

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()
	require.NoError(t, WaitListeningServer(addr, time.Second))
}
