/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	apptestutil "github.com/hookrelay/hookrelay/testutil"
)

func TestHTTPRequestMetricsHandler_ServeHTTP(t *testing.T) {
	getRoutePattern := func(r *http.Request) string { return "/proxy/*" }

	t.Run("request duration is observed", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		handler := HTTPRequestMetrics(collector, getRoutePattern)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			require.EqualValues(t, 1, testutil.ToFloat64(collector.InFlight.WithLabelValues(http.MethodGet, userAgentTypeBrowser)))
			rw.WriteHeader(http.StatusNotFound)
		}))

		req := httptest.NewRequest(http.MethodGet, "/proxy/users/1", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.EqualValues(t, 0, testutil.ToFloat64(collector.InFlight.WithLabelValues(http.MethodGet, userAgentTypeBrowser)))
		hist := collector.Durations.With(prometheus.Labels{
			httpRequestMetricsLabelMethod:        http.MethodGet,
			httpRequestMetricsLabelRoutePattern:  "/proxy/*",
			httpRequestMetricsLabelUserAgentType: userAgentTypeBrowser,
			httpRequestMetricsLabelStatusCode:    "404",
		})
		apptestutil.RequireSamplesCountInHistogram(t, hist, 1)
	})

	t.Run("panic is observed as 500", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		handler := HTTPRequestMetrics(collector, getRoutePattern)(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			panic("test")
		}))
		req := httptest.NewRequest(http.MethodGet, "/proxy/users/1", nil)
		require.Panics(t, func() { handler.ServeHTTP(httptest.NewRecorder(), req) })

		hist := collector.Durations.With(prometheus.Labels{
			httpRequestMetricsLabelMethod:        http.MethodGet,
			httpRequestMetricsLabelRoutePattern:  "/proxy/*",
			httpRequestMetricsLabelUserAgentType: userAgentTypeHTTPClient,
			httpRequestMetricsLabelStatusCode:    "500",
		})
		apptestutil.RequireSamplesCountInHistogram(t, hist, 1)
	})

	t.Run("excluded endpoints are not observed", func(t *testing.T) {
		collector := NewHTTPRequestMetricsCollector()
		handler := HTTPRequestMetricsWithOpts(collector, getRoutePattern, HTTPRequestMetricsOpts{
			ExcludedEndpoints: []string{"/metrics"},
		})(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, 0, testutil.CollectAndCount(collector.Durations))
	})

	t.Run("nil route pattern getter", func(t *testing.T) {
		require.Panics(t, func() { HTTPRequestMetrics(NewHTTPRequestMetricsCollector(), nil) })
	})
}
