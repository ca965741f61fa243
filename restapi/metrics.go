/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsSubsystem = "restapi"

	metricsLabelResponseErrorDomain = "domain"
	metricsLabelResponseErrorCode   = "code"
)

var (
	metricsMu             sync.RWMutex
	metricsResponseErrors *prometheus.CounterVec
)

// MustInitAndRegisterMetrics initializes and registers the counter of error responses.
// Panic will be raised in case of error.
func MustInitAndRegisterMetrics(namespace string) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: metricsSubsystem,
		Name:      "response_errors_total",
		Help:      "The total number of REST API errors that were respond.",
	}, []string{metricsLabelResponseErrorDomain, metricsLabelResponseErrorCode})
	prometheus.MustRegister(counter)

	metricsMu.Lock()
	metricsResponseErrors = counter
	metricsMu.Unlock()
}

// UnregisterMetrics unregisters the counter of error responses.
func UnregisterMetrics() {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metricsResponseErrors != nil {
		prometheus.Unregister(metricsResponseErrors)
		metricsResponseErrors = nil
	}
}

func incResponseErrors(domain, code string) {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if metricsResponseErrors != nil {
		metricsResponseErrors.With(prometheus.Labels{
			metricsLabelResponseErrorDomain: domain,
			metricsLabelResponseErrorCode:   code,
		}).Inc()
	}
}
