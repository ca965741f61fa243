/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// RequireSamplesCountInHistogram asserts that the histogram (usually a child of HistogramVec) has wantCount samples.
func RequireSamplesCountInHistogram(t require.TestingT, observer prometheus.Observer, wantCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	metric, ok := observer.(prometheus.Metric)
	require.True(t, ok, "observer is not a metric")
	var m dto.Metric
	require.NoError(t, metric.Write(&m))
	require.Equal(t, wantCount, int(m.GetHistogram().GetSampleCount()))
}
