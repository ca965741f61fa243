/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hookrelay/hookrelay/httpserver/middleware"
	"github.com/hookrelay/hookrelay/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logging mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripper implements http.RoundTripper for logging outbound requests.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper

	// ReqType is a type of request, e.g. "upstream" or "webhook".
	ReqType string

	Opts LoggingRoundTripperOpts
}

// LoggingRoundTripperOpts represents options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider is a function that provides a context-specific logger.
	// middleware.GetLoggerFromContext is used by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// Mode of logging: none, all, failed. All requests are logged if empty.
	Mode LoggingMode

	// Successful requests completed faster than SlowRequestThreshold are not logged.
	SlowRequestThreshold time.Duration
}

// NewLoggingRoundTripper creates an HTTP transport that logs requests.
func NewLoggingRoundTripper(delegate http.RoundTripper, reqType string) http.RoundTripper {
	return NewLoggingRoundTripperWithOpts(delegate, reqType, LoggingRoundTripperOpts{})
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests with options.
func NewLoggingRoundTripperWithOpts(
	delegate http.RoundTripper, reqType string, opts LoggingRoundTripperOpts,
) http.RoundTripper {
	return &LoggingRoundTripper{Delegate: delegate, ReqType: reqType, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return middleware.GetLoggerFromContext(ctx)
}

// RoundTrip logs the request with its outcome and duration.
// The duration is also accumulated in the time slots of the inbound request, if there is one.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	reqType := requestTypeOrDefault(ctx, rt.ReqType)
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	if lp := middleware.GetLoggingParamsFromContext(ctx); lp != nil {
		lp.AddTimeSlotDurationInMs(fmt.Sprintf("external_request_%s_ms", reqType), elapsed)
	}

	logger := rt.getLogger(ctx)
	if logger == nil {
		return resp, err
	}
	failed := err != nil || (resp != nil && resp.StatusCode >= http.StatusBadRequest)
	if !failed && (rt.Opts.Mode == LoggingModeFailed || elapsed < rt.Opts.SlowRequestThreshold) {
		return resp, err
	}

	fields := []log.Field{
		log.String("client_type", reqType),
		log.String("client_method", r.Method),
		log.String("client_url", r.URL.Redacted()),
		log.Int64("client_duration_ms", elapsed.Milliseconds()),
	}
	if resp != nil {
		fields = append(fields, log.Int("client_status", resp.StatusCode))
	}
	msg := fmt.Sprintf("client http request %s %s req type %s", r.Method, r.URL.Redacted(), reqType)
	switch {
	case err != nil:
		logger.Error(msg+" failed", append(fields, log.Error(err))...)
	case failed:
		logger.Warn(fmt.Sprintf("%s status code %d", msg, resp.StatusCode), fields...)
	default:
		logger.Info(fmt.Sprintf("%s status code %d", msg, resp.StatusCode), fields...)
	}
	return resp, err
}
