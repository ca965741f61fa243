/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service provides the lifecycle of a long-running process built from units.
package service

// Unit represents a service unit that can be started and stopped.
type Unit interface {
	// Start runs the unit. It may block for the unit's lifetime or return right after initialization.
	// A fatal error is reported by writing it into fatalErr; nothing must be written on success.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start has failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
