/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides an optional pprof HTTP server that runs as a service.Unit
// next to the relay server, on its own (normally loopback) address.
package profserver

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hookrelay/hookrelay/httpserver/middleware"
	"github.com/hookrelay/hookrelay/log"
	"github.com/hookrelay/hookrelay/service"
)

const readHeaderTimeout = 5 * time.Second

// ProfServer represents HTTP server for profiling. pprof is used under the hood.
type ProfServer struct {
	HTTPServer *http.Server
	Logger     log.FieldLogger

	listener       net.Listener
	httpServerDone chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new HTTP server (pprof) for profiling.
// If listener is not nil, it is used instead of listening on cfg.Address.
func New(cfg *Config, logger log.FieldLogger, listener net.Listener) *ProfServer {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}),
	)
	router.Mount("/debug", chimw.Profiler())

	return &ProfServer{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		Logger:         logger,
		listener:       listener,
		httpServerDone: make(chan struct{}),
	}
}

// Start starts profiling HTTP server in a blocking way.
// A fatal error is sent into the passed channel.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.httpServerDone)

	logger := s.Logger.With(log.String("address", s.HTTPServer.Addr))
	logger.Info("starting profiling HTTP server...")

	var err error
	if s.listener != nil {
		err = s.HTTPServer.Serve(s.listener)
	} else {
		err = s.HTTPServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("profiling HTTP server error", log.Error(err))
		fatalError <- err
		return
	}
	logger.Info("profiling HTTP server closed")
}

// Stop stops profiling HTTP server (always non-gracefully).
func (s *ProfServer) Stop(bool) error {
	s.Logger.Info("closing profiling HTTP server...")
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("profiling HTTP server closing error", log.Error(err))
		return err
	}
	<-s.httpServerDone
	return nil
}
