/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package relay implements the hookrelay HTTP endpoints: a cached proxy to the upstream JSON API
// and the delivery of browser-triggered messages to a Discord-compatible webhook.
// Every endpoint except /ping is guarded by per-client admission control.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hookrelay/hookrelay/httpclient"
	"github.com/hookrelay/hookrelay/httpserver"
	"github.com/hookrelay/hookrelay/httpserver/middleware"
	"github.com/hookrelay/hookrelay/internal/buildinfo"
	"github.com/hookrelay/hookrelay/internal/ratelimit"
	"github.com/hookrelay/hookrelay/log"
	"github.com/hookrelay/hookrelay/lrucache"
	"github.com/hookrelay/hookrelay/service"
)

// ErrDomain is the domain of errors returned by the relay API.
const ErrDomain = "Relay"

const (
	requestTypeUpstream = "upstream"
	requestTypeWebhook  = "webhook"
	userAgentProduct    = "hookrelay"
)

// Opts represents options for creating the relay Service.
type Opts struct {
	// MetricsNamespace is prepended to names of the cache and outbound client metrics.
	MetricsNamespace string

	// UpstreamTransport and WebhookTransport replace the default transports of the outbound clients.
	UpstreamTransport http.RoundTripper
	WebhookTransport  http.RoundTripper
}

// Service owns the upstream responses cache and the admission limiter and serves the relay routes.
type Service struct {
	cfg     *Config
	logger  log.FieldLogger
	cache   *lrucache.LRUCache[string, json.RawMessage]
	limiter ratelimit.Limiter
	fetcher *Fetcher
	sender  *Sender

	cacheMetrics  *lrucache.PrometheusMetrics
	clientMetrics *httpclient.PrometheusMetricsCollector
}

var _ service.Unit = (*Service)(nil)
var _ service.MetricsRegisterer = (*Service)(nil)

// New creates a new relay Service.
func New(
	cfg *Config, upstreamClientCfg, webhookClientCfg *httpclient.Config, logger log.FieldLogger, opts Opts,
) (*Service, error) {
	cacheMetrics := lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{
		Namespace: opts.MetricsNamespace,
		CacheName: "upstream",
	})
	cache, err := lrucache.New[string, json.RawMessage](cfg.Cache.Capacity, cacheMetrics)
	if err != nil {
		return nil, fmt.Errorf("create upstream cache: %w", err)
	}

	limiter, err := ratelimit.New(cfg.RateLimit.LimiterParams())
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}

	clientMetrics := httpclient.NewPrometheusMetricsCollector(opts.MetricsNamespace)
	loggerProvider := func(ctx context.Context) log.FieldLogger {
		if l := middleware.GetLoggerFromContext(ctx); l != nil {
			return l
		}
		return logger
	}

	upstreamClient, err := httpclient.NewWithOpts(upstreamClientCfg, httpclient.Opts{
		UserAgent:         buildinfo.UserAgent(userAgentProduct),
		RequestType:       requestTypeUpstream,
		Delegate:          opts.UpstreamTransport,
		LoggerProvider:    loggerProvider,
		RequestIDProvider: middleware.GetRequestIDFromContext,
		MetricsCollector:  clientMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}
	fetcher, err := NewFetcher(upstreamClient, cfg.Upstream, cache)
	if err != nil {
		return nil, err
	}

	webhookClient, err := httpclient.NewWithOpts(webhookClientCfg, httpclient.Opts{
		UserAgent:         buildinfo.UserAgent(userAgentProduct),
		RequestType:       requestTypeWebhook,
		Delegate:          opts.WebhookTransport,
		LoggerProvider:    loggerProvider,
		RequestIDProvider: middleware.GetRequestIDFromContext,
		MetricsCollector:  clientMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create webhook client: %w", err)
	}

	if cfg.Webhook.URL == "" {
		logger.Warn("webhook URL is not configured, delivery endpoints will respond with errors")
	}

	return &Service{
		cfg:           cfg,
		logger:        logger,
		cache:         cache,
		limiter:       limiter,
		fetcher:       fetcher,
		sender:        NewSender(webhookClient, cfg.Webhook),
		cacheMetrics:  cacheMetrics,
		clientMetrics: clientMetrics,
	}, nil
}

// Middlewares returns middlewares that must wrap every route of the server (CORS handling).
func (s *Service) Middlewares() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		middleware.CORS(middleware.CORSOpts{AllowedOrigins: s.cfg.CORS.AllowedOrigins}),
	}
}

// HealthCheck reports the state of the relay components.
func (s *Service) HealthCheck(context.Context) (httpserver.HealthCheckResult, error) {
	webhookStatus := httpserver.HealthCheckStatusOK
	if !s.sender.Configured() {
		webhookStatus = httpserver.HealthCheckStatusFail
	}
	return httpserver.HealthCheckResult{"cache": httpserver.HealthCheckStatusOK, "webhook": webhookStatus}, nil
}

// Start does nothing since the relay has no background work. It is here to satisfy service.Unit.
func (s *Service) Start(chan<- error) {}

// Stop drops all cached upstream responses.
func (s *Service) Stop(bool) error {
	s.cache.Purge()
	return nil
}

// MustRegisterMetrics registers the cache and outbound client metrics in the default Prometheus registry.
func (s *Service) MustRegisterMetrics() {
	s.cacheMetrics.MustRegister()
	s.clientMetrics.MustRegister()
}

// UnregisterMetrics unregisters the cache and outbound client metrics.
func (s *Service) UnregisterMetrics() {
	s.cacheMetrics.Unregister()
	s.clientMetrics.Unregister()
}
