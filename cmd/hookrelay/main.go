/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Command hookrelay runs the relay HTTP server.
//
// Configuration is read from an optional YAML or JSON file (-config flag)
// and from environment variables prefixed with HOOKRELAY_ (e.g. HOOKRELAY_RELAY_WEBHOOK_URL).
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hookrelay/hookrelay/config"
	"github.com/hookrelay/hookrelay/httpclient"
	"github.com/hookrelay/hookrelay/httpserver"
	"github.com/hookrelay/hookrelay/log"
	"github.com/hookrelay/hookrelay/profserver"
	"github.com/hookrelay/hookrelay/relay"
	"github.com/hookrelay/hookrelay/restapi"
	"github.com/hookrelay/hookrelay/service"
)

const (
	envVarsPrefix    = "hookrelay"
	metricsNamespace = "hookrelay"
)

type appConfig struct {
	Log            *log.Config
	Server         *httpserver.Config
	Relay          *relay.Config
	UpstreamClient *httpclient.Config
	WebhookClient  *httpclient.Config
	ProfServer     *profserver.Config
}

func loadAppConfig(path string) (*appConfig, error) {
	cfg := &appConfig{
		Log:            log.NewConfig(),
		Server:         httpserver.NewConfig(),
		Relay:          relay.NewConfig(),
		UpstreamClient: httpclient.NewConfigWithKeyPrefix("upstream.client"),
		WebhookClient:  httpclient.NewConfigWithKeyPrefix("webhook.client"),
		ProfServer:     profserver.NewConfig(),
	}
	loader := config.NewDefaultLoader(envVarsPrefix)
	cfgs := []config.Config{cfg.Server, cfg.Relay, cfg.UpstreamClient, cfg.WebhookClient, cfg.ProfServer}
	var err error
	if path != "" {
		err = loader.LoadFromFile(path, config.DataTypeFromPath(path), cfg.Log, cfgs...)
	} else {
		err = loader.Load(cfg.Log, cfgs...)
	}
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "path to a YAML or JSON configuration file")
	flag.Parse()

	cfg, err := loadAppConfig(*cfgPath)
	if err != nil {
		return err
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	restapi.MustInitAndRegisterMetrics(metricsNamespace)
	defer restapi.UnregisterMetrics()

	relaySvc, err := relay.New(cfg.Relay, cfg.UpstreamClient, cfg.WebhookClient, logger, relay.Opts{
		MetricsNamespace: metricsNamespace,
	})
	if err != nil {
		return fmt.Errorf("create relay: %w", err)
	}

	httpServer, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		Routes:             relaySvc.Routes,
		RootMiddlewares:    relaySvc.Middlewares(),
		ErrorDomain:        relay.ErrDomain,
		HealthCheck:        relaySvc.HealthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: metricsNamespace},
	})
	if err != nil {
		return fmt.Errorf("create HTTP server: %w", err)
	}

	units := []service.Unit{httpServer, relaySvc}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger, nil))
	}

	logger.Info("starting hookrelay", log.String("address", cfg.Server.Address))
	return service.New(logger, service.NewCompositeUnit(units...)).Start()
}
