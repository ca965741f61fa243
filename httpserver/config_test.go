/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/config"
)

func loadConfig(t *testing.T, data string) (*Config, error) {
	t.Helper()
	cfg := NewConfig()
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(t, `{}`)
	require.NoError(t, err)
	require.Equal(t, NewDefaultConfig(), cfg)
	require.Equal(t, ":3000", cfg.Address)
	require.EqualValues(t, 100*1024, cfg.Limits.MaxBodySize)
}

func TestConfig_Set(t *testing.T) {
	cfg, err := loadConfig(t, `
server:
  address: "127.0.0.1:8080"
  timeouts:
    write: 1h
    read: 7m
    readHeader: 1m
    idle: 20m
    shutdown: 30s
  limits:
    maxRequests: 10
    maxBodySize: 1M
  log:
    requestStart: true
    requestHeaders: [X-Custom-Header]
    excludedEndpoints: "/healthz, /metrics"
    secretQueryParams: [token]
    addRequestInfo: true
    slowRequestThreshold: 2s
`)
	require.NoError(t, err)

	want := NewDefaultConfig()
	want.Address = "127.0.0.1:8080"
	want.Timeouts = TimeoutsConfig{
		Write:      config.TimeDuration(time.Hour),
		Read:       config.TimeDuration(7 * time.Minute),
		ReadHeader: config.TimeDuration(time.Minute),
		Idle:       config.TimeDuration(20 * time.Minute),
		Shutdown:   config.TimeDuration(30 * time.Second),
	}
	want.Limits = LimitsConfig{MaxRequests: 10, MaxBodySize: 1024 * 1024}
	want.Log = LogConfig{
		RequestStart:           true,
		RequestHeaders:         []string{"X-Custom-Header"},
		ExcludedEndpoints:      []string{"/healthz", "/metrics"},
		SecretQueryParams:      []string{"token"},
		AddRequestInfoToLogger: true,
		SlowRequestThreshold:   config.TimeDuration(2 * time.Second),
	}
	require.Equal(t, want, cfg)
}

func TestConfig_Errors(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantErrMsg string
	}{
		{name: "empty address", data: `{server: {address: ""}}`, wantErrMsg: "server.address: address should be set"},
		{name: "negative max requests", data: `{server: {limits: {maxRequests: -1}}}`, wantErrMsg: "server.limits.maxRequests"},
		{name: "invalid body size", data: `{server: {limits: {maxBodySize: "lots"}}}`, wantErrMsg: "server.limits.maxBodySize"},
		{name: "negative timeout", data: `{server: {timeouts: {write: -1s}}}`, wantErrMsg: "server.timeouts.write: cannot be negative"},
		{name: "invalid duration", data: `{server: {log: {slowRequestThreshold: soon}}}`, wantErrMsg: "server.log.slowRequestThreshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, tt.data)
			require.ErrorContains(t, err, tt.wantErrMsg)
		})
	}
}
