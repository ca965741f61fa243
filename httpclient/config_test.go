/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hookrelay/hookrelay/config"
	"github.com/hookrelay/hookrelay/retry"
)

func loadConfig(t *testing.T, data string) (*Config, error) {
	t.Helper()
	cfg := NewConfigWithKeyPrefix("webhook.client")
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
		bytes.NewBufferString(data), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(t, `{}`)
	require.NoError(t, err)

	want := NewDefaultConfig()
	want.keyPrefix = "webhook.client"
	require.Equal(t, want, cfg)
}

func TestConfig_Set(t *testing.T) {
	cfg, err := loadConfig(t, `
webhook:
  client:
    timeout: 3s
    retries:
      maxAttempts: 5
      policy:
        strategy: constant
        constantBackoffInterval: 250ms
    rateLimits:
      enabled: true
      limit: 5
      burst: 2
      waitTimeout: 1s
      obeyServerLimits: false
    logger:
      mode: all
      slowRequestThreshold: 0s
    metrics:
      enabled: false
    dns:
      servers: "10.0.0.1, 10.0.0.2:5353"
      timeout: 500ms
`)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, cfg.Timeout)
	require.True(t, cfg.Retries.Enabled)
	require.Equal(t, 5, cfg.Retries.MaxAttempts)
	require.Equal(t, RetryPolicyConstant, cfg.Retries.Policy.Strategy)
	require.Equal(t, retry.ConstantBackoffPolicy{Interval: 250 * time.Millisecond}, cfg.Retries.GetPolicy())
	require.Equal(t, RateLimitConfig{Enabled: true, Limit: 5, Burst: 2, WaitTimeout: time.Second, ObeyServerLimits: false}, cfg.RateLimits)
	require.Equal(t, RateLimitingRoundTripperOpts{Burst: 2, WaitTimeout: time.Second}, cfg.RateLimits.TransportOpts())
	require.Equal(t, LoggingModeAll, cfg.Logger.Mode)
	require.Zero(t, cfg.Logger.SlowRequestThreshold)
	require.False(t, cfg.Metrics.Enabled)
	require.Equal(t, DNSConfig{Servers: []string{"10.0.0.1", "10.0.0.2:5353"}, Timeout: 500 * time.Millisecond}, cfg.DNS)
}

func TestConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			name:    "negative timeout",
			data:    "webhook:\n  client:\n    timeout: -1s\n",
			wantErr: "webhook.client.timeout",
		},
		{
			name:    "unknown retry strategy",
			data:    "webhook:\n  client:\n    retries:\n      policy:\n        strategy: linear\n",
			wantErr: "webhook.client.retries.policy.strategy",
		},
		{
			name:    "small multiplier",
			data:    "webhook:\n  client:\n    retries:\n      policy:\n        exponentialBackoffMultiplier: 1\n",
			wantErr: "webhook.client.retries.policy.exponentialBackoffMultiplier",
		},
		{
			name:    "rate limit without limit",
			data:    "webhook:\n  client:\n    rateLimits:\n      enabled: true\n",
			wantErr: "webhook.client.rateLimits.limit",
		},
		{
			name:    "unknown logger mode",
			data:    "webhook:\n  client:\n    logger:\n      mode: verbose\n",
			wantErr: "webhook.client.logger.mode",
		},
		{
			name:    "invalid DNS server",
			data:    "webhook:\n  client:\n    dns:\n      servers: [dns.example]\n",
			wantErr: "webhook.client.dns.servers",
		},
		{
			name:    "zero DNS timeout",
			data:    "webhook:\n  client:\n    dns:\n      timeout: 0s\n",
			wantErr: "webhook.client.dns.timeout",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(t, tt.data)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
