/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/hookrelay/hookrelay/config"
	"github.com/hookrelay/hookrelay/netutil"
	"github.com/hookrelay/hookrelay/retry"
)

// Default values of the client configuration.
const (
	DefaultClientTimeout                     = 10 * time.Second
	DefaultRetriesMaxAttempts                = 3
	DefaultRetriesExponentialInitialInterval = 200 * time.Millisecond
	DefaultRetriesExponentialMultiplier      = 2.0
	DefaultLoggerSlowRequestThreshold        = time.Second
	DefaultDNSTimeout                        = 2 * time.Second
)

// Retry policy strategies.
const (
	RetryPolicyExponential = "exponential"
	RetryPolicyConstant    = "constant"
)

const (
	cfgKeyRetriesEnabled                          = "retries.enabled"
	cfgKeyRetriesMaxAttempts                      = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyExponentialMultiplier      = "retries.policy.exponentialBackoffMultiplier"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
	cfgKeyRateLimitsEnabled                       = "rateLimits.enabled"
	cfgKeyRateLimitsLimit                         = "rateLimits.limit"
	cfgKeyRateLimitsBurst                         = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout                   = "rateLimits.waitTimeout"
	cfgKeyRateLimitsObeyServerLimits              = "rateLimits.obeyServerLimits"
	cfgKeyLoggerEnabled                           = "logger.enabled"
	cfgKeyLoggerMode                              = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold              = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled                          = "metrics.enabled"
	cfgKeyTimeout                                 = "timeout"
	cfgKeyDNSServers                              = "dns.servers"
	cfgKeyDNSTimeout                              = "dns.timeout"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents options for an outbound HTTP client.
type Config struct {
	Retries    RetriesConfig   `mapstructure:"retries"`
	RateLimits RateLimitConfig `mapstructure:"rateLimits"`
	Logger     LoggerConfig    `mapstructure:"logger"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	DNS        DNSConfig       `mapstructure:"dns"`

	// Timeout limits the time of the whole exchange including retries.
	Timeout time.Duration `mapstructure:"timeout"`

	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config filled with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Retries: RetriesConfig{
			Enabled:     true,
			MaxAttempts: DefaultRetriesMaxAttempts,
			Policy: PolicyConfig{
				Strategy:                          RetryPolicyExponential,
				ExponentialBackoffInitialInterval: DefaultRetriesExponentialInitialInterval,
				ExponentialBackoffMultiplier:      DefaultRetriesExponentialMultiplier,
			},
		},
		Logger: LoggerConfig{
			Enabled:              true,
			Mode:                 LoggingModeFailed,
			SlowRequestThreshold: DefaultLoggerSlowRequestThreshold,
		},
		Metrics: MetricsConfig{Enabled: true},
		DNS:     DNSConfig{Timeout: DefaultDNSTimeout},
		Timeout: DefaultClientTimeout,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	def := NewDefaultConfig()
	dp.SetDefault(cfgKeyTimeout, def.Timeout)
	dp.SetDefault(cfgKeyRetriesEnabled, def.Retries.Enabled)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, def.Retries.MaxAttempts)
	dp.SetDefault(cfgKeyRetriesPolicyStrategy, def.Retries.Policy.Strategy)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialInitialInterval, def.Retries.Policy.ExponentialBackoffInitialInterval)
	dp.SetDefault(cfgKeyRetriesPolicyExponentialMultiplier, def.Retries.Policy.ExponentialBackoffMultiplier)
	dp.SetDefault(cfgKeyRetriesPolicyConstantInterval, time.Second)
	dp.SetDefault(cfgKeyRateLimitsEnabled, false)
	dp.SetDefault(cfgKeyRateLimitsBurst, DefaultRateLimitingBurst)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultRateLimitingWaitTimeout)
	dp.SetDefault(cfgKeyRateLimitsObeyServerLimits, true)
	dp.SetDefault(cfgKeyLoggerEnabled, def.Logger.Enabled)
	dp.SetDefault(cfgKeyLoggerMode, string(def.Logger.Mode))
	dp.SetDefault(cfgKeyLoggerSlowRequestThreshold, def.Logger.SlowRequestThreshold)
	dp.SetDefault(cfgKeyMetricsEnabled, def.Metrics.Enabled)
	dp.SetDefault(cfgKeyDNSTimeout, def.DNS.Timeout)
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	if timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("cannot be negative"))
	}
	c.Timeout = timeout

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Logger.Set(dp); err != nil {
		return err
	}
	if err = c.Metrics.Set(dp); err != nil {
		return err
	}
	return c.DNS.Set(dp)
}

// RetriesConfig represents configuration options for HTTP client retries policy.
type RetriesConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxAttempts is the maximum number of retry attempts (the first request is not counted).
	MaxAttempts int `mapstructure:"maxAttempts"`

	Policy PolicyConfig `mapstructure:"policy"`
}

// Set is part of config interface implementation.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyRetriesEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	maxAttempts, err := dp.GetInt(cfgKeyRetriesMaxAttempts)
	if err != nil {
		return err
	}
	if maxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("cannot be negative"))
	}
	c.MaxAttempts = maxAttempts

	return c.Policy.Set(dp)
}

// GetPolicy returns a backoff policy built from the configured strategy.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	switch c.Policy.Strategy {
	case RetryPolicyExponential:
		return retry.ExponentialBackoffPolicy{
			InitialInterval: c.Policy.ExponentialBackoffInitialInterval,
			Multiplier:      c.Policy.ExponentialBackoffMultiplier,
		}
	case RetryPolicyConstant:
		return retry.ConstantBackoffPolicy{Interval: c.Policy.ConstantBackoffInterval}
	}
	return nil
}

// TransportOpts returns options for RetryableRoundTripper.
func (c *RetriesConfig) TransportOpts() RetryableRoundTripperOpts {
	return RetryableRoundTripperOpts{MaxRetryAttempts: c.MaxAttempts, BackoffPolicy: c.GetPolicy()}
}

// PolicyConfig represents configuration options for the retry backoff policy.
type PolicyConfig struct {
	Strategy                          string        `mapstructure:"strategy"`
	ExponentialBackoffInitialInterval time.Duration `mapstructure:"exponentialBackoffInitialInterval"`
	ExponentialBackoffMultiplier      float64       `mapstructure:"exponentialBackoffMultiplier"`
	ConstantBackoffInterval           time.Duration `mapstructure:"constantBackoffInterval"`
}

// Set is part of config interface implementation.
func (c *PolicyConfig) Set(dp config.DataProvider) error {
	strategy, err := dp.GetStringFromSet(
		cfgKeyRetriesPolicyStrategy, []string{RetryPolicyExponential, RetryPolicyConstant}, true)
	if err != nil {
		return err
	}
	c.Strategy = strategy

	switch c.Strategy {
	case RetryPolicyExponential:
		interval, err := dp.GetDuration(cfgKeyRetriesPolicyExponentialInitialInterval)
		if err != nil {
			return err
		}
		if interval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialInitialInterval, fmt.Errorf("cannot be negative"))
		}
		c.ExponentialBackoffInitialInterval = interval

		multiplier, err := dp.GetFloat64(cfgKeyRetriesPolicyExponentialMultiplier)
		if err != nil {
			return err
		}
		if multiplier <= 1 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyExponentialMultiplier, fmt.Errorf("must be greater than 1"))
		}
		c.ExponentialBackoffMultiplier = multiplier

	case RetryPolicyConstant:
		interval, err := dp.GetDuration(cfgKeyRetriesPolicyConstantInterval)
		if err != nil {
			return err
		}
		if interval < 0 {
			return dp.WrapKeyErr(cfgKeyRetriesPolicyConstantInterval, fmt.Errorf("cannot be negative"))
		}
		c.ConstantBackoffInterval = interval
	}
	return nil
}

// RateLimitConfig represents configuration options for client side rate limiting.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Limit is the number of requests per second.
	Limit int `mapstructure:"limit"`

	// Burst allows temporary spikes in request rate.
	Burst int `mapstructure:"burst"`

	// WaitTimeout is the maximum time a request waits for its turn.
	WaitTimeout time.Duration `mapstructure:"waitTimeout"`

	// ObeyServerLimits holds requests while the remote side reports its limit as exhausted.
	ObeyServerLimits bool `mapstructure:"obeyServerLimits"`
}

// Set is part of config interface implementation.
func (c *RateLimitConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyRateLimitsEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	limit, err := dp.GetInt(cfgKeyRateLimitsLimit)
	if err != nil {
		return err
	}
	if limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("must be positive"))
	}
	c.Limit = limit

	burst, err := dp.GetInt(cfgKeyRateLimitsBurst)
	if err != nil {
		return err
	}
	if burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("cannot be negative"))
	}
	c.Burst = burst

	waitTimeout, err := dp.GetDuration(cfgKeyRateLimitsWaitTimeout)
	if err != nil {
		return err
	}
	if waitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("cannot be negative"))
	}
	c.WaitTimeout = waitTimeout

	if c.ObeyServerLimits, err = dp.GetBool(cfgKeyRateLimitsObeyServerLimits); err != nil {
		return err
	}
	return nil
}

// TransportOpts returns options for RateLimitingRoundTripper.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Burst: c.Burst, WaitTimeout: c.WaitTimeout, ObeyServerLimits: c.ObeyServerLimits}
}

// LoggerConfig represents configuration options for logging of outbound requests.
type LoggerConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold"`
	Mode                 LoggingMode   `mapstructure:"mode"`
}

// Set is part of config interface implementation.
func (c *LoggerConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyLoggerEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	if !c.Enabled {
		return nil
	}

	threshold, err := dp.GetDuration(cfgKeyLoggerSlowRequestThreshold)
	if err != nil {
		return err
	}
	if threshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, fmt.Errorf("cannot be negative"))
	}
	c.SlowRequestThreshold = threshold

	mode, err := dp.GetStringFromSet(cfgKeyLoggerMode,
		[]string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}, true)
	if err != nil {
		return err
	}
	c.Mode = LoggingMode(mode)

	return nil
}

// TransportOpts returns options for LoggingRoundTripper.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig represents configuration options for metrics of outbound requests.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Set is part of config interface implementation.
func (c *MetricsConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyMetricsEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled
	return nil
}

// DNSConfig represents configuration options for resolving the client's target hosts.
// When Servers is empty, the system resolver is used.
type DNSConfig struct {
	Servers []string      `mapstructure:"servers"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Set is part of config interface implementation.
func (c *DNSConfig) Set(dp config.DataProvider) error {
	servers, err := dp.GetStringSlice(cfgKeyDNSServers)
	if err != nil {
		return err
	}
	timeout, err := dp.GetDuration(cfgKeyDNSTimeout)
	if err != nil {
		return err
	}
	if timeout <= 0 {
		return dp.WrapKeyErr(cfgKeyDNSTimeout, fmt.Errorf("must be positive"))
	}
	c.Servers, c.Timeout = servers, timeout
	if len(c.Servers) != 0 {
		if _, err = netutil.NewCustomDNSResolver(c.Servers, c.Timeout); err != nil {
			return dp.WrapKeyErr(cfgKeyDNSServers, err)
		}
	}
	return nil
}
