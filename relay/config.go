/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package relay

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/hookrelay/hookrelay/config"
	"github.com/hookrelay/hookrelay/internal/ratelimit"
)

const cfgDefaultKeyPrefix = "relay"

const (
	cfgKeyUpstreamBaseURL         = "upstream.baseURL"
	cfgKeyUpstreamProfilePath     = "upstream.profilePath"
	cfgKeyWebhookURL              = "webhook.url"
	cfgKeyWebhookUsername         = "webhook.username"
	cfgKeyCORSAllowedOrigins      = "cors.allowedOrigins"
	cfgKeyAllowedReferers         = "allowedReferers"
	cfgKeyTrustForwardedFor       = "trustForwardedFor"
	cfgKeyCacheCapacity           = "cache.capacity"
	cfgKeyRateLimitAlg            = "rateLimit.alg"
	cfgKeyRateLimitCapacity       = "rateLimit.capacity"
	cfgKeyRateLimitRatePerSecond  = "rateLimit.ratePerSecond"
	cfgKeyRateLimitMaxKeys        = "rateLimit.maxKeys"
	cfgKeyRateLimitDryRun         = "rateLimit.dryRun"
	cfgKeyRateLimitCostsProxy     = "rateLimit.costs.proxy"
	cfgKeyRateLimitCostsRelay     = "rateLimit.costs.relay"
	cfgKeyRateLimitCostsWebhook   = "rateLimit.costs.webhook"
	defaultUpstreamBaseURL        = "https://users.roblox.com"
	defaultUpstreamProfilePath    = "/v1/users/{id}"
	defaultAllowedReferers        = "https://www.roblox.com,https://web.roblox.com"
	defaultCacheCapacity          = 100
	defaultRateLimitCapacity      = 500
	defaultRateLimitRatePerSecond = 500.0
	defaultRateLimitMaxKeys       = 10000
	defaultRateLimitCostProxy     = 1
	defaultRateLimitCostRelay     = 5
	defaultRateLimitCostWebhook   = 5
)

// ProfileIDPlaceholder is replaced by the requested profile id in the upstream profile path.
const ProfileIDPlaceholder = "{id}"

// Config represents a set of configuration parameters for the relay Service.
type Config struct {
	Upstream          UpstreamConfig  `mapstructure:"upstream" yaml:"upstream" json:"upstream"`
	Webhook           WebhookConfig   `mapstructure:"webhook" yaml:"webhook" json:"webhook"`
	CORS              CORSConfig      `mapstructure:"cors" yaml:"cors" json:"cors"`
	AllowedReferers   []string        `mapstructure:"allowedReferers" yaml:"allowedReferers" json:"allowedReferers"`
	TrustForwardedFor bool            `mapstructure:"trustForwardedFor" yaml:"trustForwardedFor" json:"trustForwardedFor"`
	Cache             CacheConfig     `mapstructure:"cache" yaml:"cache" json:"cache"`
	RateLimit         RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewConfigWithKeyPrefix creates a new instance of the Config with a key prefix.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		Upstream: UpstreamConfig{
			BaseURL:     defaultUpstreamBaseURL,
			ProfilePath: defaultUpstreamProfilePath,
		},
		AllowedReferers: strings.Split(defaultAllowedReferers, ","),
		Cache:           CacheConfig{Capacity: defaultCacheCapacity},
		RateLimit: RateLimitConfig{
			Alg:           ratelimit.AlgTokenBucket,
			Capacity:      defaultRateLimitCapacity,
			RatePerSecond: defaultRateLimitRatePerSecond,
			MaxKeys:       defaultRateLimitMaxKeys,
			Costs: CostsConfig{
				Proxy:   defaultRateLimitCostProxy,
				Relay:   defaultRateLimitCostRelay,
				Webhook: defaultRateLimitCostWebhook,
			},
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the relay in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyUpstreamBaseURL, defaultUpstreamBaseURL)
	dp.SetDefault(cfgKeyUpstreamProfilePath, defaultUpstreamProfilePath)
	dp.SetDefault(cfgKeyWebhookURL, "")
	dp.SetDefault(cfgKeyWebhookUsername, "")
	dp.SetDefault(cfgKeyAllowedReferers, defaultAllowedReferers)
	dp.SetDefault(cfgKeyTrustForwardedFor, false)
	dp.SetDefault(cfgKeyCacheCapacity, defaultCacheCapacity)
	dp.SetDefault(cfgKeyRateLimitAlg, string(ratelimit.AlgTokenBucket))
	dp.SetDefault(cfgKeyRateLimitCapacity, defaultRateLimitCapacity)
	dp.SetDefault(cfgKeyRateLimitRatePerSecond, defaultRateLimitRatePerSecond)
	dp.SetDefault(cfgKeyRateLimitMaxKeys, defaultRateLimitMaxKeys)
	dp.SetDefault(cfgKeyRateLimitDryRun, false)
	dp.SetDefault(cfgKeyRateLimitCostsProxy, defaultRateLimitCostProxy)
	dp.SetDefault(cfgKeyRateLimitCostsRelay, defaultRateLimitCostRelay)
	dp.SetDefault(cfgKeyRateLimitCostsWebhook, defaultRateLimitCostWebhook)
}

// Set sets the relay configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if err = c.Upstream.Set(dp); err != nil {
		return err
	}
	if err = c.Webhook.Set(dp); err != nil {
		return err
	}
	if c.CORS.AllowedOrigins, err = getTrimmedStringSlice(dp, cfgKeyCORSAllowedOrigins); err != nil {
		return err
	}
	if c.AllowedReferers, err = getTrimmedStringSlice(dp, cfgKeyAllowedReferers); err != nil {
		return err
	}
	if c.TrustForwardedFor, err = dp.GetBool(cfgKeyTrustForwardedFor); err != nil {
		return err
	}
	if c.Cache.Capacity, err = dp.GetInt(cfgKeyCacheCapacity); err != nil {
		return err
	}
	if c.Cache.Capacity <= 0 {
		return dp.WrapKeyErr(cfgKeyCacheCapacity, fmt.Errorf("must be positive"))
	}
	return c.RateLimit.Set(dp)
}

// UpstreamConfig describes the upstream JSON API.
type UpstreamConfig struct {
	BaseURL     string `mapstructure:"baseURL" yaml:"baseURL" json:"baseURL"`
	ProfilePath string `mapstructure:"profilePath" yaml:"profilePath" json:"profilePath"`
}

// Set sets upstream configuration values from config.DataProvider.
func (u *UpstreamConfig) Set(dp config.DataProvider) error {
	var err error
	if u.BaseURL, err = dp.GetString(cfgKeyUpstreamBaseURL); err != nil {
		return err
	}
	if err = validateAbsoluteURL(u.BaseURL); err != nil {
		return dp.WrapKeyErr(cfgKeyUpstreamBaseURL, err)
	}
	if u.ProfilePath, err = dp.GetString(cfgKeyUpstreamProfilePath); err != nil {
		return err
	}
	if !strings.Contains(u.ProfilePath, ProfileIDPlaceholder) {
		return dp.WrapKeyErr(cfgKeyUpstreamProfilePath, fmt.Errorf("must contain %s placeholder", ProfileIDPlaceholder))
	}
	return nil
}

// WebhookConfig describes the Discord-compatible webhook sink.
type WebhookConfig struct {
	// URL is the webhook endpoint. Empty URL makes delivery routes fail with 500.
	URL string `mapstructure:"url" yaml:"url" json:"url"`

	// Username is used when a request does not override it.
	Username string `mapstructure:"username" yaml:"username" json:"username"`
}

// Set sets webhook configuration values from config.DataProvider.
func (w *WebhookConfig) Set(dp config.DataProvider) error {
	var err error
	if w.URL, err = dp.GetString(cfgKeyWebhookURL); err != nil {
		return err
	}
	if w.URL != "" {
		if err = validateAbsoluteURL(w.URL); err != nil {
			return dp.WrapKeyErr(cfgKeyWebhookURL, err)
		}
	}
	w.Username, err = dp.GetString(cfgKeyWebhookUsername)
	return err
}

// CORSConfig lists origins allowed for cross-origin requests.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins" yaml:"allowedOrigins" json:"allowedOrigins"`
}

// CacheConfig configures the upstream responses cache.
type CacheConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
}

// RateLimitConfig configures admission control of incoming requests.
type RateLimitConfig struct {
	Alg           ratelimit.Alg `mapstructure:"alg" yaml:"alg" json:"alg"`
	Capacity      int           `mapstructure:"capacity" yaml:"capacity" json:"capacity"`
	RatePerSecond float64       `mapstructure:"ratePerSecond" yaml:"ratePerSecond" json:"ratePerSecond"`
	MaxKeys       int           `mapstructure:"maxKeys" yaml:"maxKeys" json:"maxKeys"`
	DryRun        bool          `mapstructure:"dryRun" yaml:"dryRun" json:"dryRun"`
	Costs         CostsConfig   `mapstructure:"costs" yaml:"costs" json:"costs"`
}

// CostsConfig sets how many tokens a request of each route consumes.
type CostsConfig struct {
	Proxy   int `mapstructure:"proxy" yaml:"proxy" json:"proxy"`
	Relay   int `mapstructure:"relay" yaml:"relay" json:"relay"`
	Webhook int `mapstructure:"webhook" yaml:"webhook" json:"webhook"`
}

// Set sets rate limiting configuration values from config.DataProvider.
func (r *RateLimitConfig) Set(dp config.DataProvider) error {
	alg, err := dp.GetStringFromSet(cfgKeyRateLimitAlg, []string{
		string(ratelimit.AlgTokenBucket), string(ratelimit.AlgLeakyBucket), string(ratelimit.AlgSlidingWindow),
	}, false)
	if err != nil {
		return err
	}
	r.Alg = ratelimit.Alg(alg)

	if r.Capacity, err = dp.GetInt(cfgKeyRateLimitCapacity); err != nil {
		return err
	}
	if r.Capacity <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitCapacity, fmt.Errorf("must be positive"))
	}
	if r.RatePerSecond, err = dp.GetFloat64(cfgKeyRateLimitRatePerSecond); err != nil {
		return err
	}
	if r.RatePerSecond <= 0 || math.IsInf(r.RatePerSecond, 0) || math.IsNaN(r.RatePerSecond) {
		return dp.WrapKeyErr(cfgKeyRateLimitRatePerSecond, fmt.Errorf("must be a positive number"))
	}
	if r.MaxKeys, err = dp.GetInt(cfgKeyRateLimitMaxKeys); err != nil {
		return err
	}
	if r.MaxKeys < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitMaxKeys, fmt.Errorf("cannot be negative"))
	}
	if r.DryRun, err = dp.GetBool(cfgKeyRateLimitDryRun); err != nil {
		return err
	}

	for _, item := range []struct {
		key string
		dst *int
	}{
		{cfgKeyRateLimitCostsProxy, &r.Costs.Proxy},
		{cfgKeyRateLimitCostsRelay, &r.Costs.Relay},
		{cfgKeyRateLimitCostsWebhook, &r.Costs.Webhook},
	} {
		if *item.dst, err = dp.GetInt(item.key); err != nil {
			return err
		}
		if *item.dst < 0 {
			return dp.WrapKeyErr(item.key, fmt.Errorf("cannot be negative"))
		}
		if *item.dst > r.Capacity {
			return dp.WrapKeyErr(item.key, fmt.Errorf("cannot exceed rate limit capacity %d", r.Capacity))
		}
	}
	return nil
}

// LimiterParams converts the configuration into parameters of the admission algorithm.
// A whole rate is expressed as N per second, a fractional one as one unit per interval.
func (r *RateLimitConfig) LimiterParams() ratelimit.Params {
	var rate ratelimit.Rate
	if whole := math.Trunc(r.RatePerSecond); whole == r.RatePerSecond && whole >= 1 {
		rate = ratelimit.Rate{Count: int(whole), Duration: time.Second}
	} else {
		rate = ratelimit.Rate{Count: 1, Duration: time.Duration(float64(time.Second) / r.RatePerSecond)}
	}
	return ratelimit.Params{Alg: r.Alg, Capacity: r.Capacity, Rate: rate, MaxKeys: r.MaxKeys}
}

func getTrimmedStringSlice(dp config.DataProvider, key string) ([]string, error) {
	items, err := dp.GetStringSlice(key)
	if err != nil {
		return nil, err
	}
	var res []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res, nil
}

func validateAbsoluteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}
