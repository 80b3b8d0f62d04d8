package config

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/Bipboy/urql/client"
	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/exchange"
	"github.com/Bipboy/urql/exchanges/cachex"
	"github.com/Bipboy/urql/exchanges/dedup"
	"github.com/Bipboy/urql/exchanges/fetchx"
	"github.com/Bipboy/urql/exchanges/retryx"
	"github.com/Bipboy/urql/exchanges/throttle"
	"github.com/Bipboy/urql/exchanges/wsx"
	"github.com/Bipboy/urql/gql"
	"github.com/Bipboy/urql/pkg/retry"
)

// Config is the complete declarative client configuration.
type Config struct {
	URL           string `yaml:"url"`
	RequestPolicy string `yaml:"request_policy,omitempty"`
	PreferGet     bool   `yaml:"prefer_get,omitempty"`

	HTTP      HTTPConfig      `yaml:"http,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
	Retry     RetryConfig     `yaml:"retry,omitempty"`
	Throttle  ThrottleConfig  `yaml:"throttle,omitempty"`
	WebSocket WebSocketConfig `yaml:"websocket,omitempty"`
}

// HTTPConfig tunes the HTTP transport.
type HTTPConfig struct {
	Timeout Duration `yaml:"timeout,omitempty"`
}

// CacheConfig tunes the document cache. A zero TTL keeps entries until
// a mutation invalidates them.
type CacheConfig struct {
	TTL             Duration `yaml:"ttl,omitempty"`
	CleanupInterval Duration `yaml:"cleanup_interval,omitempty"`
}

// RetryConfig enables and tunes transparent retry.
type RetryConfig struct {
	Enabled      bool     `yaml:"enabled"`
	MaxAttempts  int      `yaml:"max_attempts,omitempty"`
	InitialDelay Duration `yaml:"initial_delay,omitempty"`
	MaxDelay     Duration `yaml:"max_delay,omitempty"`
	Multiplier   float64  `yaml:"multiplier,omitempty"`
	Jitter       bool     `yaml:"jitter,omitempty"`
}

// ThrottleConfig enables and tunes dispatch rate limiting.
type ThrottleConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate,omitempty"`
	Burst   int     `yaml:"burst,omitempty"`
}

// WebSocketConfig enables the subscription transport. Presence of a
// URL enables it.
type WebSocketConfig struct {
	URL        string   `yaml:"url,omitempty"`
	AckTimeout Duration `yaml:"ack_timeout,omitempty"`
}

// requestPolicies maps the YAML spelling onto the typed policy.
var requestPolicies = map[string]gql.RequestPolicy{
	"":                  gql.CacheFirst,
	"cache-first":       gql.CacheFirst,
	"cache-only":        gql.CacheOnly,
	"network-only":      gql.NetworkOnly,
	"cache-and-network": gql.CacheAndNetwork,
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config", "Load", "file read")
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(err, "config", "Parse", "YAML decode")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for structural errors. All
// failures are classified invalid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.WrapInvalid(
			errors.ErrMissingConfig, "config", "Validate", "url is required")
	}
	if _, ok := requestPolicies[c.RequestPolicy]; !ok {
		return errors.WrapInvalid(
			fmt.Errorf("unknown request policy %q", c.RequestPolicy),
			"config", "Validate", "request_policy check")
	}
	if c.Retry.Enabled {
		if c.Retry.MaxAttempts < 0 {
			return errors.WrapInvalid(
				fmt.Errorf("retry.max_attempts cannot be negative"),
				"config", "Validate", "retry check")
		}
		if c.Retry.Multiplier < 0 {
			return errors.WrapInvalid(
				fmt.Errorf("retry.multiplier cannot be negative"),
				"config", "Validate", "retry check")
		}
	}
	if c.Throttle.Enabled {
		if c.Throttle.Rate <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("throttle.rate must be positive"),
				"config", "Validate", "throttle check")
		}
		if c.Throttle.Burst <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("throttle.burst must be positive"),
				"config", "Validate", "throttle check")
		}
	}
	return nil
}

// ClientOptions maps the configuration onto client options, including
// the assembled exchange chain.
func (c *Config) ClientOptions() []client.Option {
	return []client.Option{
		client.WithURL(c.URL),
		client.WithRequestPolicy(requestPolicies[c.RequestPolicy]),
		client.WithExchanges(c.Exchanges()...),
	}
}

// Exchanges assembles the exchange chain the configuration describes.
// Optional stages sit between dedup/cache at the front and the HTTP
// terminal at the back, mirroring the default chain's ordering.
func (c *Config) Exchanges() []exchange.Named {
	chain := []exchange.Named{
		dedup.New(),
		cachex.New(c.cacheOptions()...),
	}

	if c.Retry.Enabled {
		chain = append(chain, retryx.New(retryx.WithConfig(retry.Config{
			MaxAttempts:  c.Retry.MaxAttempts,
			InitialDelay: time.Duration(c.Retry.InitialDelay),
			MaxDelay:     time.Duration(c.Retry.MaxDelay),
			Multiplier:   c.Retry.Multiplier,
			AddJitter:    c.Retry.Jitter,
		})))
	}

	if c.Throttle.Enabled {
		chain = append(chain, throttle.New(
			throttle.WithLimit(rate.Limit(c.Throttle.Rate), c.Throttle.Burst)))
	}

	if c.WebSocket.URL != "" {
		wsOpts := []wsx.Option{wsx.WithURL(c.WebSocket.URL)}
		if c.WebSocket.AckTimeout > 0 {
			wsOpts = append(wsOpts, wsx.WithAckTimeout(time.Duration(c.WebSocket.AckTimeout)))
		}
		chain = append(chain, wsx.New(wsOpts...))
	}

	fetchOpts := []fetchx.Option{}
	if c.HTTP.Timeout > 0 {
		fetchOpts = append(fetchOpts, fetchx.WithHTTPClient(
			&http.Client{Timeout: time.Duration(c.HTTP.Timeout)}))
	}
	return append(chain, fetchx.New(fetchOpts...))
}

func (c *Config) cacheOptions() []cachex.Option {
	if c.Cache.TTL > 0 {
		return []cachex.Option{cachex.WithTTL(
			time.Duration(c.Cache.TTL), time.Duration(c.Cache.CleanupInterval))}
	}
	return nil
}
