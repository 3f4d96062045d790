// Package config loads gateway configuration from defaults, an optional YAML
// file, and MESHAI_* environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete gateway configuration.
type Config struct {
	// AuthServiceURL is the base URL of the remote authentication service.
	AuthServiceURL string `mapstructure:"auth_service_url"`

	// AgentAPIURL is the base URL of the remote agent runtime API.
	AgentAPIURL string `mapstructure:"agent_api_url"`

	// APIToken is the process-level credential used for the stdio transport
	// and for outbound agent calls.
	APIToken string `mapstructure:"api_token"`

	// HTTPAddress is the listen address for the HTTP transport.
	HTTPAddress string `mapstructure:"http_address"`

	// AuthTimeout bounds each call to the auth validation endpoint.
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`

	// AgentTimeout bounds each remote agent invocation.
	AgentTimeout time.Duration `mapstructure:"agent_timeout"`

	// RequestTimeout bounds one HTTP request end to end; it must leave
	// room for a multi-wave workflow of agent calls.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// TokenCacheSize is the maximum number of cached token verdicts.
	TokenCacheSize int `mapstructure:"token_cache_size"`

	// TokenCacheTTL is how long a positive verdict stays cached.
	TokenCacheTTL time.Duration `mapstructure:"token_cache_ttl"`

	// TokenCacheNegativeTTL is how long a negative verdict stays cached.
	// Kept short so a token that becomes valid is not masked for long.
	TokenCacheNegativeTTL time.Duration `mapstructure:"token_cache_negative_ttl"`

	// RedisAddress enables the Redis token cache backend when non-empty.
	RedisAddress string `mapstructure:"redis_address"`

	// DefaultRateLimit is the requests-per-hour quota applied when the auth
	// service does not return one.
	DefaultRateLimit int `mapstructure:"default_rate_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("auth_service_url", "http://localhost:8000")
	v.SetDefault("agent_api_url", "http://localhost:8080")
	v.SetDefault("http_address", ":8081")
	v.SetDefault("auth_timeout", 5*time.Second)
	v.SetDefault("agent_timeout", 120*time.Second)
	v.SetDefault("request_timeout", 10*time.Minute)
	v.SetDefault("token_cache_size", 1000)
	v.SetDefault("token_cache_ttl", 5*time.Minute)
	v.SetDefault("token_cache_negative_ttl", 30*time.Second)
	v.SetDefault("default_rate_limit", 100)
}

// Load reads configuration from the optional file path plus the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("meshai")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.AuthServiceURL == "" {
		return fmt.Errorf("auth_service_url must be set")
	}
	if c.AgentAPIURL == "" {
		return fmt.Errorf("agent_api_url must be set")
	}
	if c.TokenCacheSize <= 0 {
		return fmt.Errorf("token_cache_size must be positive, got %d", c.TokenCacheSize)
	}
	if c.TokenCacheNegativeTTL > c.TokenCacheTTL {
		return fmt.Errorf("token_cache_negative_ttl must not exceed token_cache_ttl")
	}
	if c.RequestTimeout < c.AgentTimeout {
		return fmt.Errorf("request_timeout must be at least agent_timeout")
	}
	if c.DefaultRateLimit <= 0 {
		return fmt.Errorf("default_rate_limit must be positive, got %d", c.DefaultRateLimit)
	}
	return nil
}
