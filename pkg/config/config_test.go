package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshailabs-org/meshai-mcp/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.AuthServiceURL)
	assert.Equal(t, "http://localhost:8080", cfg.AgentAPIURL)
	assert.Equal(t, ":8081", cfg.HTTPAddress)
	assert.Equal(t, 5*time.Second, cfg.AuthTimeout)
	assert.Equal(t, 120*time.Second, cfg.AgentTimeout)
	assert.Equal(t, 10*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, 1000, cfg.TokenCacheSize)
	assert.Equal(t, 5*time.Minute, cfg.TokenCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.TokenCacheNegativeTTL)
	assert.Equal(t, 100, cfg.DefaultRateLimit)
	assert.Empty(t, cfg.RedisAddress)
}

func TestLoadFromEnvironment(t *testing.T) { //nolint:paralleltest // modifies process env
	t.Setenv("MESHAI_AUTH_SERVICE_URL", "https://auth.meshai.example")
	t.Setenv("MESHAI_DEFAULT_RATE_LIMIT", "250")
	t.Setenv("MESHAI_TOKEN_CACHE_TTL", "2m")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://auth.meshai.example", cfg.AuthServiceURL)
	assert.Equal(t, 250, cfg.DefaultRateLimit)
	assert.Equal(t, 2*time.Minute, cfg.TokenCacheTTL)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth_service_url: https://auth.internal:8443
agent_api_url: https://agents.internal:8443
api_token: file-token
redis_address: redis.internal:6379
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://auth.internal:8443", cfg.AuthServiceURL)
	assert.Equal(t, "https://agents.internal:8443", cfg.AgentAPIURL)
	assert.Equal(t, "file-token", cfg.APIToken)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddress)
	// Unset keys keep their defaults.
	assert.Equal(t, 100, cfg.DefaultRateLimit)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() *config.Config {
		return &config.Config{
			AuthServiceURL:        "http://localhost:8000",
			AgentAPIURL:           "http://localhost:8080",
			AuthTimeout:           5 * time.Second,
			AgentTimeout:          2 * time.Minute,
			RequestTimeout:        10 * time.Minute,
			TokenCacheSize:        1000,
			TokenCacheTTL:         5 * time.Minute,
			TokenCacheNegativeTTL: 30 * time.Second,
			DefaultRateLimit:      100,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"valid", func(_ *config.Config) {}, false},
		{"missing auth url", func(c *config.Config) { c.AuthServiceURL = "" }, true},
		{"missing agent url", func(c *config.Config) { c.AgentAPIURL = "" }, true},
		{"zero cache size", func(c *config.Config) { c.TokenCacheSize = 0 }, true},
		{"negative ttl exceeds positive", func(c *config.Config) { c.TokenCacheNegativeTTL = 10 * time.Minute }, true},
		{"request timeout below agent timeout", func(c *config.Config) { c.RequestTimeout = time.Minute }, true},
		{"zero rate limit", func(c *config.Config) { c.DefaultRateLimit = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
