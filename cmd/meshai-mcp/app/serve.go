package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshailabs-org/meshai-mcp/pkg/agent"
	"github.com/meshailabs-org/meshai-mcp/pkg/auth"
	"github.com/meshailabs-org/meshai-mcp/pkg/auth/cache"
	"github.com/meshailabs-org/meshai-mcp/pkg/config"
	"github.com/meshailabs-org/meshai-mcp/pkg/dispatch"
	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
	"github.com/meshailabs-org/meshai-mcp/pkg/ratelimit"
	"github.com/meshailabs-org/meshai-mcp/pkg/transport"
	"github.com/meshailabs-org/meshai-mcp/pkg/workflow"
)

// shutdownTimeout bounds draining on exit.
const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MeshAI MCP gateway",
		Long: `Start the gateway and serve MCP requests over the selected transport.

With --transport stdio the gateway speaks one JSON envelope per line over
stdin/stdout, authenticating the whole stream with the configured API token.
With --transport http it listens on the configured address and authenticates
each request by bearer token.`,
		RunE: runServe,
	}
	cmd.Flags().String("transport", "stdio", "Transport to serve on: stdio or http")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return fmt.Errorf("configuration loading failed: %w", err)
	}

	verdictCache := newVerdictCache(cfg)
	defer verdictCache.Close()

	authenticator := auth.NewAuthenticator(
		auth.NewClient(cfg.AuthServiceURL, cfg.AuthTimeout),
		verdictCache,
		cfg.TokenCacheTTL,
		cfg.TokenCacheNegativeTTL,
		cfg.DefaultRateLimit,
	)
	limiter := ratelimit.NewLimiter()
	dispatcher := dispatch.New(
		workflow.NewCatalogue(),
		agent.NewHTTPClient(cfg.AgentAPIURL, cfg.APIToken, cfg.AgentTimeout),
		cfg.AgentTimeout,
	)

	kind, err := cmd.Flags().GetString("transport")
	if err != nil {
		return err
	}

	var t transport.Transport
	switch kind {
	case "stdio":
		t = transport.NewStdio(os.Stdin, os.Stdout, authenticator, limiter, dispatcher, cfg.APIToken)
	case "http":
		t = transport.NewHTTPServer(transport.HTTPConfig{
			Address:        cfg.HTTPAddress,
			Authenticator:  authenticator,
			Limiter:        limiter,
			Handler:        dispatcher,
			RequestTimeout: cfg.RequestTimeout,
		})
	default:
		return fmt.Errorf("unknown transport %q, expected stdio or http", kind)
	}

	logger.Infof("Starting MeshAI MCP gateway on %s transport", kind)
	serveErr := t.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := t.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Shutdown did not complete cleanly: %v", err)
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return nil
}

// newVerdictCache selects the token cache backend: Redis when an address is
// configured, in-process LRU otherwise.
func newVerdictCache(cfg *config.Config) cache.Cache {
	if cfg.RedisAddress != "" {
		logger.Infof("Using Redis token cache at %s", cfg.RedisAddress)
		return cache.NewRedisCache(cfg.RedisAddress)
	}
	return cache.NewMemoryCache(cfg.TokenCacheSize)
}
