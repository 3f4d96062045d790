// Package app provides the entry point for the meshai-mcp command-line
// application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meshailabs-org/meshai-mcp/pkg/logger"
	"github.com/meshailabs-org/meshai-mcp/pkg/versions"
)

var rootCmd = &cobra.Command{
	Use:               "meshai-mcp",
	DisableAutoGenTag: true,
	Short:             "MeshAI MCP Gateway - Multi-agent orchestration over MCP",
	Long: `MeshAI MCP Gateway exposes MeshAI's multi-agent orchestration through the
Model Context Protocol. It provides:

- Named multi-agent workflows (code review, refactoring, debugging, and more)
- Ad hoc agent selection from free-form task descriptions
- Token authentication against the MeshAI auth service with verdict caching
- Per-user hourly rate limiting
- stdio and HTTP transports sharing one dispatcher`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the meshai-mcp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	if err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to gateway configuration file")
	err = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	if err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			info := versions.GetVersionInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "meshai-mcp %s (commit %s, built %s)\n",
				info.Version, info.Commit, info.BuildDate)
		},
	}
}
