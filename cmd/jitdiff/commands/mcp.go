package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dasmtools/jitdiff/internal/mcp"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes the listing comparison as tools that AI agents can
discover and invoke:
  - jitdiff_diff: Compare a base and a diff listing set
  - jitdiff_metrics: List the metrics available for comparison`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			logger := newLogger(os.Stderr, debug, "text")

			srv := mcp.NewServer(mcp.ServerDeps{Logger: logger})

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}
