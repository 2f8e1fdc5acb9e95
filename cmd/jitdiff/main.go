// Package main provides the entry point for the jitdiff CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dasmtools/jitdiff/cmd/jitdiff/commands"
	"github.com/dasmtools/jitdiff/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "jitdiff",
		Short: "jitdiff - compare JIT disassembly listing sets",
		Long: `jitdiff compares two sets of JIT disassembly listings and reports
per-method metric regressions and improvements.

Commands:
  diff      Compare a base and a diff listing set
  metrics   List the metrics available for comparison
  mcp       Start an MCP server exposing the comparison as a tool`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewDiffCommand())
	rootCmd.AddCommand(commands.NewMetricsCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	os.Exit(commands.ExitCode())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "jitdiff %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
