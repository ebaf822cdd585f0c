// Package main provides the entry point for the oxidize CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/oxidize/cmd/oxidize/commands"
	"github.com/Sumatoshi-tech/oxidize/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "oxidize",
		Short: "Oxidize - C/C++ to Rust translation orchestrator",
		Long: `Oxidize scans a C/C++ project, plans a dependency-respecting translation
order, and drives an LLM oracle to translate it unit by unit into a Rust
crate, validating every step against the crate's build.

Commands:
  scan      Scan sources into the symbol graph
  plan      Compute the translation order
  replace   Evaluate call-graph subtrees for library replacement
  run       Translate units in order
  collect   Show the scanned type declarations
  status    Show run progress`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("config", "", "config file path")

	rootCmd.AddCommand(commands.NewScanCommand())
	rootCmd.AddCommand(commands.NewPlanCommand())
	rootCmd.AddCommand(commands.NewReplaceCommand())
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewCollectCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "oxidize %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
