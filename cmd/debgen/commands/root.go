package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "debgen",
		Short: "debgen - Debian control-file generator for multi-package releases",
		Long: `debgen converts declarative package metadata into the debian/ control-file
tree a native package builder needs.

Features:
  - YAML package descriptors validated against a CUE schema
  - Dependency-key resolution with per-run memoization and literal fallback
  - Starlark platform guards on individual dependencies
  - Changelog merging with release-version validation
  - Multi-package releases aggregated under one release-unit header`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newResolveCommand())

	return rootCmd
}
