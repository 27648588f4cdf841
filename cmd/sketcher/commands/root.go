package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	profile    string
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
		Use:   "sketcher",
		Short: "sketcher - constrained 2D sketch engine",
		Long: `sketcher reads sketch scripts, resolves their geometric constraints and
writes the solved geometry back as a script.

Features:
  - Points, lines and external curves on a datum plane
  - Fixed and expression-linked distance and angle constraints
  - Newton root finding or least-squares minimization
  - Rego design rules over solved sketches
  - Revision history with undo, over the command line or HTTP`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: sketcher.yaml, sketcher.yml or sketcher.cue in the working directory)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "telemetry profile replacing the configured one (default, development, production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newSolveCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newFmtCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newLintCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
