package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Parse a sketch script and report its structure",
		Long: `Validate parses a sketch script without solving it and prints the
entity count, the number of degrees of freedom and the number of
constraint equations.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			script, err := readScript(args[0])
			if err != nil {
				return err
			}
			report, err := rt.engine.Validate(ctx, args[0], script)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, report)
			}
			printSummary(out, args[0], report.Summary)
			return nil
		},
	}
}

func newFmtCommand() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "fmt FILE",
		Short: "Rewrite a sketch script in canonical form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			script, err := readScript(args[0])
			if err != nil {
				return err
			}
			formatted, err := rt.engine.Format(ctx, args[0], script)
			if err != nil {
				return err
			}

			if write && args[0] != "-" {
				if formatted == script {
					return nil
				}
				if err := os.WriteFile(args[0], []byte(formatted), 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", args[0], err)
				}
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to the file")
	return cmd
}

func newGraphCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "graph FILE",
		Short:   "Print the entity dependency graph in DOT format",
		Example: `  sketcher graph bracket.sk | dot -Tsvg > bracket.svg`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			script, err := readScript(args[0])
			if err != nil {
				return err
			}
			dot, err := rt.engine.Graph(ctx, args[0], script)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), dot)
			return nil
		},
	}
}
