package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/sketcher/pkg/engine"
	"github.com/openfroyo/sketcher/pkg/solver"
)

// solverFlags override the configured solver settings.
type solverFlags struct {
	kind      string
	tolerance float64
	relax     float64
	maxIter   int
}

func (f *solverFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "solver", "", "solver kind: root or minimize")
	cmd.Flags().Float64Var(&f.tolerance, "tolerance", 0, "convergence tolerance")
	cmd.Flags().Float64Var(&f.relax, "relax", 0, "step relaxation factor in (0, 1]")
	cmd.Flags().IntVar(&f.maxIter, "max-iter", 0, "maximum number of iterations")
}

func (f *solverFlags) apply(cmd *cobra.Command, base solver.Settings) (*solver.Settings, error) {
	st := base
	if cmd.Flags().Changed("solver") {
		kind, err := solver.ParseKind(f.kind)
		if err != nil {
			return nil, engine.NewError(engine.ErrCodeInvalidRequest, "invalid --solver", err)
		}
		st.Kind = kind
	}
	if cmd.Flags().Changed("tolerance") {
		st.Tolerance = f.tolerance
	}
	if cmd.Flags().Changed("relax") {
		st.Relax = f.relax
	}
	if cmd.Flags().Changed("max-iter") {
		st.MaxIter = f.maxIter
	}
	return &st, nil
}

func newSolveCommand() *cobra.Command {
	var (
		output       string
		allowPartial bool
		lint         bool
		parallel     int
		failFast     bool
		sf           solverFlags
	)

	cmd := &cobra.Command{
		Use:   "solve FILE...",
		Short: "Resolve the constraints of sketch scripts",
		Long: `Solve reads a sketch script, resolves its constraints and prints the
solved point coordinates. The solved script is written with -o.

Several files are solved in parallel; each file is reported on one line.
A sketch that does not converge fails the command unless --allow-partial
is set.`,
		Example: `  # Solve and print the point table
  sketcher solve bracket.sk

  # Write the solved script
  sketcher solve bracket.sk -o bracket.solved.sk

  # Least squares with a looser tolerance
  sketcher solve --solver minimize --tolerance 1e-8 bracket.sk

  # Solve a directory of sketches four at a time
  sketcher solve --parallel 4 sketches/*.sk`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			settings, err := sf.apply(cmd, rt.cfg.Solver)
			if err != nil {
				return err
			}
			opts := engine.SolveOptions{Settings: settings, Lint: lint}

			if len(args) > 1 {
				if output != "" {
					return engine.NewError(engine.ErrCodeInvalidRequest, "-o needs a single input file", nil)
				}
				return solveBatch(cmd, rt, args, engine.BatchOptions{
					MaxParallel: parallel,
					FailFast:    failFast,
					Solve:       opts,
				}, allowPartial)
			}

			script, err := readScript(args[0])
			if err != nil {
				return err
			}
			opts.Source = args[0]
			res, serr := rt.engine.Solve(ctx, script, opts)
			if res == nil {
				return serr
			}

			out := cmd.OutOrStdout()
			switch {
			case output == "-":
				fmt.Fprint(out, res.Script)
			case output != "":
				if err := os.WriteFile(output, []byte(res.Script), 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
			}
			if output != "-" {
				if jsonOutput {
					if err := writeJSON(out, res); err != nil {
						return err
					}
				} else {
					if err := printPoints(out, res.Summary); err != nil {
						return err
					}
					state := "converged"
					if !res.Converged {
						state = "not converged"
					}
					fmt.Fprintf(out, "%s after %d iterations, residual %.3g\n", state, res.Iterations, res.Residual)
					if len(res.Unconstrained) > 0 {
						fmt.Fprintf(out, "unconstrained entities: %v\n", res.Unconstrained)
					}
					if res.Lint != nil {
						printViolations(out, res.Lint)
					}
				}
			}

			if serr != nil {
				if allowPartial && errors.Is(serr, solver.ErrNotConverged) {
					log.Warn().Str("file", args[0]).Float64("residual", res.Residual).Msg("Sketch not converged")
					return nil
				}
				return serr
			}
			if rt.engine.LintFailed(res.Lint) {
				return engine.NewError(engine.ErrCodeInvalidScript, errLintFailed.Error(), errLintFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the solved script to a file, or - for stdout")
	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "succeed even when the solver does not converge")
	cmd.Flags().BoolVar(&lint, "lint", false, "evaluate design rules after solving")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "maximum concurrent solves for several files (default: CPUs)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "skip remaining files after the first failure")
	sf.register(cmd)

	return cmd
}

func solveBatch(cmd *cobra.Command, rt *runtime, paths []string, opts engine.BatchOptions, allowPartial bool) error {
	results, summary, err := rt.engine.SolveFiles(cmd.Context(), paths, opts)

	out := cmd.OutOrStdout()
	if jsonOutput {
		if werr := writeJSON(out, map[string]interface{}{"files": results, "summary": summary}); werr != nil {
			return werr
		}
	} else {
		for _, r := range results {
			switch {
			case r.Result != nil:
				fmt.Fprintf(out, "%-14s %s (%d iterations, residual %.3g)\n", r.Status, r.Path, r.Result.Iterations, r.Result.Residual)
			case r.Error != nil:
				fmt.Fprintf(out, "%-14s %s: %s\n", r.Status, r.Path, r.Error.Message)
			default:
				fmt.Fprintf(out, "%-14s %s\n", r.Status, r.Path)
			}
		}
		fmt.Fprintf(out, "%d files: %d converged, %d not converged, %d failed, %d skipped\n",
			summary.Total, summary.Converged, summary.NotConverged, summary.Failed, summary.Skipped)
	}

	if err == nil {
		return nil
	}
	if allowPartial && summary.Failed == 0 && summary.Skipped == 0 {
		return nil
	}
	return err
}
