package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openfroyo/sketcher/pkg/engine"
	"github.com/openfroyo/sketcher/pkg/policy"
)

func newLintCommand() *cobra.Command {
	var (
		solve  bool
		failOn string
		list   bool
	)

	cmd := &cobra.Command{
		Use:   "lint [FILE]",
		Short: "Check a sketch against design rules",
		Long: `Lint evaluates the builtin and configured Rego design rules against a
sketch. With --solve the constraints are resolved first so residual rules
apply. The command fails when a violation reaches the fail_on severity.`,
		Example: `  sketcher lint bracket.sk
  sketcher lint --solve --fail-on warning bracket.sk
  sketcher lint --list`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("fail-on") {
				if _, ok := policy.ParseSeverity(failOn); !ok {
					return engine.NewError(engine.ErrCodeInvalidRequest, "invalid --fail-on: "+failOn, nil)
				}
				cfg.Policy.FailOn = failOn
			}
			rt, err := setupWith(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			out := cmd.OutOrStdout()
			if list {
				policies := rt.engine.Policy().ListPolicies()
				if jsonOutput {
					return writeJSON(out, policies)
				}
				for _, p := range policies {
					state := "enabled"
					if !p.Enabled {
						state = "disabled"
					}
					fmt.Fprintf(out, "%-22s %-8s %-8s %s\n", p.Name, p.Severity, state, p.Description)
				}
				return nil
			}
			if len(args) == 0 {
				return engine.NewError(engine.ErrCodeInvalidRequest, "lint needs a FILE unless --list is set", nil)
			}

			script, err := readScript(args[0])
			if err != nil {
				return err
			}
			report, err := rt.engine.Lint(ctx, args[0], script, solve)
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				printViolations(out, report.Lint)
			}
			if rt.engine.LintFailed(report.Lint) {
				return engine.NewError(engine.ErrCodeInvalidScript, errLintFailed.Error(), errLintFailed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&solve, "solve", false, "resolve constraints before linting")
	cmd.Flags().StringVar(&failOn, "fail-on", "", "lowest failing severity: info, warning or error")
	cmd.Flags().BoolVar(&list, "list", false, "list the loaded policies")
	return cmd
}

func printViolations(w io.Writer, res *policy.Result) {
	if res == nil {
		return
	}
	for _, v := range res.Violations {
		if v.Entity != nil {
			fmt.Fprintf(w, "%-7s [%s] entity %d: %s\n", v.Severity, v.Policy, *v.Entity, v.Message)
		} else {
			fmt.Fprintf(w, "%-7s [%s] %s\n", v.Severity, v.Policy, v.Message)
		}
		if v.Remediation != "" {
			fmt.Fprintf(w, "        %s\n", v.Remediation)
		}
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "policy warning: %s\n", warn)
	}
	fmt.Fprintf(w, "%d violations from %d policies\n", len(res.Violations), len(res.EvaluatedPolicies))
}
