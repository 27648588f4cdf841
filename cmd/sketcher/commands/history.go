package commands

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/sketcher/pkg/engine"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage stored sketch documents and their revisions",
		Long: `Documents are named sketches kept in the revision store. Every commit
solves the script and saves the result as a new revision; undo drops the
latest one.`,
		Example: `  sketcher history new bracket --plane XZ
  sketcher history commit <document> bracket.sk -m "add fillet"
  sketcher history log <document>
  sketcher history checkout <document> 2 -o bracket.sk
  sketcher history undo <document>`,
	}

	cmd.AddCommand(newHistoryNewCommand())
	cmd.AddCommand(newHistoryListCommand())
	cmd.AddCommand(newHistoryLogCommand())
	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryCheckoutCommand())
	cmd.AddCommand(newHistoryCommitCommand())
	cmd.AddCommand(newHistoryUndoCommand())
	cmd.AddCommand(newHistoryDeleteCommand())

	return cmd
}

func newHistoryNewCommand() *cobra.Command {
	var plane string

	cmd := &cobra.Command{
		Use:   "new NAME",
		Short: "Create an empty document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			doc, err := rt.engine.CreateDocument(ctx, args[0], plane)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), doc)
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&plane, "plane", "", "sketch plane: XY, XZ or YZ (default: configured plane)")
	return cmd
}

func newHistoryListCommand() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			docs, err := rt.engine.Documents(ctx, limit, offset)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), docs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPLANE\tREVISIONS\tUPDATED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.ID, d.Name, d.Plane, d.Revisions, d.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of documents")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of documents to skip")
	return cmd
}

func newHistoryLogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "log DOCUMENT",
		Short: "List the revisions of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			revs, err := rt.engine.Revisions(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), revs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SEQ\tSOLVER\tCONVERGED\tRESIDUAL\tCREATED\tMESSAGE")
			for _, r := range revs {
				fmt.Fprintf(tw, "%d\t%s\t%t\t%.3g\t%s\t%s\n",
					r.Seq, r.SolverKind, r.Converged, r.Residual, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Message)
			}
			return tw.Flush()
		},
	}
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show DOCUMENT [SEQ]",
		Short: "Print the script of a revision (default: latest)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			seq, err := seqArg(args)
			if err != nil {
				return err
			}
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			rev, err := rt.engine.Revision(ctx, args[0], seq)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rev)
			}
			fmt.Fprint(cmd.OutOrStdout(), rev.Script)
			return nil
		},
	}
}

func newHistoryCheckoutCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "checkout DOCUMENT [SEQ]",
		Short: "Load a revision and print its points, optionally writing its script",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			seq, err := seqArg(args)
			if err != nil {
				return err
			}
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			s, rev, err := rt.engine.Checkout(ctx, args[0], seq)
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, []byte(rev.Script), 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
			}

			sum, err := s.Summary()
			if err != nil {
				return engine.NewError(engine.ErrCodeInternal, "failed to summarize revision", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"revision": rev, "summary": sum})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revision %d (%s)\n", rev.Seq, rev.SolverKind)
			return printPoints(cmd.OutOrStdout(), sum)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the revision script to a file")
	return cmd
}

func newHistoryCommitCommand() *cobra.Command {
	var (
		message      string
		allowPartial bool
		sf           solverFlags
	)

	cmd := &cobra.Command{
		Use:   "commit DOCUMENT FILE",
		Short: "Solve a script and save it as the next revision",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			settings, err := sf.apply(cmd, rt.cfg.Solver)
			if err != nil {
				return err
			}
			script, err := readScript(args[1])
			if err != nil {
				return err
			}

			rev, res, err := rt.engine.Commit(ctx, args[0], script, message, engine.SolveOptions{
				Settings:     settings,
				AllowPartial: allowPartial,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"revision": rev, "solve": res})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revision %d saved (%d iterations, residual %.3g)\n", rev.Seq, res.Iterations, res.Residual)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "revision message")
	cmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "save the revision even when the solver does not converge")
	sf.register(cmd)
	return cmd
}

func newHistoryUndoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "undo DOCUMENT",
		Short: "Drop the latest revision of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			rev, err := rt.engine.Undo(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rev)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "now at revision %d\n", rev.Seq)
			return nil
		},
	}
}

func newHistoryDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete DOCUMENT",
		Short: "Delete a document and all of its revisions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, true)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			return rt.engine.DeleteDocument(ctx, args[0])
		},
	}
}

// seqArg returns the optional revision number argument; 0 means latest.
func seqArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, nil
	}
	seq, err := strconv.Atoi(args[1])
	if err != nil || seq < 1 {
		return 0, engine.NewError(engine.ErrCodeInvalidRequest, "revision must be a positive integer", err)
	}
	return seq, nil
}
