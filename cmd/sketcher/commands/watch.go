package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/sketcher/pkg/engine"
)

func newWatchCommand() *cobra.Command {
	var (
		output  string
		delay   time.Duration
		lint    bool
		metrics bool
		sf      solverFlags
	)

	cmd := &cobra.Command{
		Use:   "watch FILE",
		Short: "Re-solve a sketch whenever it changes",
		Long: `Watch solves a sketch script, then solves it again each time the file is
written. Failures are reported and watching continues. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := setup(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			if metrics {
				if err := rt.tel.StartMetricsServer(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
				log.Info().Str("address", rt.cfg.Telemetry.Metrics.ListenAddress).Msg("Serving metrics")
			}

			settings, err := sf.apply(cmd, rt.cfg.Solver)
			if err != nil {
				return err
			}
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", args[0], err)
			}

			w := &watcher{
				rt:     rt,
				path:   path,
				output: output,
				opts:   engine.SolveOptions{Source: args[0], Settings: settings, Lint: lint},
				out:    cmd.OutOrStdout(),
			}
			return w.run(ctx, delay)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the solved script to a file after every solve")
	cmd.Flags().DurationVar(&delay, "delay", 200*time.Millisecond, "quiet period before re-solving")
	cmd.Flags().BoolVar(&lint, "lint", false, "evaluate design rules after solving")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "serve Prometheus metrics on telemetry.metrics.listen_address")
	sf.register(cmd)
	return cmd
}

type watcher struct {
	rt     *runtime
	path   string
	output string
	opts   engine.SolveOptions
	out    io.Writer
}

func (w *watcher) run(ctx context.Context, delay time.Duration) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	// Editors replace files on save, so watch the directory.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	w.solve(ctx)
	log.Info().Str("file", w.path).Msg("Watching sketch")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("op", event.Op.String()).Msg("Sketch changed")
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(delay)
			fire = timer.C

		case <-fire:
			fire = nil
			w.solve(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *watcher) solve(ctx context.Context) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		log.Warn().Err(err).Str("file", w.path).Msg("Failed to read sketch")
		return
	}

	start := time.Now()
	res, err := w.rt.engine.Solve(ctx, string(data), w.opts)
	if res == nil {
		fmt.Fprintf(w.out, "%s  error: %v\n", start.Format("15:04:05"), err)
		return
	}

	state := "converged"
	if !res.Converged {
		state = "not converged"
	}
	fmt.Fprintf(w.out, "%s  %s after %d iterations, residual %.3g (%s)\n",
		start.Format("15:04:05"), state, res.Iterations, res.Residual, time.Since(start).Round(time.Millisecond))
	if err := printPoints(w.out, res.Summary); err != nil {
		log.Warn().Err(err).Msg("Failed to print points")
	}
	if res.Lint != nil && len(res.Lint.Violations) > 0 {
		printViolations(w.out, res.Lint)
	}

	if w.output != "" && err == nil {
		if werr := os.WriteFile(w.output, []byte(res.Script), 0644); werr != nil {
			log.Warn().Err(werr).Str("file", w.output).Msg("Failed to write solved script")
		}
	}
}
