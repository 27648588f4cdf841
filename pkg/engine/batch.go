package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openfroyo/sketcher/pkg/solver"
)

// SolveFiles solves independent script files in parallel. Results are
// returned in the order of paths. The returned error is the first failure,
// or nil when every file converged.
func (e *Engine) SolveFiles(ctx context.Context, paths []string, opts BatchOptions) ([]FileResult, BatchSummary, error) {
	start := time.Now()
	results := make([]FileResult, len(paths))
	for i, p := range paths {
		results[i] = FileResult{Path: p, Status: FileStatusPending}
	}
	if len(paths) == 0 {
		return results, BatchSummary{}, nil
	}

	workerCount := opts.MaxParallel
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if len(paths) < workerCount {
		workerCount = len(paths)
	}

	workQueue := make(chan int, len(paths))
	for i := range paths {
		workQueue <- i
	}
	close(workQueue)

	var stop atomic.Bool
	var wg sync.WaitGroup
	errChan := make(chan error, len(paths))

	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for i := range workQueue {
				if stop.Load() || ctx.Err() != nil {
					results[i].Status = FileStatusSkipped
					continue
				}

				results[i] = e.solveFile(ctx, paths[i], opts.Solve)
				e.logFileResult(worker, results[i])
				if results[i].Status != FileStatusConverged {
					errChan <- fmt.Errorf("%s: %w", paths[i], results[i].Error)
					if opts.FailFast {
						stop.Store(true)
					}
				}
			}
		}(w)
	}

	wg.Wait()
	close(errChan)

	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil && ctx.Err() != nil {
		firstErr = ctx.Err()
	}

	summary := summarize(results)
	summary.Duration = time.Since(start)
	e.logger.Info().
		Int("total", summary.Total).
		Int("converged", summary.Converged).
		Int("not_converged", summary.NotConverged).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Batch solved")
	return results, summary, firstErr
}

func (e *Engine) solveFile(ctx context.Context, path string, opts SolveOptions) FileResult {
	fr := FileResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		fr.Status = FileStatusFailed
		fr.Error = NewError(ErrCodeInvalidRequest, "failed to read script", err)
		return fr
	}

	opts.Source = path
	res, err := e.Solve(ctx, string(data), opts)
	fr.Result = res
	switch {
	case err == nil:
		fr.Status = FileStatusConverged
	case res != nil && errors.Is(err, solver.ErrNotConverged):
		fr.Status = FileStatusNotConverged
		fr.Error = Classify(err)
	default:
		fr.Status = FileStatusFailed
		fr.Error = Classify(err)
	}
	return fr
}

func (e *Engine) logFileResult(worker int, fr FileResult) {
	log := e.tel.Logger.WithFields(map[string]interface{}{
		"path":   fr.Path,
		"status": string(fr.Status),
		"worker": worker,
	})
	if fr.Error != nil {
		log.Warnf("Batch file %s: %s", fr.Status, fr.Error.Message)
		return
	}
	log.Debugf("Batch file solved in %d iterations", fr.Result.Iterations)
}

func summarize(results []FileResult) BatchSummary {
	summary := BatchSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case FileStatusConverged:
			summary.Converged++
		case FileStatusNotConverged:
			summary.NotConverged++
		case FileStatusFailed:
			summary.Failed++
		case FileStatusSkipped, FileStatusPending:
			summary.Skipped++
		}
	}
	return summary
}
