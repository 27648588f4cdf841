// Package engine runs the sketcher workflow on top of the sketch model.
//
// # Overview
//
// An Engine binds a configuration (plane, solver settings, variables and
// external curves) to the policy engine, the telemetry stack and an
// optional revision store. Every call parses its own sketch, so one Engine
// serves concurrent requests.
//
//  1. Parse - read a script into a sketch (Parse, Validate, Format, Graph)
//  2. Solve - resolve the constraints (Solve, SolveFiles)
//  3. Lint - evaluate the design rules (Lint, LintFailed)
//  4. Record - store solved scripts as document revisions (Commit, Undo)
//
// # Error Classification
//
// Workflow errors are classified with Classify into an *Error carrying a
// stable code. The HTTP service maps codes to status codes and the
// command line maps them to exit codes:
//
//	INVALID_SCRIPT   422  exit 2
//	INVALID_REQUEST  400  exit 2
//	NOT_CONVERGED    422  exit 3
//	SOLVER_FAILED    422  exit 3
//	NOT_FOUND        404  exit 1
//	CONFLICT         409  exit 1
//	UNAVAILABLE      503  exit 1
//	TIMEOUT          504  exit 1
//
// A solve that does not converge is not a hard failure: Solve returns the
// last iterate together with an error matching solver.ErrNotConverged.
//
// # Example Usage
//
//	cfg, _ := config.Load(ctx, config.Find("."))
//	eng, err := engine.New(ctx, cfg, tel, engine.WithStore(store))
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	res, err := eng.Solve(ctx, script, engine.SolveOptions{Source: "bracket.sk", Lint: true})
//	if errors.Is(err, solver.ErrNotConverged) {
//	    log.Warn().Float64("residual", res.Residual).Msg("Sketch not solved")
//	}
//
// # Batches
//
// SolveFiles solves independent files on a bounded worker pool. Results
// keep the input order; with FailFast the files after the first failure
// are reported as skipped.
package engine
