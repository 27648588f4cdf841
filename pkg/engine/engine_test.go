package engine

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/openfroyo/sketcher/pkg/config"
	"github.com/openfroyo/sketcher/pkg/policy"
	"github.com/openfroyo/sketcher/pkg/sketch"
	"github.com/openfroyo/sketcher/pkg/solver"
	"github.com/openfroyo/sketcher/pkg/stores"
	"github.com/openfroyo/sketcher/pkg/telemetry"
)

// segmentScript fixes p1 at the origin and holds p2 on the horizontal
// two units away.
const segmentScript = `SketchPoint( 1, 0, 0 ),
SketchPoint( 2, 1.5, 0.3 ),
Line( 3, 1, 2 ),
FixedPointConstraint( 4, 1 ),
HorizontalConstraint( 5, 3 ),
FixedDistanceConstraint( 6, 1, 2, parameters <?xml version="1.0" encoding="utf-8"?><root><double name="distance" value="2"/></root> )`

// linkedScript places p2 at twice the variable w along the U axis.
const linkedScript = `SketchPoint( 1, 0, 0 ),
SketchPoint( 2, 1, 0 ),
FixedPointConstraint( 3, 1 ),
LinkedDistanceConstraint( 4, 1, 2, along [1, 0, 0], w * 2 ),
LinkedDistanceConstraint( 5, 2, [3, 5, 0], 5 )`

const solveTol = 1e-6

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(context.Background(), cfg, telemetry.Discard(), opts...)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func newTestStore(t *testing.T) stores.Store {
	t.Helper()
	st, err := stores.Open(context.Background(), stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func pointAt(t *testing.T, s *sketch.Sketch, id int) (float64, float64) {
	t.Helper()
	p, ok := sketch.Get[*sketch.SketchPoint](s, id)
	if !ok {
		t.Fatalf("Expected entity %d to be a point", id)
	}
	return p.Coords()
}

func TestEngine_Solve(t *testing.T) {
	e := newTestEngine(t, nil)

	res, err := e.Solve(context.Background(), segmentScript, SolveOptions{Source: "segment.sk"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !res.Converged {
		t.Error("Expected convergence")
	}
	if res.Residual > solveTol {
		t.Errorf("Expected residual below %g, got %g", solveTol, res.Residual)
	}
	if u, v := pointAt(t, res.Sketch, 2); math.Abs(u-2) > solveTol || math.Abs(v) > solveTol {
		t.Errorf("Expected p2 at (2, 0), got (%g, %g)", u, v)
	}
	if res.Summary.NDoF != 4 || res.Summary.NConstraints != 4 {
		t.Errorf("Expected 4 DoFs and 4 constraints, got %d and %d", res.Summary.NDoF, res.Summary.NConstraints)
	}
	if len(res.Hash) != 16 {
		t.Errorf("Expected 16 hex digit hash, got %q", res.Hash)
	}
	if res.Source != "segment.sk" {
		t.Errorf("Expected source segment.sk, got %s", res.Source)
	}
	if res.Settings != solver.DefaultSettings() {
		t.Errorf("Expected default settings, got %+v", res.Settings)
	}
	if !strings.Contains(res.Script, "HorizontalConstraint( 5, 3") {
		t.Errorf("Expected regenerated script, got:\n%s", res.Script)
	}
	if res.Lint != nil {
		t.Error("Expected no lint result without Lint")
	}
}

func TestEngine_Solve_ScriptRoundTrip(t *testing.T) {
	e := newTestEngine(t, nil)

	first, err := e.Solve(context.Background(), segmentScript, SolveOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	second, err := e.Solve(context.Background(), first.Script, SolveOptions{})
	if err != nil {
		t.Fatalf("Expected solved script to solve again, got: %v", err)
	}
	if second.Iterations > first.Iterations {
		t.Errorf("Expected solved script to need no more iterations, got %d then %d", first.Iterations, second.Iterations)
	}
}

func TestEngine_Solve_Variables(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Variables = map[string]float64{"w": 1.5}
	e := newTestEngine(t, cfg)

	res, err := e.Solve(context.Background(), linkedScript, SolveOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if u, v := pointAt(t, res.Sketch, 2); math.Abs(u-3) > solveTol || math.Abs(v) > solveTol {
		t.Errorf("Expected p2 at (3, 0), got (%g, %g)", u, v)
	}
}

func TestEngine_Solve_NotConverged(t *testing.T) {
	e := newTestEngine(t, nil)
	st := solver.DefaultSettings()
	st.MaxIter = 1

	res, err := e.Solve(context.Background(), segmentScript, SolveOptions{Settings: &st, Lint: true})
	if !errors.Is(err, solver.ErrNotConverged) {
		t.Fatalf("Expected ErrNotConverged, got: %v", err)
	}
	if res == nil {
		t.Fatal("Expected result alongside the error")
	}
	if res.Converged {
		t.Error("Expected Converged to be false")
	}
	if res.Lint == nil || res.Lint.Passed {
		t.Errorf("Expected failing lint on unsolved sketch, got %+v", res.Lint)
	}
	if Classify(err).Code != ErrCodeNotConverged {
		t.Errorf("Expected %s, got %s", ErrCodeNotConverged, Classify(err).Code)
	}
}

func TestEngine_Solve_Errors(t *testing.T) {
	e := newTestEngine(t, nil)
	bad := solver.DefaultSettings()
	bad.Relax = 3

	tests := []struct {
		name   string
		script string
		opts   SolveOptions
		code   string
	}{
		{"parse error", "Bogus( 1, 0, 0 )", SolveOptions{}, ErrCodeInvalidScript},
		{"bad settings", segmentScript, SolveOptions{Settings: &bad}, ErrCodeInvalidRequest},
		{"bad plane", segmentScript, SolveOptions{Plane: "UV"}, ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Solve(context.Background(), tt.script, tt.opts)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if res != nil {
				t.Errorf("Expected no result, got %+v", res)
			}
			if code := Classify(err).Code; code != tt.code {
				t.Errorf("Expected code %s, got %s (%v)", tt.code, code, err)
			}
		})
	}
}

func TestEngine_Solve_Cancelled(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Solve(ctx, segmentScript, SolveOptions{})
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if Classify(err).Code != ErrCodeTimeout {
		t.Errorf("Expected %s, got %s", ErrCodeTimeout, Classify(err).Code)
	}
}

func TestEngine_Solve_Concurrent(t *testing.T) {
	e := newTestEngine(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Solve(context.Background(), segmentScript, SolveOptions{Lint: true})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Expected no error, got: %v", err)
		}
	}
}

func TestEngine_Validate(t *testing.T) {
	e := newTestEngine(t, nil)

	report, err := e.Validate(context.Background(), "segment.sk", segmentScript)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(report.Summary.Entities) != 6 {
		t.Errorf("Expected 6 entities, got %d", len(report.Summary.Entities))
	}
	if report.Summary.Residual == 0 {
		t.Error("Expected nonzero residual before solving")
	}

	solved, err := e.Solve(context.Background(), segmentScript, SolveOptions{})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if solved.Hash == report.Hash {
		t.Error("Expected solving to change the hash")
	}
}

func TestEngine_Lint(t *testing.T) {
	e := newTestEngine(t, nil)

	report, err := e.Lint(context.Background(), "segment.sk", segmentScript, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report.Lint == nil || !report.Lint.Passed {
		t.Errorf("Expected passing lint, got %+v", report.Lint)
	}
	if e.LintFailed(report.Lint) {
		t.Error("Expected LintFailed to be false")
	}

	underConstrained := `SketchPoint( 1, 0, 0 ),
SketchPoint( 2, 1, 1 ),
Line( 3, 1, 2 )`
	report, err = e.Lint(context.Background(), "loose.sk", underConstrained, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	found := false
	for _, v := range report.Lint.Violations {
		if v.Policy == "under-constrained" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected under-constrained violation, got %+v", report.Lint.Violations)
	}
	if e.LintFailed(report.Lint) {
		t.Error("Expected warnings not to fail with fail_on error")
	}
}

func TestEngine_LintFailed_Threshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Policy.FailOn = "warning"
	e := newTestEngine(t, cfg)

	res := &policy.Result{Violations: []policy.Violation{{Policy: "p", Severity: policy.SeverityWarning}}}
	if !e.LintFailed(res) {
		t.Error("Expected warning to fail with fail_on warning")
	}
	res.Violations[0].Severity = policy.SeverityInfo
	if e.LintFailed(res) {
		t.Error("Expected info not to fail with fail_on warning")
	}
	if e.LintFailed(nil) {
		t.Error("Expected nil result not to fail")
	}
}

func TestEngine_DisabledPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Policy.Disabled = []string{"under-constrained"}
	e := newTestEngine(t, cfg)

	p, err := e.Policy().GetPolicy("under-constrained")
	if err != nil {
		t.Fatalf("Expected builtin policy, got: %v", err)
	}
	if p.Enabled {
		t.Error("Expected under-constrained to be disabled")
	}

	cfg = config.DefaultConfig()
	cfg.Policy.Disabled = []string{"no-such-rule"}
	if _, err := New(context.Background(), cfg, telemetry.Discard()); err == nil {
		t.Error("Expected error for unknown disabled policy")
	}
}

func TestEngine_Format(t *testing.T) {
	e := newTestEngine(t, nil)

	out, err := e.Format(context.Background(), "segment.sk", segmentScript)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	again, err := e.Format(context.Background(), "segment.sk", out)
	if err != nil {
		t.Fatalf("Expected formatted script to parse, got: %v", err)
	}
	if out != again {
		t.Errorf("Expected formatting to be stable\nfirst:\n%s\nsecond:\n%s", out, again)
	}
	if !strings.Contains(out, "SketchPoint( 2, 1.5, 0.3") {
		t.Errorf("Expected unsolved coordinates, got:\n%s", out)
	}
}

func TestEngine_Graph(t *testing.T) {
	e := newTestEngine(t, nil)

	dot, err := e.Graph(context.Background(), "segment.sk", segmentScript)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.HasPrefix(dot, "digraph") {
		t.Errorf("Expected DOT output, got:\n%s", dot)
	}
	if !strings.Contains(dot, `"5" -> "3";`) {
		t.Errorf("Expected horizontal constraint edge, got:\n%s", dot)
	}
}
