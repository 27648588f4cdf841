package config

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

// StarlarkEvaluator runs variable scripts. A script sees the variables
// declared in the configuration and the math module; its numeric globals
// become sketch variables:
//
//	width = 40
//	height = width / 2
//	diagonal = math.sqrt(width * width + height * height)
type StarlarkEvaluator struct {
	timeout time.Duration
}

// StarlarkResult is the outcome of one script run.
type StarlarkResult struct {
	// Variables are the numeric globals of the script.
	Variables map[string]float64

	// Ignored lists globals that are not numbers.
	Ignored []string

	ExecutionTime time.Duration
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &StarlarkEvaluator{
		timeout: timeout,
	}
}

// Evaluate executes a script with the given variables predeclared.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, filename, script string, input map[string]float64) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "variables",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	resultCh := make(chan *StarlarkResult, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := se.evaluateSync(thread, filename, script, input)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("timeout")
		return nil, fmt.Errorf("variables script %s: execution timeout after %v", filename, se.timeout)
	case err := <-errCh:
		return nil, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(startTime)
		return result, nil
	}
}

func (se *StarlarkEvaluator) evaluateSync(thread *starlark.Thread, filename, script string, input map[string]float64) (*StarlarkResult, error) {
	predeclared := starlark.StringDict{
		"math": starmath.Module,
	}
	for name, v := range input {
		predeclared[name] = starlark.Float(v)
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	result := &StarlarkResult{Variables: make(map[string]float64, len(globals))}
	for name, val := range globals {
		// Skip internal variables (starting with _)
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		f, ok := toFloat(val)
		if !ok {
			result.Ignored = append(result.Ignored, name)
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("variable %s is not finite", name)
		}
		result.Variables[name] = f
	}
	sort.Strings(result.Ignored)

	return result, nil
}

func toFloat(v starlark.Value) (float64, bool) {
	switch val := v.(type) {
	case starlark.Float:
		return float64(val), true
	case starlark.Int:
		f, err := starlark.AsFloat(val)
		return f, err == nil
	}
	return 0, false
}
