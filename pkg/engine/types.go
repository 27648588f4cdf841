package engine

import (
	"time"

	"github.com/openfroyo/sketcher/pkg/policy"
	"github.com/openfroyo/sketcher/pkg/sketch"
	"github.com/openfroyo/sketcher/pkg/solver"
)

// SolveOptions controls a single solve.
type SolveOptions struct {
	// Source names the script in logs, spans and lint context.
	Source string

	// DocumentID is set when the solve belongs to a stored document.
	DocumentID string

	// Plane overrides the configured sketch plane (XY, XZ or YZ).
	Plane string

	// Settings overrides the configured solver settings.
	Settings *solver.Settings

	// Timeout bounds the solve. Zero means no limit beyond the context.
	Timeout time.Duration

	// Lint evaluates the design rules against the solved sketch.
	Lint bool

	// AllowPartial lets Commit store a revision that did not converge.
	AllowPartial bool

	// Callback is invoked after every solver iteration.
	Callback solver.Callback
}

// Report describes a parsed sketch.
type Report struct {
	Source  string          `json:"source,omitempty"`
	Hash    string          `json:"hash"`
	Summary *sketch.Summary `json:"summary"`
	Lint    *policy.Result  `json:"lint,omitempty"`
}

// SolveResult is the outcome of a solve. When the solver did not converge
// the result still carries the last iterate.
type SolveResult struct {
	Report

	// Script is the regenerated script with solved values.
	Script string `json:"script"`

	Settings      solver.Settings `json:"settings"`
	Converged     bool            `json:"converged"`
	Iterations    int             `json:"iterations"`
	Residual      float64         `json:"residual"`
	Unconstrained []int           `json:"unconstrained,omitempty"`
	Duration      time.Duration   `json:"duration"`

	Sketch *sketch.Sketch `json:"-"`
}

// FileStatus is the state of one file in a batch.
type FileStatus string

const (
	FileStatusPending      FileStatus = "pending"
	FileStatusConverged    FileStatus = "converged"
	FileStatusNotConverged FileStatus = "not_converged"
	FileStatusFailed       FileStatus = "failed"
	FileStatusSkipped      FileStatus = "skipped"
)

// FileResult is the outcome of solving one file in a batch.
type FileResult struct {
	Path   string       `json:"path"`
	Status FileStatus   `json:"status"`
	Result *SolveResult `json:"result,omitempty"`
	Error  *Error       `json:"error,omitempty"`
}

// BatchOptions controls SolveFiles.
type BatchOptions struct {
	// MaxParallel bounds the number of concurrent solves. Zero uses the
	// number of CPUs.
	MaxParallel int

	// FailFast skips the remaining files after the first failure.
	FailFast bool

	// Solve is applied to every file. Source is set to the file path.
	Solve SolveOptions
}

// BatchSummary counts the file statuses of a batch.
type BatchSummary struct {
	Total        int           `json:"total"`
	Converged    int           `json:"converged"`
	NotConverged int           `json:"not_converged"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Duration     time.Duration `json:"duration"`
}

// OK reports whether every file converged.
func (s BatchSummary) OK() bool {
	return s.Converged == s.Total
}
