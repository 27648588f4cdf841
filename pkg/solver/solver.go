package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

var (
	// ErrNotConverged is returned together with a Result when the iteration
	// budget is exhausted or the iteration stalls before the tolerance is
	// met.
	ErrNotConverged = errors.New("solver did not converge")

	// ErrStopped is returned when the callback requested termination.
	ErrStopped = errors.New("solver stopped by callback")
)

// Func evaluates the residual vector for a DoF vector.
type Func func(x []float64) ([]float64, error)

// Iteration describes the state after one iteration.
type Iteration struct {
	N        int
	X        []float64
	Residual float64
	Metric   float64
}

// Callback is invoked after every iteration. A non-nil error stops the
// solver.
type Callback func(it Iteration) error

// Options carries optional solver collaborators.
type Options struct {
	Callback Callback
	Logger   *zerolog.Logger
}

// Result is the outcome of a solve.
type Result struct {
	Kind       Kind      `json:"kind"`
	X          []float64 `json:"x"`
	Residuals  []float64 `json:"residuals"`
	Iterations int       `json:"iterations"`

	// Residual is the Euclidean norm of the residual vector at X.
	Residual float64 `json:"residual"`

	// Metric is the last convergence metric: step size for root finding,
	// simplex size for minimization.
	Metric    float64 `json:"metric"`
	Converged bool    `json:"converged"`

	// FreeDoFs lists DoF indices whose Jacobian column was zero in the last
	// root-finding iteration, meaning no residual depends on them.
	FreeDoFs []int `json:"free_dofs,omitempty"`
}

// Solve runs the configured solver from x0.
func Solve(ctx context.Context, s Settings, x0 []float64, f Func, opts Options) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		nop := zerolog.Nop()
		opts.Logger = &nop
	}

	r := &run{ctx: ctx, s: s, f: f, opts: opts}

	x := append([]float64(nil), x0...)
	if len(x) == 0 {
		return r.trivial()
	}

	switch s.Kind {
	case KindMinimize:
		return r.minimize(x)
	default:
		return r.root(x)
	}
}

type run struct {
	ctx   context.Context
	s     Settings
	f     Func
	opts  Options
	evals int
}

func (r *run) eval(x []float64) ([]float64, error) {
	r.evals++
	res, err := r.f(x)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate residuals: %w", err)
	}
	for i, v := range res {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("residual %d is NaN", i)
		}
	}
	return res, nil
}

func (r *run) notify(it Iteration) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	r.opts.Logger.Debug().
		Int("iteration", it.N).
		Float64("residual", it.Residual).
		Float64("metric", it.Metric).
		Msg("Solver iteration")
	if r.opts.Callback != nil {
		if err := r.opts.Callback(it); err != nil {
			return fmt.Errorf("%w: %w", ErrStopped, err)
		}
	}
	return nil
}

// trivial handles systems without degrees of freedom.
func (r *run) trivial() (*Result, error) {
	res, err := r.eval(nil)
	if err != nil {
		return nil, err
	}
	n := norm(res)
	out := &Result{
		Kind:      r.s.Kind,
		X:         []float64{},
		Residuals: res,
		Residual:  n,
		Converged: n <= r.s.Tolerance,
	}
	if !out.Converged {
		return out, ErrNotConverged
	}
	return out, nil
}

func (r *run) finish(out *Result, converged bool) (*Result, error) {
	out.Converged = converged
	r.opts.Logger.Debug().
		Str("kind", string(out.Kind)).
		Int("iterations", out.Iterations).
		Int("evaluations", r.evals).
		Float64("residual", out.Residual).
		Bool("converged", converged).
		Msg("Solver finished")
	if !converged {
		return out, ErrNotConverged
	}
	return out, nil
}

func relax(w float64, xNew, xOld []float64) []float64 {
	if w == 1 {
		return xNew
	}
	out := make([]float64, len(xNew))
	for i := range xNew {
		out[i] = w*xNew[i] + (1-w)*xOld[i]
	}
	return out
}

func norm(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}

func dist(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
