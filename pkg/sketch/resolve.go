package sketch

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/sketcher/pkg/solver"
)

// Resolution is the outcome of ResolveConstraints.
type Resolution struct {
	*solver.Result

	NDoF         int `json:"ndof"`
	NConstraints int `json:"nconstraints"`

	// Unconstrained lists entities owning DoFs that no residual depends on.
	Unconstrained []int `json:"unconstrained,omitempty"`
}

// ResolveConstraints solves the DoFs of all entities so that the residuals
// vanish, using the sketch's solver settings. The entities are left at the
// last iterate even when the solver fails to converge; in that case the
// resolution is returned together with an error matching ErrNotConverged.
func (s *Sketch) ResolveConstraints(ctx context.Context, cb solver.Callback) (*Resolution, error) {
	a := Assemble(s)
	x0, err := a.X()
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Int("dofs", a.NDoF()).
		Int("constraints", a.NResiduals()).
		Str("solver", string(s.settings.Kind)).
		Msg("Resolving constraints")

	res, serr := solver.Solve(ctx, s.settings, x0, a.F, solver.Options{Callback: cb, Logger: &s.logger})
	if res == nil {
		if serr == nil {
			serr = errors.New("solver returned no result")
		}
		// x0 is restored since the residual function moved the entities.
		if err := a.Apply(x0); err != nil {
			return nil, err
		}
		return nil, newError(ErrorClassSolver, ErrCodeSolverFailed, "constraint resolution failed", serr).
			WithOperation("resolve")
	}

	if err := a.Apply(res.X); err != nil {
		return nil, err
	}
	out := &Resolution{
		Result:        res,
		NDoF:          a.NDoF(),
		NConstraints:  a.NResiduals(),
		Unconstrained: a.dofOwners(res.FreeDoFs),
	}
	for _, id := range s.IDs() {
		if _, owns := a.DoFSpan(id); owns {
			s.events.publish(EventChanged, id, s.slots[id].e)
		}
	}

	switch {
	case serr == nil:
		return out, nil
	case errors.Is(serr, solver.ErrNotConverged):
		e := newError(ErrorClassSolver, ErrCodeNotConverged,
			fmt.Sprintf("constraints not satisfied after %d iterations (residual %g)", res.Iterations, res.Residual), serr).
			WithOperation("resolve").
			WithDetail("residual", res.Residual).
			WithDetail("iterations", res.Iterations)
		if len(out.Unconstrained) > 0 {
			e.WithDetail("unconstrained", out.Unconstrained)
		}
		return out, e
	default:
		return out, newError(ErrorClassSolver, ErrCodeSolverFailed, "constraint resolution stopped", serr).
			WithOperation("resolve")
	}
}

// ResidualsByEntity evaluates every constraint and groups the residuals by
// entity ID.
func (s *Sketch) ResidualsByEntity() (map[int][]float64, error) {
	a := Assemble(s)
	f, err := a.Residuals()
	if err != nil {
		return nil, err
	}
	out := make(map[int][]float64, len(a.resSpans))
	for id, sp := range a.resSpans {
		out[id] = append([]float64(nil), f[sp.Offset:sp.Offset+sp.Count]...)
	}
	return out, nil
}
