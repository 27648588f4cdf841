package solver

import (
	"math"
)

const (
	lambdaInit = 1e-3
	lambdaMin  = 1e-15
	lambdaMax  = 1e16
)

// root runs Levenberg-Marquardt with forward-difference Jacobians. It
// stops when ‖F‖ <= tol, when a step is shorter than tol*(‖x‖+tol) or when
// no damping yields descent. Only the first counts as converged.
func (r *run) root(x []float64) (*Result, error) {
	fx, err := r.eval(x)
	if err != nil {
		return nil, err
	}

	out := &Result{Kind: KindRoot, X: x, Residuals: fx, Residual: norm(fx)}
	if out.Residual <= r.s.Tolerance {
		return r.finish(out, true)
	}

	n, m := len(x), len(fx)
	lambda := lambdaInit

	for it := 1; it <= r.s.MaxIter; it++ {
		jac, err := r.jacobian(x, fx)
		if err != nil {
			return out, err
		}
		out.FreeDoFs = zeroColumns(jac, m, n)

		// Normal equations: (J^T J + lambda I) d = -J^T F
		jtj := make([]float64, n*n)
		jtf := make([]float64, n)
		for i := 0; i < m; i++ {
			row := jac[i*n : (i+1)*n]
			for a := 0; a < n; a++ {
				if row[a] == 0 {
					continue
				}
				jtf[a] -= row[a] * fx[i]
				for b := 0; b < n; b++ {
					jtj[a*n+b] += row[a] * row[b]
				}
			}
		}

		var (
			xTrial []float64
			fTrial []float64
			accept bool
		)
		for lambda <= lambdaMax {
			sys := append([]float64(nil), jtj...)
			for a := 0; a < n; a++ {
				sys[a*n+a] += lambda
			}
			step, lerr := solveLinearSystem(sys, jtf, n)
			if lerr != nil {
				lambda *= 10
				continue
			}
			xTrial = make([]float64, n)
			for a := range x {
				xTrial[a] = x[a] + step[a]
			}
			fTrial, err = r.eval(xTrial)
			if err == nil && norm(fTrial) < out.Residual {
				accept = true
				lambda = math.Max(lambda/10, lambdaMin)
				break
			}
			lambda *= 10
		}

		if !accept {
			// No descent direction left: stalled.
			out.Iterations = it
			out.Metric = 0
			if _, err := r.eval(x); err != nil {
				return out, err
			}
			return r.finish(out, false)
		}

		// A full step below tol*(‖x‖+tol) ends the iteration unrelaxed.
		small := dist(xTrial, x) <= r.s.Tolerance*(norm(x)+r.s.Tolerance)
		xNew := xTrial
		if r.s.Relax != 1 && !small {
			xNew = relax(r.s.Relax, xTrial, x)
			if fTrial, err = r.eval(xNew); err != nil {
				return out, err
			}
		}

		out.Metric = dist(xNew, x)
		x, fx = xNew, fTrial
		out.X, out.Residuals, out.Residual, out.Iterations = x, fx, norm(fx), it

		if err := r.notify(Iteration{N: it, X: x, Residual: out.Residual, Metric: out.Metric}); err != nil {
			return out, err
		}
		if out.Residual <= r.s.Tolerance {
			return r.finish(out, true)
		}
		if small {
			return r.finish(out, false)
		}
	}

	return r.finish(out, false)
}

// jacobian returns the row-major m x n forward-difference Jacobian at x.
// The residual function leaves the caller's state at x on return.
func (r *run) jacobian(x, fx []float64) ([]float64, error) {
	n, m := len(x), len(fx)
	jac := make([]float64, m*n)
	xp := append([]float64(nil), x...)
	for j := 0; j < n; j++ {
		h := 1e-8 * (1 + math.Abs(x[j]))
		xp[j] = x[j] + h
		fp, err := r.eval(xp)
		if err != nil {
			return nil, err
		}
		xp[j] = x[j]
		for i := 0; i < m; i++ {
			jac[i*n+j] = (fp[i] - fx[i]) / h
		}
	}
	if _, err := r.eval(x); err != nil {
		return nil, err
	}
	return jac, nil
}

func zeroColumns(jac []float64, m, n int) []int {
	var cols []int
	for j := 0; j < n; j++ {
		zero := true
		for i := 0; i < m; i++ {
			if math.Abs(jac[i*n+j]) > 1e-14 {
				zero = false
				break
			}
		}
		if zero {
			cols = append(cols, j)
		}
	}
	return cols
}
