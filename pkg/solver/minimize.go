package solver

import (
	"math"
	"sort"
)

// Nelder-Mead coefficients.
const (
	nmReflect  = 1.0
	nmExpand   = 2.0
	nmContract = 0.5
	nmShrink   = 0.5
)

type vertex struct {
	x []float64
	q float64
}

// minimize runs the Nelder-Mead simplex on sum(F^2).
func (r *run) minimize(x []float64) (*Result, error) {
	n := len(x)
	out := &Result{Kind: KindMinimize, X: x}

	objective := func(p []float64) (float64, error) {
		res, err := r.eval(p)
		if err != nil {
			return 0, err
		}
		s := 0.0
		for _, v := range res {
			s += v * v
		}
		return s, nil
	}

	simplex := make([]vertex, n+1)
	q0, err := objective(x)
	if err != nil {
		return nil, err
	}
	simplex[0] = vertex{x: append([]float64(nil), x...), q: q0}
	for i := 0; i < n; i++ {
		p := append([]float64(nil), x...)
		p[i] += 0.1 * math.Max(1, math.Abs(x[i]))
		q, err := objective(p)
		if err != nil {
			return nil, err
		}
		simplex[i+1] = vertex{x: p, q: q}
	}

	centroid := make([]float64, n)
	along := func(c float64, worst []float64) []float64 {
		p := make([]float64, n)
		for j := range p {
			p[j] = centroid[j] + c*(centroid[j]-worst[j])
		}
		return p
	}

	converged := false
	for it := 1; it <= r.s.MaxIter; it++ {
		sort.SliceStable(simplex, func(a, b int) bool { return simplex[a].q < simplex[b].q })
		bestOld := append([]float64(nil), simplex[0].x...)

		for j := range centroid {
			centroid[j] = 0
			for k := 0; k < n; k++ {
				centroid[j] += simplex[k].x[j]
			}
			centroid[j] /= float64(n)
		}

		worst := simplex[n]
		xr := along(nmReflect, worst.x)
		qr, err := objective(xr)
		if err != nil {
			return out, err
		}

		switch {
		case qr < simplex[0].q:
			xe := along(nmExpand, worst.x)
			qe, err := objective(xe)
			if err != nil {
				return out, err
			}
			if qe < qr {
				simplex[n] = vertex{x: xe, q: qe}
			} else {
				simplex[n] = vertex{x: xr, q: qr}
			}
		case qr < simplex[n-1].q:
			simplex[n] = vertex{x: xr, q: qr}
		default:
			var xc []float64
			if qr < worst.q {
				xc = along(nmContract, worst.x)
			} else {
				xc = along(-nmContract, worst.x)
			}
			qc, err := objective(xc)
			if err != nil {
				return out, err
			}
			if qc < math.Min(qr, worst.q) {
				simplex[n] = vertex{x: xc, q: qc}
			} else {
				best := simplex[0].x
				for k := 1; k <= n; k++ {
					for j := range best {
						simplex[k].x[j] = best[j] + nmShrink*(simplex[k].x[j]-best[j])
					}
					if simplex[k].q, err = objective(simplex[k].x); err != nil {
						return out, err
					}
				}
			}
		}

		sort.SliceStable(simplex, func(a, b int) bool { return simplex[a].q < simplex[b].q })

		if r.s.Relax != 1 {
			simplex[0].x = relax(r.s.Relax, simplex[0].x, bestOld)
			if simplex[0].q, err = objective(simplex[0].x); err != nil {
				return out, err
			}
		}

		out.Iterations = it
		out.Metric = simplexSize(simplex)
		out.X = simplex[0].x
		out.Residual = math.Sqrt(simplex[0].q)

		if err := r.notify(Iteration{N: it, X: out.X, Residual: out.Residual, Metric: out.Metric}); err != nil {
			return r.settle(out, err)
		}
		if out.Metric < r.s.Tolerance {
			converged = true
			break
		}
	}

	res, err := r.settle(out, nil)
	if err != nil {
		return res, err
	}
	return r.finish(res, converged)
}

// settle re-evaluates the best vertex so the caller's state matches X.
func (r *run) settle(out *Result, cause error) (*Result, error) {
	res, err := r.eval(out.X)
	if err != nil {
		return out, err
	}
	out.Residuals = res
	out.Residual = norm(res)
	return out, cause
}

// simplexSize is the mean distance of the vertices from their centroid.
func simplexSize(simplex []vertex) float64 {
	n := len(simplex[0].x)
	c := make([]float64, n)
	for _, v := range simplex {
		for j := range c {
			c[j] += v.x[j]
		}
	}
	for j := range c {
		c[j] /= float64(len(simplex))
	}
	s := 0.0
	for _, v := range simplex {
		s += dist(v.x, c)
	}
	return s / float64(len(simplex))
}
