// Package solver drives a vector of degrees of freedom to a state where a
// residual vector vanishes, or where its sum of squares is minimal.
//
// Two derivative-free modes are available:
//
//   - KindRoot: damped Gauss-Newton (Levenberg-Marquardt) with a
//     finite-difference Jacobian. The system may be non-square.
//   - KindMinimize: Nelder-Mead simplex on the sum of squared residuals.
//
// After every iteration the new iterate is under-relaxed:
//
//	x = relax*xNew + (1-relax)*xOld
//
// The iteration stops on convergence, when the iteration budget is spent,
// when the context is cancelled or when the per-iteration callback returns
// an error. In every case Result.X holds the last iterate. Running out of
// iterations is reported as ErrNotConverged next to a complete Result.
package solver
