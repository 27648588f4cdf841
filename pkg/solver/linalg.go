package solver

import (
	"errors"
	"math"
)

var errSingular = errors.New("singular system")

// solveLinearSystem solves A*x=b with A row-major n x n using Gaussian
// elimination with partial pivoting.
func solveLinearSystem(a, b []float64, n int) ([]float64, error) {
	if len(a) != n*n || len(b) != n {
		return nil, errors.New("bad dimensions")
	}
	aa := append([]float64(nil), a...)
	bb := append([]float64(nil), b...)

	for k := 0; k < n; k++ {
		piv := k
		maxAbs := math.Abs(aa[k*n+k])
		for i := k + 1; i < n; i++ {
			if v := math.Abs(aa[i*n+k]); v > maxAbs {
				maxAbs = v
				piv = i
			}
		}
		if maxAbs == 0 || math.IsNaN(maxAbs) || math.IsInf(maxAbs, 0) {
			return nil, errSingular
		}
		if piv != k {
			for j := k; j < n; j++ {
				aa[k*n+j], aa[piv*n+j] = aa[piv*n+j], aa[k*n+j]
			}
			bb[k], bb[piv] = bb[piv], bb[k]
		}

		pivot := aa[k*n+k]
		for i := k + 1; i < n; i++ {
			f := aa[i*n+k] / pivot
			if f == 0 {
				continue
			}
			aa[i*n+k] = 0
			for j := k + 1; j < n; j++ {
				aa[i*n+j] -= f * aa[k*n+j]
			}
			bb[i] -= f * bb[k]
		}
	}

	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := bb[i]
		for j := i + 1; j < n; j++ {
			sum -= aa[i*n+j] * x[j]
		}
		x[i] = sum / aa[i*n+i]
	}
	return x, nil
}
