// Package main implements an ellipse curve module for sketcher.
// The ellipse is centered at the origin of the XY plane with its major
// axis along X. It compiles to a WASI reactor that exports min_dist:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o ellipse.wasm \
//	    -ldflags "-X main.semiMajor=3 -X main.semiMinor=1.5" .
//
// and is referenced from sketcher.yaml as
//
//	externals:
//	  - name: rim
//	    kind: wasm
//	    path: ellipse.wasm
package main

import (
	"math"
	"strconv"
)

// Semi-axis lengths, set with -ldflags -X.
var (
	semiMajor = "2"
	semiMinor = "1"
)

const maxBisections = 1074

// Ellipse is an axis-aligned ellipse in the XY plane.
type Ellipse struct {
	A, B float64
}

var curve = mustEllipse(semiMajor, semiMinor)

func mustEllipse(a, b string) Ellipse {
	e, err := parseEllipse(a, b)
	if err != nil {
		panic(err)
	}
	return e
}

func parseEllipse(a, b string) (Ellipse, error) {
	av, err := strconv.ParseFloat(a, 64)
	if err != nil {
		return Ellipse{}, err
	}
	bv, err := strconv.ParseFloat(b, 64)
	if err != nil {
		return Ellipse{}, err
	}
	if av <= 0 || bv <= 0 {
		return Ellipse{}, strconv.ErrRange
	}
	return Ellipse{A: av, B: bv}, nil
}

// MinDistance returns the distance from (x, y, z) to the ellipse.
func (e Ellipse) MinDistance(x, y, z float64) float64 {
	u, v := math.Abs(x), math.Abs(y)
	a, b := e.A, e.B
	if b > a {
		a, b = b, a
		u, v = v, u
	}
	return math.Hypot(planarDistance(a, b, u, v), z)
}

// planarDistance is the distance from (y0, y1) in the first quadrant to
// the ellipse with semi-axes e0 >= e1.
func planarDistance(e0, e1, y0, y1 float64) float64 {
	if y1 > 0 {
		if y0 > 0 {
			z0, z1 := y0/e0, y1/e1
			g := z0*z0 + z1*z1 - 1
			if g == 0 {
				return 0
			}
			r0 := (e0 / e1) * (e0 / e1)
			s := bisect(r0, z0, z1, g)
			x0 := r0 * y0 / (s + r0)
			x1 := y1 / (s + 1)
			return math.Hypot(x0-y0, x1-y1)
		}
		return math.Abs(y1 - e1)
	}

	numer, denom := e0*y0, e0*e0-e1*e1
	if numer < denom {
		t := numer / denom
		x0 := e0 * t
		x1 := e1 * math.Sqrt(1-t*t)
		return math.Hypot(x0-y0, x1)
	}
	return math.Abs(y0 - e0)
}

// bisect finds the root s of (r0 z0/(s+r0))^2 + (z1/(s+1))^2 = 1.
func bisect(r0, z0, z1, g float64) float64 {
	n0 := r0 * z0
	s0, s1 := z1-1, 0.0
	if g > 0 {
		s1 = math.Hypot(n0, z1) - 1
	}

	var s float64
	for i := 0; i < maxBisections; i++ {
		s = (s0 + s1) / 2
		if s == s0 || s == s1 {
			break
		}
		q0 := n0 / (s + r0)
		q1 := z1 / (s + 1)
		g = q0*q0 + q1*q1 - 1
		switch {
		case g > 0:
			s0 = s
		case g < 0:
			s1 = s
		default:
			return s
		}
	}
	return s
}

func main() {}
