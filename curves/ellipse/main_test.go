package main

import (
	"math"
	"testing"
)

func TestEllipse_MinDistance(t *testing.T) {
	e := Ellipse{A: 2, B: 1}

	tests := []struct {
		name    string
		x, y, z float64
		want    float64
	}{
		{"major vertex", 2, 0, 0, 0},
		{"minor vertex", 0, -1, 0, 0},
		{"outside on major axis", 5, 0, 0, 3},
		{"outside on minor axis", 0, 3, 0, 2},
		{"center", 0, 0, 0, 1},
		{"above minor vertex", 0, 1, 4, 4},
		{"lifted", 0, 3, 4, math.Sqrt(20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.MinDistance(tt.x, tt.y, tt.z)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Expected %g, got %g", tt.want, got)
			}
		})
	}
}

func TestEllipse_MinDistance_Circle(t *testing.T) {
	e := Ellipse{A: 1, B: 1}
	for _, p := range [][2]float64{{3, 0}, {0, 3}, {2, 2}, {-0.5, 0.5}} {
		want := math.Abs(math.Hypot(p[0], p[1]) - 1)
		if got := e.MinDistance(p[0], p[1], 0); math.Abs(got-want) > 1e-9 {
			t.Errorf("Point %v: expected %g, got %g", p, want, got)
		}
	}
}

func TestEllipse_MinDistance_OnCurve(t *testing.T) {
	e := Ellipse{A: 3, B: 1.5}
	for _, th := range []float64{0.1, 0.7, 1.2, 2.5, 4, 5.9} {
		x, y := e.A*math.Cos(th), e.B*math.Sin(th)
		if got := e.MinDistance(x, y, 0); got > 1e-9 {
			t.Errorf("Angle %g: expected point on the curve, got distance %g", th, got)
		}
	}
}

func TestEllipse_MinDistance_SwappedAxes(t *testing.T) {
	wide := Ellipse{A: 2, B: 1}
	tall := Ellipse{A: 1, B: 2}
	if a, b := wide.MinDistance(0.3, 1.7, 0), tall.MinDistance(1.7, 0.3, 0); math.Abs(a-b) > 1e-12 {
		t.Errorf("Expected symmetric distances, got %g and %g", a, b)
	}
}

func TestParseEllipse(t *testing.T) {
	tests := []struct {
		a, b    string
		wantErr bool
	}{
		{"2", "1", false},
		{"1.5", "3", false},
		{"x", "1", true},
		{"1", "", true},
		{"0", "1", true},
		{"1", "-2", true},
	}

	for _, tt := range tests {
		_, err := parseEllipse(tt.a, tt.b)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseEllipse(%q, %q): expected error %v, got %v", tt.a, tt.b, tt.wantErr, err)
		}
	}
}
