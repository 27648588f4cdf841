package geom

import (
	"errors"
	"fmt"
	"math"
)

// Plane is the sketch plane as seen by the sketch engine.
type Plane interface {
	Origin() Vec3
	AxisU() Vec3
	AxisV() Vec3
}

// ErrDegeneratePlane is returned when the plane axes are zero or parallel.
var ErrDegeneratePlane = errors.New("degenerate plane axes")

// Datum is an orthonormal plane given by an origin and two in-plane axes.
type Datum struct {
	origin Vec3
	u      Vec3
	v      Vec3
}

// NewDatum creates a plane through origin. The U axis is normalized and the
// V axis is orthogonalized against it.
func NewDatum(origin, axisU, axisV Vec3) (*Datum, error) {
	u := axisU.Normalize()
	if u.IsZero() {
		return nil, ErrDegeneratePlane
	}
	v := axisV.Sub(u.Mul(axisV.Dot(u))).Normalize()
	if v.IsZero() || math.IsNaN(v.X) {
		return nil, ErrDegeneratePlane
	}
	return &Datum{origin: origin, u: u, v: v}, nil
}

// NewDatumFromNormal creates a plane from an origin and its normal. The U
// axis is chosen as the global axis least aligned with the normal,
// projected into the plane.
func NewDatumFromNormal(origin, normal Vec3) (*Datum, error) {
	n := normal.Normalize()
	if n.IsZero() {
		return nil, ErrDegeneratePlane
	}
	ref := V3(1, 0, 0)
	if math.Abs(n.X) > 0.9 {
		ref = V3(0, 1, 0)
	}
	u := ref.Sub(n.Mul(ref.Dot(n)))
	return NewDatum(origin, u, n.Cross(u))
}

// XY returns the global XY plane.
func XY() *Datum {
	return &Datum{origin: Vec3{}, u: V3(1, 0, 0), v: V3(0, 1, 0)}
}

// PlaneByName returns one of the global datum planes XY, XZ or YZ.
func PlaneByName(name string) (*Datum, error) {
	switch name {
	case "", "XY":
		return XY(), nil
	case "XZ":
		return &Datum{u: V3(1, 0, 0), v: V3(0, 0, 1)}, nil
	case "YZ":
		return &Datum{u: V3(0, 1, 0), v: V3(0, 0, 1)}, nil
	}
	return nil, fmt.Errorf("unknown plane %q", name)
}

// Origin returns the plane origin.
func (d *Datum) Origin() Vec3 { return d.origin }

// AxisU returns the unit U axis.
func (d *Datum) AxisU() Vec3 { return d.u }

// AxisV returns the unit V axis.
func (d *Datum) AxisV() Vec3 { return d.v }

// Normal returns the unit plane normal.
func (d *Datum) Normal() Vec3 { return d.u.Cross(d.v) }

// Map converts plane coordinates to a 3D point.
func Map(p Plane, u, v float64) Vec3 {
	return p.Origin().Add(p.AxisU().Mul(u)).Add(p.AxisV().Mul(v))
}

// Project converts a 3D point to plane coordinates. The out-of-plane
// component is dropped.
func Project(p Plane, x Vec3) (u, v float64) {
	d := x.Sub(p.Origin())
	return d.Dot(p.AxisU()), d.Dot(p.AxisV())
}

// Normal returns the normal of an arbitrary Plane.
func Normal(p Plane) Vec3 {
	return p.AxisU().Cross(p.AxisV()).Normalize()
}
