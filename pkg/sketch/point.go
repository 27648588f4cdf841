package sketch

import (
	"fmt"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

// SketchPoint is a free point in the sketch plane. Its degrees of freedom
// are the plane coordinates u and v.
type SketchPoint struct {
	base
	noConstraints
	u, v float64
}

// TypeSketchPoint is the script name of SketchPoint.
const TypeSketchPoint = "SketchPoint"

// NewPoint creates a point at plane coordinates (u, v).
func NewPoint(u, v float64) *SketchPoint {
	return &SketchPoint{
		base:          newBase(params.New()),
		noConstraints: noConstraints{TypeSketchPoint},
		u:             u,
		v:             v,
	}
}

// TypeName implements Entity.
func (p *SketchPoint) TypeName() string { return TypeSketchPoint }

// Coords returns the plane coordinates.
func (p *SketchPoint) Coords() (u, v float64) { return p.u, p.v }

// SetCoords moves the point.
func (p *SketchPoint) SetCoords(u, v float64) {
	p.u, p.v = u, v
}

// Value returns the 3D position.
func (p *SketchPoint) Value(r Resolver) (geom.Vec3, error) {
	return geom.Map(r.Plane(), p.u, p.v), nil
}

// NDoF implements Entity.
func (p *SketchPoint) NDoF() int { return 2 }

// DoFValue implements Entity.
func (p *SketchPoint) DoFValue(i int) (float64, error) {
	switch i {
	case 0:
		return p.u, nil
	case 1:
		return p.v, nil
	}
	return 0, indexError("DoF", TypeSketchPoint, i, 2)
}

// SetDoFValue implements Entity.
func (p *SketchPoint) SetDoFValue(i int, v float64) error {
	switch i {
	case 0:
		p.u = v
	case 1:
		p.v = v
	default:
		return indexError("DoF", TypeSketchPoint, i, 2)
	}
	return nil
}

// Dependencies implements Entity. Points are leaves.
func (p *SketchPoint) Dependencies() []Handle { return nil }

// DependsOn implements Entity.
func (p *SketchPoint) DependsOn(Handle) bool { return false }

// ReplaceDependency implements Entity.
func (p *SketchPoint) ReplaceDependency(Resolver, Handle, Handle) {}

// Clone implements Entity.
func (p *SketchPoint) Clone() Entity {
	c := *p
	c.base = p.cloneBase()
	return &c
}

// Assign implements Entity.
func (p *SketchPoint) Assign(other Entity) error {
	o, ok := other.(*SketchPoint)
	if !ok {
		return typeMismatch(TypeSketchPoint, other)
	}
	p.assignBase(&o.base)
	p.u, p.v = o.u, o.v
	return nil
}

// Hash implements Entity.
func (p *SketchPoint) Hash(Resolver) (uint64, error) {
	return newHasher(TypeSketchPoint).float(p.u).float(p.v).sum(), nil
}

// Scale implements Entity.
func (p *SketchPoint) Scale(f float64) {
	p.u *= f
	p.v *= f
}

// WriteScript implements Entity.
func (p *SketchPoint) WriteScript(b *ScriptBuffer, _ Resolver, id int) error {
	b.insert(id, fmt.Sprintf("%s( %d, %s, %s%s )",
		TypeSketchPoint, id, formatFloat(p.u), formatFloat(p.v), p.trailer()))
	return nil
}
