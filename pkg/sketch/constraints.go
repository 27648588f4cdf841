package sketch

import (
	"fmt"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

// Script names of the geometric constraints.
const (
	TypeFixedPoint   = "FixedPointConstraint"
	TypeHorizontal   = "HorizontalConstraint"
	TypeVertical     = "VerticalConstraint"
	TypeTangent      = "TangentConstraint"
	TypePointOnCurve = "PointOnCurveConstraint"
)

// FixedPoint pins a point to the plane coordinates stored in its "u" and
// "v" parameters.
type FixedPoint struct {
	base
	noDoF
	p Handle
}

// NewFixedPoint pins the point p at (u, v).
func NewFixedPoint(p Handle, u, v float64) *FixedPoint {
	return &FixedPoint{
		base:  newBase(fixedPointDefaults(u, v)),
		noDoF: noDoF{TypeFixedPoint},
		p:     p,
	}
}

func fixedPointDefaults(u, v float64) *params.Set {
	s := params.New()
	s.SetNumber("u", u)
	s.SetNumber("v", v)
	return s
}

// fixedPointDefaultsFor captures the current location of the point.
func fixedPointDefaultsFor(r Resolver, e Entity) *params.Set {
	fp := e.(*FixedPoint)
	pos, err := RefTo(fp.p).Value(r)
	if err != nil {
		return fixedPointDefaults(0, 0)
	}
	u, v := geom.Project(r.Plane(), pos)
	return fixedPointDefaults(u, v)
}

// TypeName implements Entity.
func (c *FixedPoint) TypeName() string { return TypeFixedPoint }

// Point returns the pinned point.
func (c *FixedPoint) Point() Handle { return c.p }

// Target returns the pinned plane coordinates.
func (c *FixedPoint) Target() (u, v float64) {
	p := c.Parameters()
	return p.NumberOr("u", 0), p.NumberOr("v", 0)
}

// NConstraints implements Entity.
func (c *FixedPoint) NConstraints() int { return 2 }

// ConstraintError implements Entity.
func (c *FixedPoint) ConstraintError(r Resolver, i int) (float64, error) {
	if err := checkConstraintIndex(TypeFixedPoint, i, 2); err != nil {
		return 0, err
	}
	pos, err := RefTo(c.p).Value(r)
	if err != nil {
		return 0, err
	}
	u, v := geom.Project(r.Plane(), pos)
	tu, tv := c.Target()
	if i == 0 {
		return u - tu, nil
	}
	return v - tv, nil
}

// Dependencies implements Entity.
func (c *FixedPoint) Dependencies() []Handle { return []Handle{c.p} }

// DependsOn implements Entity.
func (c *FixedPoint) DependsOn(h Handle) bool { return c.p == h }

// ReplaceDependency implements Entity.
func (c *FixedPoint) ReplaceDependency(r Resolver, from, to Handle) {
	if canReplace(r, c.p, from, to, CapPoint) {
		c.p = to
	}
}

// Clone implements Entity.
func (c *FixedPoint) Clone() Entity {
	cl := *c
	cl.base = c.cloneBase()
	return &cl
}

// Assign implements Entity.
func (c *FixedPoint) Assign(other Entity) error {
	o, ok := other.(*FixedPoint)
	if !ok {
		return typeMismatch(TypeFixedPoint, other)
	}
	c.assignBase(&o.base)
	c.p = o.p
	return nil
}

// Hash implements Entity.
func (c *FixedPoint) Hash(r Resolver) (uint64, error) {
	pos, err := RefTo(c.p).Value(r)
	if err != nil {
		return 0, err
	}
	tu, tv := c.Target()
	return newHasher(TypeFixedPoint).vec(pos).float(tu).float(tv).sum(), nil
}

// Scale implements Entity.
func (c *FixedPoint) Scale(f float64) {
	tu, tv := c.Target()
	c.Parameters().SetNumber("u", tu*f)
	c.Parameters().SetNumber("v", tv*f)
}

// WriteScript implements Entity.
func (c *FixedPoint) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	ps, err := RefTo(c.p).spec(b, r)
	if err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %s%s )", TypeFixedPoint, id, ps, c.trailer()))
	return nil
}

// axisConstraint aligns a line with one of the plane axes.
type axisConstraint struct {
	base
	noDoF
	typeName string
	line     Handle
	// axis is 0 to compare u (vertical), 1 to compare v (horizontal).
	axis int
}

// Horizontal keeps a line parallel to the plane's U axis.
type Horizontal struct{ axisConstraint }

// Vertical keeps a line parallel to the plane's V axis.
type Vertical struct{ axisConstraint }

// NewHorizontal constrains line to be horizontal.
func NewHorizontal(line Handle) *Horizontal {
	return &Horizontal{newAxisConstraint(TypeHorizontal, line, 1)}
}

// NewVertical constrains line to be vertical.
func NewVertical(line Handle) *Vertical {
	return &Vertical{newAxisConstraint(TypeVertical, line, 0)}
}

func newAxisConstraint(typeName string, line Handle, axis int) axisConstraint {
	return axisConstraint{
		base:     newBase(params.New()),
		noDoF:    noDoF{typeName},
		typeName: typeName,
		line:     line,
		axis:     axis,
	}
}

func (c *axisConstraint) TypeName() string { return c.typeName }

// Line returns the constrained line.
func (c *axisConstraint) Line() Handle { return c.line }

func (c *axisConstraint) NConstraints() int { return 1 }

func (c *axisConstraint) ConstraintError(r Resolver, i int) (float64, error) {
	if err := checkConstraintIndex(c.typeName, i, 1); err != nil {
		return 0, err
	}
	e, err := resolveAs(r, c.line, CapLine)
	if err != nil {
		return 0, err
	}
	a, b, err := e.(LineLike).Endpoints(r)
	if err != nil {
		return 0, err
	}
	ua, va := geom.Project(r.Plane(), a)
	ub, vb := geom.Project(r.Plane(), b)
	if c.axis == 0 {
		return ub - ua, nil
	}
	return vb - va, nil
}

func (c *axisConstraint) Dependencies() []Handle { return []Handle{c.line} }

func (c *axisConstraint) DependsOn(h Handle) bool { return c.line == h }

func (c *axisConstraint) ReplaceDependency(r Resolver, from, to Handle) {
	if canReplace(r, c.line, from, to, CapLine) {
		c.line = to
	}
}

func (c *axisConstraint) assignAxis(o *axisConstraint) {
	c.assignBase(&o.base)
	c.line = o.line
}

func (c *axisConstraint) Hash(r Resolver) (uint64, error) {
	e, err := resolveAs(r, c.line, CapLine)
	if err != nil {
		return 0, err
	}
	a, b, err := e.(LineLike).Endpoints(r)
	if err != nil {
		return 0, err
	}
	return newHasher(c.typeName).vec(a).vec(b).sum(), nil
}

func (c *axisConstraint) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	if err := b.emitDependency(r, c.line); err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %d%s )", c.typeName, id, c.line.ID, c.trailer()))
	return nil
}

// Clone implements Entity.
func (c *Horizontal) Clone() Entity {
	cl := *c
	cl.base = c.cloneBase()
	return &cl
}

// Assign implements Entity.
func (c *Horizontal) Assign(other Entity) error {
	o, ok := other.(*Horizontal)
	if !ok {
		return typeMismatch(TypeHorizontal, other)
	}
	c.assignAxis(&o.axisConstraint)
	return nil
}

// Clone implements Entity.
func (c *Vertical) Clone() Entity {
	cl := *c
	cl.base = c.cloneBase()
	return &cl
}

// Assign implements Entity.
func (c *Vertical) Assign(other Entity) error {
	o, ok := other.(*Vertical)
	if !ok {
		return typeMismatch(TypeVertical, other)
	}
	c.assignAxis(&o.axisConstraint)
	return nil
}

// Tangent makes two lines parallel. The residual is the norm of the cross
// product of their unit directions.
type Tangent struct {
	base
	noDoF
	l1, l2 Handle
}

// NewTangent constrains l1 and l2 to be tangent.
func NewTangent(l1, l2 Handle) *Tangent {
	return &Tangent{
		base:  newBase(params.New()),
		noDoF: noDoF{TypeTangent},
		l1:    l1,
		l2:    l2,
	}
}

// TypeName implements Entity.
func (c *Tangent) TypeName() string { return TypeTangent }

// Lines returns both lines.
func (c *Tangent) Lines() (Handle, Handle) { return c.l1, c.l2 }

// NConstraints implements Entity.
func (c *Tangent) NConstraints() int { return 1 }

// ConstraintError implements Entity.
func (c *Tangent) ConstraintError(r Resolver, i int) (float64, error) {
	if err := checkConstraintIndex(TypeTangent, i, 1); err != nil {
		return 0, err
	}
	d1, err := lineDirection(r, c.l1)
	if err != nil {
		return 0, err
	}
	d2, err := lineDirection(r, c.l2)
	if err != nil {
		return 0, err
	}
	return d1.Cross(d2).Length(), nil
}

func lineDirection(r Resolver, h Handle) (geom.Vec3, error) {
	e, err := resolveAs(r, h, CapLine)
	if err != nil {
		return geom.Vec3{}, err
	}
	if l, ok := e.(*Line); ok {
		return l.Direction(r)
	}
	a, b, err := e.(LineLike).Endpoints(r)
	if err != nil {
		return geom.Vec3{}, err
	}
	return b.Sub(a).Normalize(), nil
}

// Dependencies implements Entity.
func (c *Tangent) Dependencies() []Handle {
	if c.l1 == c.l2 {
		return []Handle{c.l1}
	}
	return []Handle{c.l1, c.l2}
}

// DependsOn implements Entity.
func (c *Tangent) DependsOn(h Handle) bool { return c.l1 == h || c.l2 == h }

// ReplaceDependency implements Entity.
func (c *Tangent) ReplaceDependency(r Resolver, from, to Handle) {
	if canReplace(r, c.l1, from, to, CapLine) {
		c.l1 = to
	}
	if canReplace(r, c.l2, from, to, CapLine) {
		c.l2 = to
	}
}

// Clone implements Entity.
func (c *Tangent) Clone() Entity {
	cl := *c
	cl.base = c.cloneBase()
	return &cl
}

// Assign implements Entity.
func (c *Tangent) Assign(other Entity) error {
	o, ok := other.(*Tangent)
	if !ok {
		return typeMismatch(TypeTangent, other)
	}
	c.assignBase(&o.base)
	c.l1, c.l2 = o.l1, o.l2
	return nil
}

// Hash implements Entity.
func (c *Tangent) Hash(r Resolver) (uint64, error) {
	d1, err := lineDirection(r, c.l1)
	if err != nil {
		return 0, err
	}
	d2, err := lineDirection(r, c.l2)
	if err != nil {
		return 0, err
	}
	return newHasher(TypeTangent).vec(d1).vec(d2).sum(), nil
}

// WriteScript implements Entity.
func (c *Tangent) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	if err := b.emitDependency(r, c.l1); err != nil {
		return err
	}
	if err := b.emitDependency(r, c.l2); err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %d, %d%s )", TypeTangent, id, c.l1.ID, c.l2.ID, c.trailer()))
	return nil
}

// PointOnCurve keeps a point on a curve.
type PointOnCurve struct {
	base
	noDoF
	curve Handle
	p     PointRef
}

// NewPointOnCurve constrains p to lie on curve.
func NewPointOnCurve(curve Handle, p PointRef) *PointOnCurve {
	return &PointOnCurve{
		base:  newBase(params.New()),
		noDoF: noDoF{TypePointOnCurve},
		curve: curve,
		p:     p,
	}
}

// TypeName implements Entity.
func (c *PointOnCurve) TypeName() string { return TypePointOnCurve }

// Curve returns the curve handle.
func (c *PointOnCurve) Curve() Handle { return c.curve }

// Point returns the point reference.
func (c *PointOnCurve) Point() PointRef { return c.p }

// NConstraints implements Entity.
func (c *PointOnCurve) NConstraints() int { return 1 }

// ConstraintError implements Entity.
func (c *PointOnCurve) ConstraintError(r Resolver, i int) (float64, error) {
	if err := checkConstraintIndex(TypePointOnCurve, i, 1); err != nil {
		return 0, err
	}
	e, err := resolveAs(r, c.curve, CapCurve)
	if err != nil {
		return 0, err
	}
	pos, err := c.p.Value(r)
	if err != nil {
		return 0, err
	}
	return e.(CurveLike).MinDistance(r, pos)
}

// Dependencies implements Entity.
func (c *PointOnCurve) Dependencies() []Handle {
	return appendRef([]Handle{c.curve}, c.p)
}

// DependsOn implements Entity.
func (c *PointOnCurve) DependsOn(h Handle) bool { return containsHandle(c.Dependencies(), h) }

// ReplaceDependency implements Entity.
func (c *PointOnCurve) ReplaceDependency(r Resolver, from, to Handle) {
	if canReplace(r, c.curve, from, to, CapCurve) {
		c.curve = to
	}
	c.p.replace(r, from, to)
}

// Clone implements Entity.
func (c *PointOnCurve) Clone() Entity {
	cl := *c
	cl.base = c.cloneBase()
	cl.p = c.p.clone()
	return &cl
}

// Assign implements Entity.
func (c *PointOnCurve) Assign(other Entity) error {
	o, ok := other.(*PointOnCurve)
	if !ok {
		return typeMismatch(TypePointOnCurve, other)
	}
	c.assignBase(&o.base)
	c.curve, c.p = o.curve, o.p.clone()
	return nil
}

// Hash implements Entity.
func (c *PointOnCurve) Hash(r Resolver) (uint64, error) {
	pos, err := c.p.Value(r)
	if err != nil {
		return 0, err
	}
	return newHasher(TypePointOnCurve).vec(pos).str(c.curve.String()).sum(), nil
}

// WriteScript implements Entity.
func (c *PointOnCurve) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	if err := b.emitDependency(r, c.curve); err != nil {
		return err
	}
	ps, err := c.p.spec(b, r)
	if err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %d, %s%s )", TypePointOnCurve, id, c.curve.ID, ps, c.trailer()))
	return nil
}
