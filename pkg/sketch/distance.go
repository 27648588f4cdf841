package sketch

import (
	"fmt"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

// Script names of the distance constraints.
const (
	TypeFixedDistance  = "FixedDistanceConstraint"
	TypeLinkedDistance = "LinkedDistanceConstraint"
)

// distanceMeasure holds the state shared by the distance constraints: the
// two points, an optional measuring direction and the cached measured
// distance.
type distanceMeasure struct {
	base
	noDoF
	p1, p2 PointRef
	along  *geom.Vec3

	cache    rebuildCache
	measured float64
}

func distanceDefaults() *params.Set {
	s := params.New()
	s.SetNumber("dimLineOfs", 1)
	s.SetNumber("arrowSize", 1)
	return s
}

// Points returns both point references.
func (d *distanceMeasure) Points() (PointRef, PointRef) { return d.p1, d.p2 }

// Along returns the measuring direction, if any.
func (d *distanceMeasure) Along() (geom.Vec3, bool) {
	if d.along == nil {
		return geom.Vec3{}, false
	}
	return *d.along, true
}

// Scalar implements ScalarLike. It returns the measured distance.
func (d *distanceMeasure) Scalar(r Resolver) (float64, error) {
	h, err := d.inputHash(r)
	if err != nil {
		return 0, err
	}
	if d.cache.stale(h) {
		a, b, err := d.positions(r)
		if err != nil {
			return 0, err
		}
		d.measured = measureDistance(a, b, d.along)
		d.cache.record(h)
	}
	return d.measured, nil
}

// Rebuilds returns how often the measured distance was recomputed.
func (d *distanceMeasure) Rebuilds() int { return d.cache.Rebuilds() }

func measureDistance(a, b geom.Vec3, along *geom.Vec3) float64 {
	delta := b.Sub(a)
	if along != nil {
		dot := delta.Dot(along.Normalize())
		if dot < 0 {
			return -dot
		}
		return dot
	}
	return delta.Length()
}

func (d *distanceMeasure) positions(r Resolver) (geom.Vec3, geom.Vec3, error) {
	a, err := d.p1.Value(r)
	if err != nil {
		return geom.Vec3{}, geom.Vec3{}, err
	}
	b, err := d.p2.Value(r)
	if err != nil {
		return geom.Vec3{}, geom.Vec3{}, err
	}
	return a, b, nil
}

func (d *distanceMeasure) inputHash(r Resolver) (uint64, error) {
	a, b, err := d.positions(r)
	if err != nil {
		return 0, err
	}
	h := newHasher("distance").vec(a).vec(b)
	if d.along != nil {
		h.vec(*d.along)
	}
	return h.sum(), nil
}

func (d *distanceMeasure) NConstraints() int { return 1 }

func (d *distanceMeasure) measureDeps() []Handle {
	return appendRef(appendRef(nil, d.p1), d.p2)
}

func (d *distanceMeasure) replacePoints(r Resolver, from, to Handle) {
	d.p1.replace(r, from, to)
	d.p2.replace(r, from, to)
}

func (d *distanceMeasure) cloneMeasure() distanceMeasure {
	c := distanceMeasure{
		base:  d.cloneBase(),
		noDoF: d.noDoF,
		p1:    d.p1.clone(),
		p2:    d.p2.clone(),
	}
	if d.along != nil {
		v := *d.along
		c.along = &v
	}
	return c
}

func (d *distanceMeasure) assignMeasure(o *distanceMeasure) {
	d.assignBase(&o.base)
	d.p1, d.p2 = o.p1.clone(), o.p2.clone()
	d.along = nil
	if o.along != nil {
		v := *o.along
		d.along = &v
	}
	d.cache.invalidate()
}

// pointSpecs emits both points and returns their script arguments.
func (d *distanceMeasure) pointSpecs(b *ScriptBuffer, r Resolver) (string, string, error) {
	s1, err := d.p1.spec(b, r)
	if err != nil {
		return "", "", err
	}
	s2, err := d.p2.spec(b, r)
	if err != nil {
		return "", "", err
	}
	return s1, s2, nil
}

func (d *distanceMeasure) alongClause() string {
	if d.along == nil {
		return ""
	}
	return ", along " + formatVector(*d.along)
}

// FixedDistance holds the distance between two points at the value of its
// "distance" parameter.
type FixedDistance struct {
	distanceMeasure
}

// NewFixedDistance constrains the distance between p1 and p2.
func NewFixedDistance(p1, p2 PointRef, distance float64) *FixedDistance {
	defaults := distanceDefaults()
	defaults.SetNumber("distance", distance)
	return &FixedDistance{distanceMeasure{
		base:  newBase(defaults),
		noDoF: noDoF{TypeFixedDistance},
		p1:    p1,
		p2:    p2,
	}}
}

// NewFixedDistanceAlong measures the distance projected onto along.
func NewFixedDistanceAlong(p1, p2 PointRef, along geom.Vec3, distance float64) *FixedDistance {
	c := NewFixedDistance(p1, p2, distance)
	c.along = &along
	return c
}

// fixedDistanceDefaults captures the current distance as the target.
func fixedDistanceDefaults(r Resolver, e Entity) *params.Set {
	c := e.(*FixedDistance)
	s := distanceDefaults()
	d, err := c.Scalar(r)
	if err != nil {
		d = 0
	}
	s.SetNumber("distance", d)
	return s
}

// TypeName implements Entity.
func (c *FixedDistance) TypeName() string { return TypeFixedDistance }

// Target returns the target distance.
func (c *FixedDistance) Target() float64 { return c.Parameters().NumberOr("distance", 0) }

// SetTarget changes the target distance.
func (c *FixedDistance) SetTarget(v float64) { c.Parameters().SetNumber("distance", v) }

// ConstraintError implements Entity.
func (c *FixedDistance) ConstraintError(r Resolver, i int) (float64, error) {
	if err := checkConstraintIndex(TypeFixedDistance, i, 1); err != nil {
		return 0, err
	}
	d, err := c.Scalar(r)
	if err != nil {
		return 0, err
	}
	return d - c.Target(), nil
}

// Dependencies implements Entity.
func (c *FixedDistance) Dependencies() []Handle { return c.measureDeps() }

// DependsOn implements Entity.
func (c *FixedDistance) DependsOn(h Handle) bool { return containsHandle(c.measureDeps(), h) }

// ReplaceDependency implements Entity.
func (c *FixedDistance) ReplaceDependency(r Resolver, from, to Handle) { c.replacePoints(r, from, to) }

// Clone implements Entity.
func (c *FixedDistance) Clone() Entity {
	return &FixedDistance{c.cloneMeasure()}
}

// Assign implements Entity.
func (c *FixedDistance) Assign(other Entity) error {
	o, ok := other.(*FixedDistance)
	if !ok {
		return typeMismatch(TypeFixedDistance, other)
	}
	c.assignMeasure(&o.distanceMeasure)
	return nil
}

// Hash implements Entity.
func (c *FixedDistance) Hash(r Resolver) (uint64, error) {
	h, err := c.inputHash(r)
	if err != nil {
		return 0, err
	}
	return newHasher(TypeFixedDistance).u64(h).float(c.Target()).sum(), nil
}

// Scale implements Entity.
func (c *FixedDistance) Scale(f float64) { c.SetTarget(c.Target() * f) }

// WriteScript implements Entity.
func (c *FixedDistance) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	s1, s2, err := c.pointSpecs(b, r)
	if err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %s, %s%s%s )",
		TypeFixedDistance, id, s1, s2, c.alongClause(), c.trailer()))
	return nil
}

// LinkedDistance holds the distance between two points at the value of an
// expression.
type LinkedDistance struct {
	distanceMeasure
	expr *Expression
}

// NewLinkedDistance constrains the distance between p1 and p2 to expr.
func NewLinkedDistance(p1, p2 PointRef, expr *Expression) *LinkedDistance {
	return &LinkedDistance{
		distanceMeasure: distanceMeasure{
			base:  newBase(distanceDefaults()),
			noDoF: noDoF{TypeLinkedDistance},
			p1:    p1,
			p2:    p2,
		},
		expr: expr,
	}
}

// TypeName implements Entity.
func (c *LinkedDistance) TypeName() string { return TypeLinkedDistance }

// Expression returns the target expression.
func (c *LinkedDistance) Expression() *Expression { return c.expr }

// ConstraintError implements Entity.
func (c *LinkedDistance) ConstraintError(r Resolver, i int) (float64, error) {
	if err := checkConstraintIndex(TypeLinkedDistance, i, 1); err != nil {
		return 0, err
	}
	d, err := c.Scalar(r)
	if err != nil {
		return 0, err
	}
	target, err := c.expr.Eval(r)
	if err != nil {
		return 0, err
	}
	return d - target, nil
}

// Dependencies implements Entity.
func (c *LinkedDistance) Dependencies() []Handle {
	hs := c.measureDeps()
	for _, h := range c.expr.Dependencies() {
		if !containsHandle(hs, h) {
			hs = append(hs, h)
		}
	}
	return hs
}

// DependsOn implements Entity.
func (c *LinkedDistance) DependsOn(h Handle) bool { return containsHandle(c.Dependencies(), h) }

// ReplaceDependency implements Entity.
func (c *LinkedDistance) ReplaceDependency(r Resolver, from, to Handle) {
	c.replacePoints(r, from, to)
	c.expr.replace(r, from, to)
}

// Clone implements Entity.
func (c *LinkedDistance) Clone() Entity {
	return &LinkedDistance{distanceMeasure: c.cloneMeasure(), expr: c.expr.clone()}
}

// Assign implements Entity.
func (c *LinkedDistance) Assign(other Entity) error {
	o, ok := other.(*LinkedDistance)
	if !ok {
		return typeMismatch(TypeLinkedDistance, other)
	}
	c.assignMeasure(&o.distanceMeasure)
	c.expr = o.expr.clone()
	return nil
}

// Hash implements Entity.
func (c *LinkedDistance) Hash(r Resolver) (uint64, error) {
	h, err := c.inputHash(r)
	if err != nil {
		return 0, err
	}
	target, err := c.expr.Eval(r)
	if err != nil {
		return 0, err
	}
	return newHasher(TypeLinkedDistance).u64(h).float(target).sum(), nil
}

// WriteScript implements Entity.
func (c *LinkedDistance) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	s1, s2, err := c.pointSpecs(b, r)
	if err != nil {
		return err
	}
	if err := c.expr.emit(b, r); err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %s, %s%s, %s%s )",
		TypeLinkedDistance, id, s1, s2, c.alongClause(), c.expr.Source(), c.trailer()))
	return nil
}
