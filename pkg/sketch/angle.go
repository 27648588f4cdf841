package sketch

import (
	"fmt"
	"math"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

// Script names of the angle constraints.
const (
	TypeFixedAngle  = "FixedAngleConstraint"
	TypeLinkedAngle = "LinkedAngleConstraint"

	toHorizontalKeyword = "toHorizontal"
)

// degenerateAngle is reported when a leg has zero length.
const degenerateAngle = 100 * math.Pi

const smallLength = 1e-10

// angleMeasure holds the state shared by the angle constraints. When
// toHorizontal is set, the second leg runs along the plane's U axis.
type angleMeasure struct {
	base
	noDoF
	p1, p2       PointRef
	ctr          PointRef
	toHorizontal bool

	cache rebuildCache
	theta float64
}

func angleDefaults() *params.Set {
	s := params.New()
	s.SetNumber("dimLineRadius", 1)
	s.SetNumber("arrowSize", 1)
	return s
}

// Points returns the leg points and the center. p2 is meaningless when
// ToHorizontal reports true.
func (a *angleMeasure) Points() (p1, p2, ctr PointRef) { return a.p1, a.p2, a.ctr }

// ToHorizontal reports whether the second leg is the plane's U axis.
func (a *angleMeasure) ToHorizontal() bool { return a.toHorizontal }

// Angle returns the measured angle in radians, in [0, π].
func (a *angleMeasure) Angle(r Resolver) (float64, error) {
	h, err := a.inputHash(r)
	if err != nil {
		return 0, err
	}
	if a.cache.stale(h) {
		p1, p2, ctr, err := a.positions(r)
		if err != nil {
			return 0, err
		}
		a.theta = measureAngle(p1, p2, ctr)
		a.cache.record(h)
	}
	return a.theta, nil
}

// Scalar implements ScalarLike. It returns the measured angle in degrees.
func (a *angleMeasure) Scalar(r Resolver) (float64, error) {
	theta, err := a.Angle(r)
	if err != nil {
		return 0, err
	}
	return theta * 180 / math.Pi, nil
}

// Rebuilds returns how often the measured angle was recomputed.
func (a *angleMeasure) Rebuilds() int { return a.cache.Rebuilds() }

// measureAngle returns the unsigned angle at ctr in [0, pi], so mirrored
// configurations measure the same.
func measureAngle(p1, p2, ctr geom.Vec3) float64 {
	d1 := p1.Sub(ctr)
	d2 := p2.Sub(ctr)
	if d1.Length() < smallLength || d2.Length() < smallLength {
		return degenerateAngle
	}
	return math.Atan2(d1.Cross(d2).Length(), d1.Dot(d2))
}

func (a *angleMeasure) positions(r Resolver) (p1, p2, ctr geom.Vec3, err error) {
	if p1, err = a.p1.Value(r); err != nil {
		return
	}
	if ctr, err = a.ctr.Value(r); err != nil {
		return
	}
	if a.toHorizontal {
		p2 = ctr.Add(r.Plane().AxisU())
		return
	}
	p2, err = a.p2.Value(r)
	return
}

func (a *angleMeasure) inputHash(r Resolver) (uint64, error) {
	p1, p2, ctr, err := a.positions(r)
	if err != nil {
		return 0, err
	}
	return newHasher("angle").vec(p1).vec(p2).vec(ctr).sum(), nil
}

func (a *angleMeasure) NConstraints() int { return 1 }

func (a *angleMeasure) residual(r Resolver, i int, targetDeg func() (float64, error)) (float64, error) {
	if err := checkConstraintIndex(a.typeName, i, 1); err != nil {
		return 0, err
	}
	theta, err := a.Angle(r)
	if err != nil {
		return 0, err
	}
	target, err := targetDeg()
	if err != nil {
		return 0, err
	}
	return (theta - target*math.Pi/180) / math.Pi, nil
}

func (a *angleMeasure) measureDeps() []Handle {
	hs := appendRef(nil, a.p1)
	if !a.toHorizontal {
		hs = appendRef(hs, a.p2)
	}
	return appendRef(hs, a.ctr)
}

func (a *angleMeasure) replacePoints(r Resolver, from, to Handle) {
	a.p1.replace(r, from, to)
	if !a.toHorizontal {
		a.p2.replace(r, from, to)
	}
	a.ctr.replace(r, from, to)
}

func (a *angleMeasure) cloneMeasure() angleMeasure {
	return angleMeasure{
		base:         a.cloneBase(),
		noDoF:        a.noDoF,
		p1:           a.p1.clone(),
		p2:           a.p2.clone(),
		ctr:          a.ctr.clone(),
		toHorizontal: a.toHorizontal,
	}
}

func (a *angleMeasure) assignMeasure(o *angleMeasure) {
	a.assignBase(&o.base)
	a.p1, a.p2, a.ctr = o.p1.clone(), o.p2.clone(), o.ctr.clone()
	a.toHorizontal = o.toHorizontal
	a.cache.invalidate()
}

func (a *angleMeasure) pointSpecs(b *ScriptBuffer, r Resolver) (string, string, string, error) {
	s1, err := a.p1.spec(b, r)
	if err != nil {
		return "", "", "", err
	}
	s2 := toHorizontalKeyword
	if !a.toHorizontal {
		if s2, err = a.p2.spec(b, r); err != nil {
			return "", "", "", err
		}
	}
	sc, err := a.ctr.spec(b, r)
	if err != nil {
		return "", "", "", err
	}
	return s1, s2, sc, nil
}

func newAngleMeasure(typeName string, defaults *params.Set, p1, p2, ctr PointRef, toHorizontal bool) angleMeasure {
	return angleMeasure{
		base:         newBase(defaults),
		noDoF:        noDoF{typeName},
		p1:           p1,
		p2:           p2,
		ctr:          ctr,
		toHorizontal: toHorizontal,
	}
}

// FixedAngle holds the angle p1-ctr-p2 at its "angle" parameter, given in
// degrees.
type FixedAngle struct {
	angleMeasure
}

// NewFixedAngle constrains the angle at ctr between p1 and p2.
func NewFixedAngle(p1, p2, ctr PointRef, angleDeg float64) *FixedAngle {
	d := angleDefaults()
	d.SetNumber("angle", angleDeg)
	return &FixedAngle{newAngleMeasure(TypeFixedAngle, d, p1, p2, ctr, false)}
}

// NewFixedAngleToHorizontal constrains the angle at ctr between p1 and the
// plane's U axis.
func NewFixedAngleToHorizontal(p1, ctr PointRef, angleDeg float64) *FixedAngle {
	d := angleDefaults()
	d.SetNumber("angle", angleDeg)
	return &FixedAngle{newAngleMeasure(TypeFixedAngle, d, p1, PointRef{}, ctr, true)}
}

// fixedAngleDefaults captures the current angle as the target.
func fixedAngleDefaults(r Resolver, e Entity) *params.Set {
	c := e.(*FixedAngle)
	s := angleDefaults()
	deg, err := c.Scalar(r)
	if err != nil {
		deg = 0
	}
	s.SetNumber("angle", deg)
	return s
}

// TypeName implements Entity.
func (c *FixedAngle) TypeName() string { return TypeFixedAngle }

// Target returns the target angle in degrees.
func (c *FixedAngle) Target() float64 { return c.Parameters().NumberOr("angle", 0) }

// SetTarget changes the target angle in degrees.
func (c *FixedAngle) SetTarget(deg float64) { c.Parameters().SetNumber("angle", deg) }

// ConstraintError implements Entity.
func (c *FixedAngle) ConstraintError(r Resolver, i int) (float64, error) {
	return c.residual(r, i, func() (float64, error) { return c.Target(), nil })
}

// Dependencies implements Entity.
func (c *FixedAngle) Dependencies() []Handle { return c.measureDeps() }

// DependsOn implements Entity.
func (c *FixedAngle) DependsOn(h Handle) bool { return containsHandle(c.measureDeps(), h) }

// ReplaceDependency implements Entity.
func (c *FixedAngle) ReplaceDependency(r Resolver, from, to Handle) { c.replacePoints(r, from, to) }

// Clone implements Entity.
func (c *FixedAngle) Clone() Entity { return &FixedAngle{c.cloneMeasure()} }

// Assign implements Entity.
func (c *FixedAngle) Assign(other Entity) error {
	o, ok := other.(*FixedAngle)
	if !ok {
		return typeMismatch(TypeFixedAngle, other)
	}
	c.assignMeasure(&o.angleMeasure)
	return nil
}

// Hash implements Entity.
func (c *FixedAngle) Hash(r Resolver) (uint64, error) {
	h, err := c.inputHash(r)
	if err != nil {
		return 0, err
	}
	return newHasher(TypeFixedAngle).u64(h).float(c.Target()).sum(), nil
}

// WriteScript implements Entity.
func (c *FixedAngle) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	s1, s2, sc, err := c.pointSpecs(b, r)
	if err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %s, %s, %s%s )", TypeFixedAngle, id, s1, s2, sc, c.trailer()))
	return nil
}

// LinkedAngle holds the angle p1-ctr-p2 at the value of an expression, in
// degrees.
type LinkedAngle struct {
	angleMeasure
	expr *Expression
}

// NewLinkedAngle constrains the angle at ctr between p1 and p2 to expr.
func NewLinkedAngle(p1, p2, ctr PointRef, expr *Expression) *LinkedAngle {
	return &LinkedAngle{
		angleMeasure: newAngleMeasure(TypeLinkedAngle, angleDefaults(), p1, p2, ctr, false),
		expr:         expr,
	}
}

// NewLinkedAngleToHorizontal constrains the angle between p1 and the U axis
// at ctr to expr.
func NewLinkedAngleToHorizontal(p1, ctr PointRef, expr *Expression) *LinkedAngle {
	return &LinkedAngle{
		angleMeasure: newAngleMeasure(TypeLinkedAngle, angleDefaults(), p1, PointRef{}, ctr, true),
		expr:         expr,
	}
}

// TypeName implements Entity.
func (c *LinkedAngle) TypeName() string { return TypeLinkedAngle }

// Expression returns the target expression.
func (c *LinkedAngle) Expression() *Expression { return c.expr }

// ConstraintError implements Entity.
func (c *LinkedAngle) ConstraintError(r Resolver, i int) (float64, error) {
	return c.residual(r, i, func() (float64, error) { return c.expr.Eval(r) })
}

// Dependencies implements Entity.
func (c *LinkedAngle) Dependencies() []Handle {
	hs := c.measureDeps()
	for _, h := range c.expr.Dependencies() {
		if !containsHandle(hs, h) {
			hs = append(hs, h)
		}
	}
	return hs
}

// DependsOn implements Entity.
func (c *LinkedAngle) DependsOn(h Handle) bool { return containsHandle(c.Dependencies(), h) }

// ReplaceDependency implements Entity.
func (c *LinkedAngle) ReplaceDependency(r Resolver, from, to Handle) {
	c.replacePoints(r, from, to)
	c.expr.replace(r, from, to)
}

// Clone implements Entity.
func (c *LinkedAngle) Clone() Entity {
	return &LinkedAngle{angleMeasure: c.cloneMeasure(), expr: c.expr.clone()}
}

// Assign implements Entity.
func (c *LinkedAngle) Assign(other Entity) error {
	o, ok := other.(*LinkedAngle)
	if !ok {
		return typeMismatch(TypeLinkedAngle, other)
	}
	c.assignMeasure(&o.angleMeasure)
	c.expr = o.expr.clone()
	return nil
}

// Hash implements Entity.
func (c *LinkedAngle) Hash(r Resolver) (uint64, error) {
	h, err := c.inputHash(r)
	if err != nil {
		return 0, err
	}
	target, err := c.expr.Eval(r)
	if err != nil {
		return 0, err
	}
	return newHasher(TypeLinkedAngle).u64(h).float(target).sum(), nil
}

// WriteScript implements Entity.
func (c *LinkedAngle) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	s1, s2, sc, err := c.pointSpecs(b, r)
	if err != nil {
		return err
	}
	if err := c.expr.emit(b, r); err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %s, %s, %s, %s%s )",
		TypeLinkedAngle, id, s1, s2, sc, c.expr.Source(), c.trailer()))
	return nil
}
