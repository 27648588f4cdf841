package sketch

import (
	"fmt"
	"strings"

	"github.com/openfroyo/sketcher/pkg/geom"
)

// Handle is a weak reference to an arena slot.
type Handle struct {
	ID  int    `json:"id"`
	Gen uint64 `json:"gen"`
}

// IsZero reports whether h was never assigned.
func (h Handle) IsZero() bool { return h.Gen == 0 }

// String implements fmt.Stringer.
func (h Handle) String() string { return fmt.Sprintf("#%d@%d", h.ID, h.Gen) }

// Resolver gives entities read access to the sketch they live in.
type Resolver interface {
	// Resolve dereferences a handle. Stale handles yield false.
	Resolve(h Handle) (Entity, bool)

	// Plane is the sketch plane.
	Plane() geom.Plane

	// Variables are the named scalars visible to linked expressions.
	Variables() map[string]float64
}

// Capability is a bit set over the closed capability set.
type Capability uint8

const (
	// CapPoint marks PointLike entities.
	CapPoint Capability = 1 << iota
	// CapLine marks LineLike entities.
	CapLine
	// CapCurve marks CurveLike entities.
	CapCurve
	// CapScalar marks ScalarLike entities.
	CapScalar
)

// Has reports whether all bits of o are set.
func (c Capability) Has(o Capability) bool { return c&o == o && o != 0 }

// String implements fmt.Stringer.
func (c Capability) String() string {
	var parts []string
	if c&CapPoint != 0 {
		parts = append(parts, "point-like")
	}
	if c&CapLine != 0 {
		parts = append(parts, "line-like")
	}
	if c&CapCurve != 0 {
		parts = append(parts, "curve-like")
	}
	if c&CapScalar != 0 {
		parts = append(parts, "scalar-like")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// PointLike entities have a position in space.
type PointLike interface {
	Entity
	Value(r Resolver) (geom.Vec3, error)
}

// LineLike entities have two end points.
type LineLike interface {
	Entity
	Endpoints(r Resolver) (geom.Vec3, geom.Vec3, error)
	StartRef() PointRef
	EndRef() PointRef
}

// CurveLike entities answer distance queries.
type CurveLike interface {
	Entity
	MinDistance(r Resolver, p geom.Vec3) (float64, error)
}

// ScalarLike entities measure a scalar value.
type ScalarLike interface {
	Entity
	Scalar(r Resolver) (float64, error)
}

// CapabilitiesOf returns the capability set of e.
func CapabilitiesOf(e Entity) Capability {
	var c Capability
	if _, ok := e.(PointLike); ok {
		c |= CapPoint
	}
	if _, ok := e.(LineLike); ok {
		c |= CapLine
	}
	if _, ok := e.(CurveLike); ok {
		c |= CapCurve
	}
	if _, ok := e.(ScalarLike); ok {
		c |= CapScalar
	}
	return c
}

// resolveAs dereferences h and checks its capability.
func resolveAs(r Resolver, h Handle, want Capability) (Entity, error) {
	e, ok := r.Resolve(h)
	if !ok {
		return nil, danglingError(h)
	}
	if !CapabilitiesOf(e).Has(want) {
		return nil, capabilityError(h, want)
	}
	return e, nil
}

// canReplace reports whether from matches field and to resolves to an
// entity with the required capability.
func canReplace(r Resolver, field, from, to Handle, want Capability) bool {
	if field != from {
		return false
	}
	e, ok := r.Resolve(to)
	if !ok {
		return false
	}
	return CapabilitiesOf(e).Has(want)
}

// PointRef is a point argument: either a handle to a PointLike entity or a
// literal vector.
type PointRef struct {
	H   Handle
	Lit *geom.Vec3
}

// RefTo creates a reference to a point-like entity.
func RefTo(h Handle) PointRef { return PointRef{H: h} }

// Literal creates a constant point.
func Literal(v geom.Vec3) PointRef { return PointRef{Lit: &v} }

// IsLiteral reports whether the reference is a constant.
func (p PointRef) IsLiteral() bool { return p.Lit != nil }

// Value returns the referenced position.
func (p PointRef) Value(r Resolver) (geom.Vec3, error) {
	if p.Lit != nil {
		return *p.Lit, nil
	}
	e, err := resolveAs(r, p.H, CapPoint)
	if err != nil {
		return geom.Vec3{}, err
	}
	return e.(PointLike).Value(r)
}

// Handle returns the handle and whether the reference is an entity.
func (p PointRef) Handle() (Handle, bool) {
	if p.Lit != nil {
		return Handle{}, false
	}
	return p.H, true
}

// replace swaps the handle if it equals from and to is point-like.
func (p *PointRef) replace(r Resolver, from, to Handle) {
	if p.Lit == nil && canReplace(r, p.H, from, to, CapPoint) {
		p.H = to
	}
}

// clone deep-copies the literal.
func (p PointRef) clone() PointRef {
	if p.Lit != nil {
		v := *p.Lit
		return PointRef{Lit: &v}
	}
	return p
}

// spec renders the point argument for a script, emitting the referenced
// entity first.
func (p PointRef) spec(b *ScriptBuffer, r Resolver) (string, error) {
	if p.Lit != nil {
		return formatVector(*p.Lit), nil
	}
	if err := b.emitDependency(r, p.H); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", p.H.ID), nil
}

func containsHandle(hs []Handle, h Handle) bool {
	for _, x := range hs {
		if x == h {
			return true
		}
	}
	return false
}

func appendRef(hs []Handle, p PointRef) []Handle {
	if h, ok := p.Handle(); ok && !containsHandle(hs, h) {
		hs = append(hs, h)
	}
	return hs
}
