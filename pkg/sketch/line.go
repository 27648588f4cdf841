package sketch

import (
	"fmt"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

// Line is the segment between two point-like references. It owns no
// degrees of freedom and contributes no residuals.
type Line struct {
	base
	noDoF
	noConstraints
	p0, p1 PointRef

	cache  rebuildCache
	length float64
	dir    geom.Vec3
}

// TypeLine is the script name of Line.
const TypeLine = "Line"

// NewLine creates a line from p0 to p1.
func NewLine(p0, p1 PointRef) *Line {
	return &Line{
		base:          newBase(params.New()),
		noDoF:         noDoF{TypeLine},
		noConstraints: noConstraints{TypeLine},
		p0:            p0,
		p1:            p1,
	}
}

// TypeName implements Entity.
func (l *Line) TypeName() string { return TypeLine }

// StartRef returns the start point reference.
func (l *Line) StartRef() PointRef { return l.p0 }

// EndRef returns the end point reference.
func (l *Line) EndRef() PointRef { return l.p1 }

// Endpoints returns both end positions.
func (l *Line) Endpoints(r Resolver) (geom.Vec3, geom.Vec3, error) {
	a, err := l.p0.Value(r)
	if err != nil {
		return geom.Vec3{}, geom.Vec3{}, err
	}
	b, err := l.p1.Value(r)
	if err != nil {
		return geom.Vec3{}, geom.Vec3{}, err
	}
	return a, b, nil
}

// MinDistance implements CurveLike.
func (l *Line) MinDistance(r Resolver, p geom.Vec3) (float64, error) {
	a, b, err := l.Endpoints(r)
	if err != nil {
		return 0, err
	}
	return geom.Segment{A: a, B: b}.MinDistance(p), nil
}

// Length returns the segment length.
func (l *Line) Length(r Resolver) (float64, error) {
	if err := l.rebuild(r); err != nil {
		return 0, err
	}
	return l.length, nil
}

// Direction returns the unit direction from start to end.
func (l *Line) Direction(r Resolver) (geom.Vec3, error) {
	if err := l.rebuild(r); err != nil {
		return geom.Vec3{}, err
	}
	return l.dir, nil
}

// Rebuilds returns how often the cached length and direction were
// recomputed.
func (l *Line) Rebuilds() int { return l.cache.Rebuilds() }

func (l *Line) rebuild(r Resolver) error {
	h, err := l.Hash(r)
	if err != nil {
		return err
	}
	if !l.cache.stale(h) {
		return nil
	}
	a, b, err := l.Endpoints(r)
	if err != nil {
		return err
	}
	d := b.Sub(a)
	l.length = d.Length()
	l.dir = d.Normalize()
	l.cache.record(h)
	return nil
}

// Dependencies implements Entity.
func (l *Line) Dependencies() []Handle {
	return appendRef(appendRef(nil, l.p0), l.p1)
}

// DependsOn implements Entity.
func (l *Line) DependsOn(h Handle) bool { return containsHandle(l.Dependencies(), h) }

// ReplaceDependency implements Entity.
func (l *Line) ReplaceDependency(r Resolver, from, to Handle) {
	l.p0.replace(r, from, to)
	l.p1.replace(r, from, to)
}

// Clone implements Entity.
func (l *Line) Clone() Entity {
	c := NewLine(l.p0.clone(), l.p1.clone())
	c.base = l.cloneBase()
	return c
}

// Assign implements Entity.
func (l *Line) Assign(other Entity) error {
	o, ok := other.(*Line)
	if !ok {
		return typeMismatch(TypeLine, other)
	}
	l.assignBase(&o.base)
	l.p0, l.p1 = o.p0.clone(), o.p1.clone()
	l.cache.invalidate()
	return nil
}

// Hash implements Entity.
func (l *Line) Hash(r Resolver) (uint64, error) {
	a, b, err := l.Endpoints(r)
	if err != nil {
		return 0, err
	}
	return newHasher(TypeLine).vec(a).vec(b).sum(), nil
}

// WriteScript implements Entity.
func (l *Line) WriteScript(b *ScriptBuffer, r Resolver, id int) error {
	s0, err := l.p0.spec(b, r)
	if err != nil {
		return err
	}
	s1, err := l.p1.spec(b, r)
	if err != nil {
		return err
	}
	b.insert(id, fmt.Sprintf("%s( %d, %s, %s%s )", TypeLine, id, s0, s1, l.trailer()))
	return nil
}
