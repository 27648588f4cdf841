package geom

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Curve answers minimum-distance queries.
type Curve interface {
	MinDistance(p Vec3) float64
}

// CheckedCurve is a Curve whose evaluation can fail.
type CheckedCurve interface {
	Curve
	Distance(ctx context.Context, p Vec3) (float64, error)
}

// Distance returns the distance from p to c, with the evaluation error of
// a CheckedCurve.
func Distance(ctx context.Context, c Curve, p Vec3) (float64, error) {
	if cc, ok := c.(CheckedCurve); ok {
		return cc.Distance(ctx, p)
	}
	return c.MinDistance(p), nil
}

// Segment is the straight segment between A and B.
type Segment struct {
	A, B Vec3
}

// MinDistance returns the distance from p to the closest point of the segment.
func (s Segment) MinDistance(p Vec3) float64 {
	d := s.B.Sub(s.A)
	l2 := d.Dot(d)
	if l2 == 0 {
		return p.Distance(s.A)
	}
	t := p.Sub(s.A).Dot(d) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Distance(s.A.Add(d.Mul(t)))
}

// Circle is a full circle of radius R around Center in the plane with
// normal N.
type Circle struct {
	Center Vec3
	N      Vec3
	R      float64
}

// MinDistance returns the distance from p to the circle.
func (c Circle) MinDistance(p Vec3) float64 {
	n := c.N.Normalize()
	d := p.Sub(c.Center)
	h := d.Dot(n)
	radial := d.Sub(n.Mul(h)).Length()
	return math.Hypot(radial-c.R, h)
}

// Library maps names to curves supplied by an external kernel.
type Library interface {
	Curve(name string) (Curve, error)
}

// MapLibrary is an in-memory Library.
type MapLibrary struct {
	mu     sync.RWMutex
	curves map[string]Curve
}

// NewMapLibrary creates an empty library.
func NewMapLibrary() *MapLibrary {
	return &MapLibrary{curves: make(map[string]Curve)}
}

// Register adds or replaces a named curve.
func (l *MapLibrary) Register(name string, c Curve) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.curves[name] = c
}

// Curve looks up a curve by name.
func (l *MapLibrary) Curve(name string) (Curve, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.curves[name]
	if !ok {
		return nil, fmt.Errorf("external curve %q not found", name)
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (l *MapLibrary) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.curves))
	for n := range l.curves {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
