package sketch

import (
	"fmt"
	"sort"
	"sync"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

// Rule parses the type-specific arguments of a command, after "id ," and
// before the optional layer and parameters clauses.
type Rule func(rr *RuleReader) (Entity, error)

// DefaultsFunc produces the default parameters of a freshly parsed entity.
// It may measure the current geometry.
type DefaultsFunc func(r Resolver, e Entity) *params.Set

// RegistryEntry is the parse rule and defaults of one entity type.
type RegistryEntry struct {
	Parse    Rule
	Defaults DefaultsFunc
}

// Registry maps script type names to parse rules.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]RegistryEntry)}
}

// Register adds a type. Names are unique.
func (r *Registry) Register(name string, entry RegistryEntry) error {
	if entry.Parse == nil {
		return fmt.Errorf("entity type %s has no parse rule", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return newError(ErrorClassValidation, ErrCodeDuplicate,
			fmt.Sprintf("entity type %s already registered", name), nil)
	}
	r.entries[name] = entry
	return nil
}

// Lookup returns the entry for name.
func (r *Registry) Lookup(name string) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	return e, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy, for extending the built-in types.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewRegistry()
	for n, e := range r.entries {
		c.entries[n] = e
	}
	return c
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	builtin := map[string]RegistryEntry{
		TypeSketchPoint:       {Parse: parsePoint},
		TypeLine:              {Parse: parseLine},
		TypeFixedPoint:        {Parse: parseFixedPoint, Defaults: fixedPointDefaultsFor},
		TypeHorizontal:        {Parse: parseHorizontal},
		TypeVertical:          {Parse: parseVertical},
		TypeTangent:           {Parse: parseTangent},
		TypePointOnCurve:      {Parse: parsePointOnCurve},
		TypeFixedDistance:     {Parse: parseFixedDistance, Defaults: fixedDistanceDefaults},
		TypeLinkedDistance:    {Parse: parseLinkedDistance},
		TypeFixedAngle:        {Parse: parseFixedAngle, Defaults: fixedAngleDefaults},
		TypeLinkedAngle:       {Parse: parseLinkedAngle},
		TypeExternalReference: {Parse: parseExternalReference},
	}
	for name, entry := range builtin {
		if err := r.Register(name, entry); err != nil {
			panic(err)
		}
	}
	return r
})

// DefaultRegistry returns the shared registry of the built-in entity
// types. It must not be modified; use Clone to extend it.
func DefaultRegistry() *Registry { return defaultRegistry() }

func parsePoint(rr *RuleReader) (Entity, error) {
	u, err := rr.Float()
	if err != nil {
		return nil, err
	}
	if err := rr.Comma(); err != nil {
		return nil, err
	}
	v, err := rr.Float()
	if err != nil {
		return nil, err
	}
	return NewPoint(u, v), nil
}

func parseLine(rr *RuleReader) (Entity, error) {
	p0, err := rr.Point()
	if err != nil {
		return nil, err
	}
	if err := rr.Comma(); err != nil {
		return nil, err
	}
	p1, err := rr.Point()
	if err != nil {
		return nil, err
	}
	return NewLine(p0, p1), nil
}

func parseFixedPoint(rr *RuleReader) (Entity, error) {
	p, err := rr.Entity(CapPoint)
	if err != nil {
		return nil, err
	}
	return NewFixedPoint(p, 0, 0), nil
}

func parseHorizontal(rr *RuleReader) (Entity, error) {
	l, err := rr.Entity(CapLine)
	if err != nil {
		return nil, err
	}
	return NewHorizontal(l), nil
}

func parseVertical(rr *RuleReader) (Entity, error) {
	l, err := rr.Entity(CapLine)
	if err != nil {
		return nil, err
	}
	return NewVertical(l), nil
}

func parseTangent(rr *RuleReader) (Entity, error) {
	l1, err := rr.Entity(CapLine)
	if err != nil {
		return nil, err
	}
	if err := rr.Comma(); err != nil {
		return nil, err
	}
	l2, err := rr.Entity(CapLine)
	if err != nil {
		return nil, err
	}
	return NewTangent(l1, l2), nil
}

func parsePointOnCurve(rr *RuleReader) (Entity, error) {
	c, err := rr.Entity(CapCurve)
	if err != nil {
		return nil, err
	}
	if err := rr.Comma(); err != nil {
		return nil, err
	}
	p, err := rr.Point()
	if err != nil {
		return nil, err
	}
	return NewPointOnCurve(c, p), nil
}

// parseTwoPoints reads "p1 , p2 [, along VEC]".
func parseTwoPoints(rr *RuleReader) (PointRef, PointRef, *geom.Vec3, error) {
	p1, err := rr.Point()
	if err != nil {
		return PointRef{}, PointRef{}, nil, err
	}
	if err := rr.Comma(); err != nil {
		return PointRef{}, PointRef{}, nil, err
	}
	p2, err := rr.Point()
	if err != nil {
		return PointRef{}, PointRef{}, nil, err
	}
	if !rr.OptionalClause("along") {
		return p1, p2, nil, nil
	}
	v, err := rr.Vector()
	if err != nil {
		return PointRef{}, PointRef{}, nil, err
	}
	return p1, p2, &v, nil
}

func parseFixedDistance(rr *RuleReader) (Entity, error) {
	p1, p2, along, err := parseTwoPoints(rr)
	if err != nil {
		return nil, err
	}
	c := NewFixedDistance(p1, p2, 0)
	c.along = along
	return c, nil
}

func parseLinkedDistance(rr *RuleReader) (Entity, error) {
	p1, p2, along, err := parseTwoPoints(rr)
	if err != nil {
		return nil, err
	}
	if err := rr.Comma(); err != nil {
		return nil, err
	}
	expr, err := rr.Expression()
	if err != nil {
		return nil, err
	}
	c := NewLinkedDistance(p1, p2, expr)
	c.along = along
	return c, nil
}

// parseAnglePoints reads "p1 , p2|toHorizontal , pCtr".
func parseAnglePoints(rr *RuleReader) (p1, p2, ctr PointRef, toHorizontal bool, err error) {
	if p1, err = rr.Point(); err != nil {
		return
	}
	if err = rr.Comma(); err != nil {
		return
	}
	if toHorizontal = rr.Keyword(toHorizontalKeyword); !toHorizontal {
		if p2, err = rr.Point(); err != nil {
			return
		}
	}
	if err = rr.Comma(); err != nil {
		return
	}
	ctr, err = rr.Point()
	return
}

func parseFixedAngle(rr *RuleReader) (Entity, error) {
	p1, p2, ctr, toHorizontal, err := parseAnglePoints(rr)
	if err != nil {
		return nil, err
	}
	if toHorizontal {
		return NewFixedAngleToHorizontal(p1, ctr, 0), nil
	}
	return NewFixedAngle(p1, p2, ctr, 0), nil
}

func parseLinkedAngle(rr *RuleReader) (Entity, error) {
	p1, p2, ctr, toHorizontal, err := parseAnglePoints(rr)
	if err != nil {
		return nil, err
	}
	if err := rr.Comma(); err != nil {
		return nil, err
	}
	expr, err := rr.Expression()
	if err != nil {
		return nil, err
	}
	if toHorizontal {
		return NewLinkedAngleToHorizontal(p1, ctr, expr), nil
	}
	return NewLinkedAngle(p1, p2, ctr, expr), nil
}

func parseExternalReference(rr *RuleReader) (Entity, error) {
	name, err := rr.Label()
	if err != nil {
		return nil, err
	}
	curve, err := rr.Curve(name)
	if err != nil {
		return nil, err
	}
	return NewExternalReference(name, curve), nil
}
