package sketch

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
	"github.com/openfroyo/sketcher/pkg/solver"
)

type slot struct {
	e   Entity
	gen uint64
}

func (sl *slot) handle(id int) Handle { return Handle{ID: id, Gen: sl.gen} }

// Sketch owns the entities of a constrained sketch, keyed by integer ID,
// together with the solver settings, layers and variables.
//
// A Sketch is not safe for concurrent use.
type Sketch struct {
	plane     geom.Plane
	slots     map[int]*slot
	gen       uint64
	settings  solver.Settings
	layers    map[string]*params.Set
	variables map[string]float64
	library   geom.Library
	registry  *Registry
	events    EventBus
	logger    zerolog.Logger
}

// Option configures a Sketch.
type Option func(*Sketch)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sketch) { s.logger = l }
}

// WithSolverSettings sets the solver settings.
func WithSolverSettings(st solver.Settings) Option {
	return func(s *Sketch) { s.settings = st }
}

// WithLibrary sets the curve library used by external references.
func WithLibrary(lib geom.Library) Option {
	return func(s *Sketch) { s.library = lib }
}

// WithRegistry sets the entity registry used to read scripts.
func WithRegistry(reg *Registry) Option {
	return func(s *Sketch) { s.registry = reg }
}

// WithVariables sets the variables visible to linked expressions.
func WithVariables(vars map[string]float64) Option {
	return func(s *Sketch) {
		for k, v := range vars {
			s.variables[k] = v
		}
	}
}

// New creates an empty sketch on plane. A nil plane selects the XY plane.
func New(plane geom.Plane, opts ...Option) *Sketch {
	if plane == nil {
		plane = geom.XY()
	}
	s := &Sketch{
		plane:     plane,
		slots:     make(map[int]*slot),
		settings:  solver.DefaultSettings(),
		layers:    map[string]*params.Set{DefaultLayer: params.New()},
		variables: make(map[string]float64),
		registry:  DefaultRegistry(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scratch creates an empty sketch sharing the configuration of s.
func (s *Sketch) scratch() *Sketch {
	return New(s.plane,
		WithSolverSettings(s.settings),
		WithLibrary(s.library),
		WithRegistry(s.registry),
		WithVariables(s.variables))
}

// Plane implements Resolver.
func (s *Sketch) Plane() geom.Plane { return s.plane }

// Variables implements Resolver. The map must not be modified.
func (s *Sketch) Variables() map[string]float64 { return s.variables }

// Resolve implements Resolver.
func (s *Sketch) Resolve(h Handle) (Entity, bool) {
	sl, ok := s.slots[h.ID]
	if !ok || h.Gen == 0 || sl.gen != h.Gen {
		return nil, false
	}
	return sl.e, true
}

// Events returns the event bus of the sketch.
func (s *Sketch) Events() *EventBus { return &s.events }

// Logger returns the sketch logger.
func (s *Sketch) Logger() zerolog.Logger { return s.logger }

// Library returns the curve library, which may be nil.
func (s *Sketch) Library() geom.Library { return s.library }

// Len returns the number of entities.
func (s *Sketch) Len() int { return len(s.slots) }

// IDs returns all entity IDs in ascending order.
func (s *Sketch) IDs() []int {
	ids := make([]int, 0, len(s.slots))
	for id := range s.slots {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Lookup returns the entity with the given ID.
func (s *Sketch) Lookup(id int) (Entity, bool) {
	sl, ok := s.slots[id]
	if !ok {
		return nil, false
	}
	return sl.e, true
}

// HandleOf returns a handle to the entity with the given ID.
func (s *Sketch) HandleOf(id int) (Handle, bool) {
	sl, ok := s.slots[id]
	if !ok {
		return Handle{}, false
	}
	return sl.handle(id), true
}

// IDOf returns the ID under which e is stored.
func (s *Sketch) IDOf(e Entity) (int, bool) {
	for id, sl := range s.slots {
		if sl.e == e {
			return id, true
		}
	}
	return 0, false
}

// Get returns the entity with the given ID if it has type T. T may be a
// concrete type or a capability interface.
func Get[T any](s *Sketch, id int) (T, bool) {
	var zero T
	e, ok := s.Lookup(id)
	if !ok {
		return zero, false
	}
	t, ok := e.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// FindUnusedID returns a free ID. An empty sketch yields 1 or -1;
// otherwise the IDs from 0 are scanned in the sign of direction.
func (s *Sketch) FindUnusedID(direction int) int {
	step := 1
	if direction < 0 {
		step = -1
	}
	if len(s.slots) == 0 {
		return step
	}
	for id := 0; ; id += step {
		if _, used := s.slots[id]; !used {
			return id
		}
	}
}

// Add inserts e under a new ID and returns the ID.
func (s *Sketch) Add(e Entity) (int, error) {
	return s.Insert(e, s.FindUnusedID(1))
}

// Insert stores e under id. If id is taken, the existing entity takes over
// the state of e, which must have the same type, and keeps its handle.
// Every dependency of e must resolve in s.
func (s *Sketch) Insert(e Entity, id int) (int, error) {
	if e == nil {
		return 0, newError(ErrorClassValidation, ErrCodeTypeMismatch, "cannot insert nil entity", nil).
			WithEntity(id)
	}
	if err := s.checkDependencies(e, id); err != nil {
		return 0, err
	}

	if sl, exists := s.slots[id]; exists {
		if sl.e != e {
			if err := sl.e.Assign(e); err != nil {
				return 0, err
			}
		}
		s.ensureLayer(sl.e.Layer())
		s.logger.Debug().Int("entity", id).Str("type", e.TypeName()).Msg("Entity changed")
		s.events.publish(EventChanged, id, sl.e)
		return id, nil
	}

	s.gen++
	s.slots[id] = &slot{e: e, gen: s.gen}
	s.ensureLayer(e.Layer())
	s.logger.Debug().Int("entity", id).Str("type", e.TypeName()).Msg("Entity added")
	s.events.publish(EventAdded, id, e)
	return id, nil
}

// checkDependencies verifies that every dependency of e resolves and that
// storing e under id creates no cycle.
func (s *Sketch) checkDependencies(e Entity, id int) error {
	_, replacing := s.slots[id]
	for _, h := range e.Dependencies() {
		if _, ok := s.Resolve(h); !ok {
			return danglingError(h).WithEntity(id).WithOperation("insert")
		}
		if replacing && (h.ID == id || s.reaches(h, id)) {
			return newError(ErrorClassDependency, ErrCodeCycle,
				fmt.Sprintf("entity %d would depend on itself through %d", id, h.ID), nil).
				WithEntity(id).WithOperation("insert")
		}
	}
	return nil
}

// reaches reports whether the entity behind h depends, transitively, on
// the entity stored under target.
func (s *Sketch) reaches(h Handle, target int) bool {
	seen := make(map[int]bool)
	stack := []Handle{h}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur.ID] {
			continue
		}
		seen[cur.ID] = true
		e, ok := s.Resolve(cur)
		if !ok {
			continue
		}
		for _, d := range e.Dependencies() {
			if d.ID == target {
				return true
			}
			stack = append(stack, d)
		}
	}
	return false
}

// SetExternalReference stores ref under -key, or under a fresh negative
// ID when key is negative. Key 0 stores ref under ID 0.
func (s *Sketch) SetExternalReference(ref *ExternalReference, key int) (int, error) {
	id := -key
	if key < 0 {
		id = s.FindUnusedID(-1)
	}
	return s.Insert(ref, id)
}

// dependentsOf returns the IDs of entities depending directly on id.
func (s *Sketch) dependentsOf(id int) []int {
	sl, ok := s.slots[id]
	if !ok {
		return nil
	}
	h := sl.handle(id)
	var out []int
	for _, other := range s.IDs() {
		if other != id && s.slots[other].e.DependsOn(h) {
			out = append(out, other)
		}
	}
	return out
}

// Erase removes the entity with the given ID. Entities that still depend
// on it make the call fail with ErrHasDependents.
func (s *Sketch) Erase(id int) error {
	if _, ok := s.slots[id]; !ok {
		return notFoundError("entity", id).WithOperation("erase")
	}
	if deps := s.dependentsOf(id); len(deps) > 0 {
		return newError(ErrorClassValidation, ErrCodeHasDependents,
			fmt.Sprintf("entity %d is used by %v", id, deps), nil).
			WithEntity(id).
			WithOperation("erase").
			WithDetail("dependents", deps)
	}
	s.remove(id)
	return nil
}

// EraseEntity removes e.
func (s *Sketch) EraseEntity(e Entity) error {
	id, ok := s.IDOf(e)
	if !ok {
		return newError(ErrorClassNotFound, ErrCodeNotFound, "entity is not part of the sketch", nil).
			WithOperation("erase")
	}
	return s.Erase(id)
}

// EraseCascade removes the entity and everything depending on it,
// dependents first. It returns the removed IDs in removal order.
func (s *Sketch) EraseCascade(id int) ([]int, error) {
	if _, ok := s.slots[id]; !ok {
		return nil, notFoundError("entity", id).WithOperation("erase_cascade")
	}
	g, err := BuildGraph(s)
	if err != nil {
		return nil, err
	}
	doomed := map[int]bool{id: true}
	for _, d := range g.Dependents(id) {
		doomed[d] = true
	}
	order := g.Order()
	var removed []int
	for i := len(order) - 1; i >= 0; i-- {
		if doomed[order[i]] {
			s.remove(order[i])
			removed = append(removed, order[i])
		}
	}
	return removed, nil
}

// Clear removes all entities, dependents first.
func (s *Sketch) Clear() {
	var order []int
	if g, err := BuildGraph(s); err == nil {
		order = g.Order()
	} else {
		order = s.IDs()
	}
	for i := len(order) - 1; i >= 0; i-- {
		s.remove(order[i])
	}
}

func (s *Sketch) remove(id int) {
	sl, ok := s.slots[id]
	if !ok {
		return
	}
	s.events.publish(EventAboutToRemove, id, sl.e)
	delete(s.slots, id)
	s.logger.Debug().Int("entity", id).Str("type", sl.e.TypeName()).Msg("Entity removed")
	s.events.publish(EventRemoved, id, sl.e)
}

// Assign makes s a copy of other: entities, solver settings, layers and
// variables. Entities of matching ID and type take over the other's state
// in place and keep their handles. All other entities of other are cloned
// into fresh slots, so handles to replaced or removed entities of s go
// stale. References between the copied entities are rewired to s.
func (s *Sketch) Assign(other *Sketch) error {
	if other == s {
		return nil
	}

	remaining := make(map[int]bool, len(s.slots))
	for id := range s.slots {
		remaining[id] = true
	}

	for _, id := range other.IDs() {
		osl := other.slots[id]
		if sl, ok := s.slots[id]; ok && sl.e.TypeName() == osl.e.TypeName() {
			if err := sl.e.Assign(osl.e); err != nil {
				return err
			}
			delete(remaining, id)
			s.events.publish(EventChanged, id, sl.e)
			continue
		}
		if _, ok := s.slots[id]; ok {
			s.remove(id)
			delete(remaining, id)
		}
		c := osl.e.Clone()
		s.gen++
		s.slots[id] = &slot{e: c, gen: s.gen}
		s.events.publish(EventAdded, id, c)
	}
	for id := range remaining {
		s.remove(id)
	}
	s.rewire()

	s.plane = other.plane
	s.settings = other.settings
	s.library = other.library
	s.layers = cloneLayers(other.layers)
	s.variables = make(map[string]float64, len(other.variables))
	for k, v := range other.variables {
		s.variables[k] = v
	}
	return nil
}

// rewire points every dependency at the current slot of its ID.
func (s *Sketch) rewire() {
	for _, id := range s.IDs() {
		e := s.slots[id].e
		for _, from := range e.Dependencies() {
			sl, ok := s.slots[from.ID]
			if !ok {
				continue
			}
			if to := sl.handle(from.ID); to != from {
				e.ReplaceDependency(s, from, to)
			}
		}
	}
}

// Clone returns an independent copy of s. Handles into s are valid in the
// copy. Subscriptions are not copied.
func (s *Sketch) Clone() *Sketch {
	c := &Sketch{
		plane:     s.plane,
		slots:     make(map[int]*slot, len(s.slots)),
		gen:       s.gen,
		settings:  s.settings,
		layers:    cloneLayers(s.layers),
		variables: make(map[string]float64, len(s.variables)),
		library:   s.library,
		registry:  s.registry,
		logger:    s.logger,
	}
	for id, sl := range s.slots {
		c.slots[id] = &slot{e: sl.e.Clone(), gen: sl.gen}
	}
	for k, v := range s.variables {
		c.variables[k] = v
	}
	return c
}

func cloneLayers(in map[string]*params.Set) map[string]*params.Set {
	out := make(map[string]*params.Set, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}

// SolverSettings returns the solver settings.
func (s *Sketch) SolverSettings() solver.Settings { return s.settings }

// SetSolverSettings validates and stores new solver settings.
func (s *Sketch) SetSolverSettings(st solver.Settings) error {
	if err := st.Validate(); err != nil {
		return newError(ErrorClassValidation, "", "invalid solver settings", err)
	}
	s.settings = st
	return nil
}

// SetVariable sets a variable for linked expressions.
func (s *Sketch) SetVariable(name string, v float64) { s.variables[name] = v }

// DeleteVariable removes a variable.
func (s *Sketch) DeleteVariable(name string) { delete(s.variables, name) }

func (s *Sketch) ensureLayer(name string) {
	if _, ok := s.layers[name]; !ok {
		s.layers[name] = params.New()
	}
}

// AddLayer declares a layer with empty properties. Existing layers are
// left untouched.
func (s *Sketch) AddLayer(name string) { s.ensureLayer(name) }

// RemoveLayer drops a layer declaration. Layers used by entities cannot be
// removed.
func (s *Sketch) RemoveLayer(name string) error {
	if _, ok := s.layers[name]; !ok {
		return newError(ErrorClassNotFound, ErrCodeNotFound, fmt.Sprintf("layer %s not found", name), nil)
	}
	for _, used := range s.UsedLayerNames() {
		if used == name {
			return newError(ErrorClassValidation, ErrCodeLayerInUse,
				fmt.Sprintf("layer %s is in use", name), nil).WithOperation("remove_layer")
		}
	}
	delete(s.layers, name)
	return nil
}

// HasLayer reports whether the layer is declared or used.
func (s *Sketch) HasLayer(name string) bool {
	for _, l := range s.LayerNames() {
		if l == name {
			return true
		}
	}
	return false
}

// LayerNames returns the declared and used layer names, sorted.
func (s *Sketch) LayerNames() []string {
	set := make(map[string]bool, len(s.layers))
	for name := range s.layers {
		set[name] = true
	}
	for _, name := range s.UsedLayerNames() {
		set[name] = true
	}
	return sortedKeys(set)
}

// UsedLayerNames returns the names of layers that carry entities, sorted.
func (s *Sketch) UsedLayerNames() []string {
	set := make(map[string]bool)
	for _, sl := range s.slots {
		set[sl.e.Layer()] = true
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LayerProperties returns the properties of a layer.
func (s *Sketch) LayerProperties(name string) (*params.Set, bool) {
	p, ok := s.layers[name]
	return p, ok
}

// SetLayerProperties declares the layer if needed and replaces its
// properties.
func (s *Sketch) SetLayerProperties(name string, props *params.Set) {
	if props == nil {
		props = params.New()
	}
	s.layers[name] = props
}

// Points returns the IDs of all sketch points.
func (s *Sketch) Points() []int {
	var out []int
	for _, id := range s.IDs() {
		if _, ok := s.slots[id].e.(*SketchPoint); ok {
			out = append(out, id)
		}
	}
	return out
}

// BoundingBox returns the axis-aligned box of all point-like entities in
// space. ok is false when the sketch has no points.
func (s *Sketch) BoundingBox() (lo, hi geom.Vec3, ok bool) {
	for _, id := range s.IDs() {
		p, isPoint := s.slots[id].e.(PointLike)
		if !isPoint {
			continue
		}
		v, err := p.Value(s)
		if err != nil {
			continue
		}
		if !ok {
			lo, hi, ok = v, v, true
			continue
		}
		lo = geom.V3(math.Min(lo.X, v.X), math.Min(lo.Y, v.Y), math.Min(lo.Z, v.Z))
		hi = geom.V3(math.Max(hi.X, v.X), math.Max(hi.Y, v.Y), math.Max(hi.Z, v.Z))
	}
	return lo, hi, ok
}

// Rect is a rectangle in plane coordinates.
type Rect struct {
	UMin, VMin, UMax, VMax float64
}

func (r Rect) contains(u, v float64) bool {
	return u >= r.UMin && u <= r.UMax && v >= r.VMin && v <= r.VMax
}

// EntitiesInsideRect returns the point-like entities inside rect and the
// line-like entities with both end points inside it.
func (s *Sketch) EntitiesInsideRect(rect Rect) []int {
	inside := func(v geom.Vec3) bool {
		u, w := geom.Project(s.plane, v)
		return rect.contains(u, w)
	}
	var out []int
	for _, id := range s.IDs() {
		switch e := s.slots[id].e.(type) {
		case PointLike:
			if v, err := e.Value(s); err == nil && inside(v) {
				out = append(out, id)
			}
		case LineLike:
			a, b, err := e.Endpoints(s)
			if err == nil && inside(a) && inside(b) {
				out = append(out, id)
			}
		}
	}
	return out
}

// FilterByParameters returns the IDs of entities whose parameters satisfy
// keep.
func (s *Sketch) FilterByParameters(keep func(p *params.Set) bool) []int {
	var out []int
	for _, id := range s.IDs() {
		if keep(s.slots[id].e.Parameters()) {
			out = append(out, id)
		}
	}
	return out
}

// FindConnected returns the entities linked to id through dependencies in
// either direction.
func (s *Sketch) FindConnected(id int) ([]int, error) {
	if _, ok := s.slots[id]; !ok {
		return nil, notFoundError("entity", id).WithOperation("find_connected")
	}
	g, err := BuildGraph(s)
	if err != nil {
		return nil, err
	}
	return g.Component(id), nil
}

// ScaleSketch multiplies all lengths of the sketch by factor.
func (s *Sketch) ScaleSketch(factor float64) {
	for _, id := range s.IDs() {
		s.slots[id].e.Scale(factor)
		s.events.publish(EventChanged, id, s.slots[id].e)
	}
}

// Hash covers the plane and the hash of every entity.
func (s *Sketch) Hash() (uint64, error) {
	h := newHasher("Sketch").
		vec(s.plane.Origin()).
		vec(s.plane.AxisU()).
		vec(s.plane.AxisV())
	for _, id := range s.IDs() {
		eh, err := s.slots[id].e.Hash(s)
		if err != nil {
			return 0, fmt.Errorf("failed to hash entity %d: %w", id, err)
		}
		h.float(float64(id)).u64(eh)
	}
	return h.sum(), nil
}
