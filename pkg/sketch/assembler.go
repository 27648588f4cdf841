package sketch

import (
	"fmt"
)

// Span is the slice of the DoF or residual vector owned by one entity.
type Span struct {
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

type vectorEntry struct {
	id    int
	local int
	e     Entity
}

// Assembly flattens the DoFs and residuals of a sketch into vectors, in
// ascending entity ID order.
type Assembly struct {
	s         *Sketch
	dofs      []vectorEntry
	residuals []vectorEntry
	dofSpans  map[int]Span
	resSpans  map[int]Span
}

// Assemble indexes the DoFs and residuals of s. The assembly is invalid
// once entities are added or removed.
func Assemble(s *Sketch) *Assembly {
	a := &Assembly{
		s:        s,
		dofSpans: make(map[int]Span),
		resSpans: make(map[int]Span),
	}
	for _, id := range s.IDs() {
		e := s.slots[id].e
		if n := e.NDoF(); n > 0 {
			a.dofSpans[id] = Span{Offset: len(a.dofs), Count: n}
			for i := 0; i < n; i++ {
				a.dofs = append(a.dofs, vectorEntry{id: id, local: i, e: e})
			}
		}
		if n := e.NConstraints(); n > 0 {
			a.resSpans[id] = Span{Offset: len(a.residuals), Count: n}
			for i := 0; i < n; i++ {
				a.residuals = append(a.residuals, vectorEntry{id: id, local: i, e: e})
			}
		}
	}
	return a
}

// NDoF returns the length of the DoF vector.
func (a *Assembly) NDoF() int { return len(a.dofs) }

// NResiduals returns the length of the residual vector.
func (a *Assembly) NResiduals() int { return len(a.residuals) }

// X reads the current DoF vector.
func (a *Assembly) X() ([]float64, error) {
	x := make([]float64, len(a.dofs))
	for k, d := range a.dofs {
		v, err := d.e.DoFValue(d.local)
		if err != nil {
			return nil, err
		}
		x[k] = v
	}
	return x, nil
}

// Apply writes x back into the entities.
func (a *Assembly) Apply(x []float64) error {
	if len(x) != len(a.dofs) {
		return fmt.Errorf("DoF vector has %d entries, expected %d", len(x), len(a.dofs))
	}
	for k, d := range a.dofs {
		if err := d.e.SetDoFValue(d.local, x[k]); err != nil {
			return err
		}
	}
	return nil
}

// Residuals evaluates the residual vector for the current DoFs.
func (a *Assembly) Residuals() ([]float64, error) {
	f := make([]float64, len(a.residuals))
	for k, c := range a.residuals {
		v, err := c.e.ConstraintError(a.s, c.local)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate constraint %d of entity %d: %w", c.local, c.id, err)
		}
		f[k] = v
	}
	return f, nil
}

// F applies x and evaluates the residuals. It has the signature of
// solver.Func.
func (a *Assembly) F(x []float64) ([]float64, error) {
	if err := a.Apply(x); err != nil {
		return nil, err
	}
	return a.Residuals()
}

// Locate maps DoF vector index k to an entity ID and local DoF index.
func (a *Assembly) Locate(k int) (id, local int, err error) {
	if k < 0 || k >= len(a.dofs) {
		return 0, 0, indexError("DoF", "assembly", k, len(a.dofs))
	}
	return a.dofs[k].id, a.dofs[k].local, nil
}

// LocateResidual maps residual vector index k to an entity ID and local
// constraint index.
func (a *Assembly) LocateResidual(k int) (id, local int, err error) {
	if k < 0 || k >= len(a.residuals) {
		return 0, 0, indexError("constraint", "assembly", k, len(a.residuals))
	}
	return a.residuals[k].id, a.residuals[k].local, nil
}

// DoFSpan returns the DoF slice of entity id.
func (a *Assembly) DoFSpan(id int) (Span, bool) {
	sp, ok := a.dofSpans[id]
	return sp, ok
}

// ResidualSpan returns the residual slice of entity id.
func (a *Assembly) ResidualSpan(id int) (Span, bool) {
	sp, ok := a.resSpans[id]
	return sp, ok
}

// dofOwners returns the sorted, unique entity IDs owning the given DoF
// indices.
func (a *Assembly) dofOwners(ks []int) []int {
	var out []int
	seen := make(map[int]bool)
	for _, k := range ks {
		id, _, err := a.Locate(k)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
