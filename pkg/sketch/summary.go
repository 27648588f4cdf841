package sketch

import (
	"math"
	"sort"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

// EntitySummary describes one entity.
type EntitySummary struct {
	ID           int                    `json:"id"`
	Type         string                 `json:"type"`
	Layer        string                 `json:"layer"`
	NDoF         int                    `json:"ndof"`
	NConstraints int                    `json:"nconstraints"`
	Dependencies []int                  `json:"dependencies"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`

	// Coords holds the plane coordinates of point-like entities.
	Coords []float64 `json:"coords,omitempty"`

	// Length is set for line-like entities.
	Length *float64 `json:"length,omitempty"`

	Residuals []float64 `json:"residuals,omitempty"`
}

// Summary is a serializable description of a sketch.
type Summary struct {
	Entities       []EntitySummary `json:"entities"`
	DeclaredLayers []string        `json:"declared_layers"`
	UsedLayers     []string        `json:"used_layers"`
	NDoF           int             `json:"ndof"`
	NConstraints   int             `json:"nconstraints"`

	// Residual is the norm of the residual vector at the current DoFs.
	Residual  float64 `json:"residual"`
	Tolerance float64 `json:"tolerance"`
	Solver    string  `json:"solver"`

	BoundingBox []float64 `json:"bounding_box,omitempty"`
}

// Summary describes the current state of the sketch.
func (s *Sketch) Summary() (*Summary, error) {
	residuals, err := s.ResidualsByEntity()
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		Entities:   make([]EntitySummary, 0, len(s.slots)),
		UsedLayers: s.UsedLayerNames(),
		Tolerance:  s.settings.Tolerance,
		Solver:     string(s.settings.Kind),
	}
	for name := range s.layers {
		sum.DeclaredLayers = append(sum.DeclaredLayers, name)
	}
	sort.Strings(sum.DeclaredLayers)

	sq := 0.0
	for _, id := range s.IDs() {
		e := s.slots[id].e
		es := EntitySummary{
			ID:           id,
			Type:         e.TypeName(),
			Layer:        e.Layer(),
			NDoF:         e.NDoF(),
			NConstraints: e.NConstraints(),
			Dependencies: make([]int, 0),
			Residuals:    residuals[id],
		}
		for _, h := range e.Dependencies() {
			es.Dependencies = append(es.Dependencies, h.ID)
		}
		if p := e.Parameters(); p.Len() > 0 {
			es.Parameters = make(map[string]interface{}, p.Len())
			for _, name := range p.Names() {
				v, _ := p.Get(name)
				if v.Kind == params.KindNumber {
					es.Parameters[name] = v.Num
				} else {
					es.Parameters[name] = v.Str
				}
			}
		}
		switch t := e.(type) {
		case PointLike:
			if v, err := t.Value(s); err == nil {
				u, w := geom.Project(s.plane, v)
				es.Coords = []float64{u, w}
			}
		case LineLike:
			if a, b, err := t.Endpoints(s); err == nil {
				l := a.Distance(b)
				es.Length = &l
			}
		}
		for _, r := range es.Residuals {
			sq += r * r
		}
		sum.NDoF += es.NDoF
		sum.NConstraints += es.NConstraints
		sum.Entities = append(sum.Entities, es)
	}
	sum.Residual = math.Sqrt(sq)

	if lo, hi, ok := s.BoundingBox(); ok {
		sum.BoundingBox = []float64{lo.X, lo.Y, lo.Z, hi.X, hi.Y, hi.Z}
	}
	return sum, nil
}
