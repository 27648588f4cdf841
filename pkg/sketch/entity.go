package sketch

import (
	"fmt"

	"github.com/openfroyo/sketcher/pkg/params"
)

// DefaultLayer is the layer of entities without an explicit layer.
const DefaultLayer = "standard"

// Entity is the contract every sketch element implements. The entity's ID
// is owned by the Sketch, not by the entity.
type Entity interface {
	// TypeName is the script command name of the entity.
	TypeName() string

	NDoF() int
	DoFValue(i int) (float64, error)
	SetDoFValue(i int, v float64) error

	NConstraints() int
	ConstraintError(r Resolver, i int) (float64, error)

	// Dependencies lists the entities this entity reads.
	Dependencies() []Handle
	DependsOn(h Handle) bool

	// ReplaceDependency rewires every field holding from to to, provided to
	// has the capability the field requires. Anything else is a no-op.
	ReplaceDependency(r Resolver, from, to Handle)

	Clone() Entity

	// Assign copies parameters and entity-specific state from other,
	// which must be of the same type.
	Assign(other Entity) error

	// Hash covers the type and every numeric input of the entity's
	// derived state.
	Hash(r Resolver) (uint64, error)

	// WriteScript emits the entity, after its dependencies, into b.
	WriteScript(b *ScriptBuffer, r Resolver, id int) error

	Layer() string
	SetLayer(name string)

	Parameters() *params.Set
	DefaultParameters() *params.Set
	ChangeDefaultParameters(d *params.Set)

	// Scale multiplies lengths owned by the entity.
	Scale(factor float64)
}

// base carries the state shared by all entities.
type base struct {
	layer  string
	params params.Pair
}

func newBase(defaults *params.Set) base {
	return base{params: params.NewPair(defaults)}
}

func (b *base) Layer() string {
	if b.layer == "" {
		return DefaultLayer
	}
	return b.layer
}

func (b *base) SetLayer(name string) { b.layer = name }

func (b *base) Parameters() *params.Set { return b.params.Current() }

func (b *base) DefaultParameters() *params.Set { return b.params.Defaults() }

func (b *base) ChangeDefaultParameters(d *params.Set) { b.params.ChangeDefaults(d) }

func (b *base) Scale(float64) {}

func (b *base) cloneBase() base {
	return base{layer: b.layer, params: b.params.Clone()}
}

func (b *base) assignBase(o *base) {
	b.layer = o.layer
	b.params = o.params.Clone()
}

// trailer renders the layer and parameter clauses of a command.
func (b *base) trailer() string {
	s := ", layer " + b.Layer()
	if p := b.Parameters(); p.Len() > 0 {
		s += ", parameters " + p.XML()
	}
	return s
}

// noDoF is embedded by entities without degrees of freedom.
type noDoF struct{ typeName string }

func (n noDoF) NDoF() int { return 0 }

func (n noDoF) DoFValue(i int) (float64, error) {
	return 0, indexError("DoF", n.typeName, i, 0)
}

func (n noDoF) SetDoFValue(i int, _ float64) error {
	return indexError("DoF", n.typeName, i, 0)
}

// noConstraints is embedded by entities without residuals.
type noConstraints struct{ typeName string }

func (n noConstraints) NConstraints() int { return 0 }

func (n noConstraints) ConstraintError(_ Resolver, i int) (float64, error) {
	return 0, indexError("constraint", n.typeName, i, 0)
}

func checkConstraintIndex(typeName string, i, n int) error {
	if i < 0 || i >= n {
		return indexError("constraint", typeName, i, n)
	}
	return nil
}

func typeMismatch(want string, got Entity) error {
	return newError(ErrorClassValidation, ErrCodeTypeMismatch,
		fmt.Sprintf("cannot assign %s to %s", got.TypeName(), want), nil)
}
