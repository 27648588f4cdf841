package sketch

import (
	"context"
	"fmt"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/params"
)

// TypeExternalReference is the script name of ExternalReference.
const TypeExternalReference = "ExternalReference"

// ExternalReference makes a curve of the geometry kernel available to
// sketch constraints. It is resolved by name through the sketch's curve
// library.
type ExternalReference struct {
	base
	noDoF
	noConstraints
	name  string
	curve geom.Curve
}

// NewExternalReference wraps curve under name.
func NewExternalReference(name string, curve geom.Curve) *ExternalReference {
	return &ExternalReference{
		base:          newBase(params.New()),
		noDoF:         noDoF{TypeExternalReference},
		noConstraints: noConstraints{TypeExternalReference},
		name:          name,
		curve:         curve,
	}
}

// TypeName implements Entity.
func (x *ExternalReference) TypeName() string { return TypeExternalReference }

// Name returns the library name of the curve.
func (x *ExternalReference) Name() string { return x.name }

// Curve returns the referenced curve.
func (x *ExternalReference) Curve() geom.Curve { return x.curve }

// MinDistance implements CurveLike.
func (x *ExternalReference) MinDistance(_ Resolver, p geom.Vec3) (float64, error) {
	if x.curve == nil {
		return 0, newError(ErrorClassDependency, ErrCodeDangling,
			fmt.Sprintf("external reference %q has no curve", x.name), nil)
	}
	d, err := geom.Distance(context.Background(), x.curve, p)
	if err != nil {
		return 0, fmt.Errorf("external reference %q: %w", x.name, err)
	}
	return d, nil
}

// Dependencies implements Entity.
func (x *ExternalReference) Dependencies() []Handle { return nil }

// DependsOn implements Entity.
func (x *ExternalReference) DependsOn(Handle) bool { return false }

// ReplaceDependency implements Entity.
func (x *ExternalReference) ReplaceDependency(Resolver, Handle, Handle) {}

// Clone implements Entity. The curve is shared.
func (x *ExternalReference) Clone() Entity {
	c := *x
	c.base = x.cloneBase()
	return &c
}

// Assign implements Entity.
func (x *ExternalReference) Assign(other Entity) error {
	o, ok := other.(*ExternalReference)
	if !ok {
		return typeMismatch(TypeExternalReference, other)
	}
	x.assignBase(&o.base)
	x.name, x.curve = o.name, o.curve
	return nil
}

// Hash implements Entity.
func (x *ExternalReference) Hash(Resolver) (uint64, error) {
	return newHasher(TypeExternalReference).str(x.name).sum(), nil
}

// WriteScript implements Entity.
func (x *ExternalReference) WriteScript(b *ScriptBuffer, _ Resolver, id int) error {
	b.insert(id, fmt.Sprintf("%s( %d, %s%s )", TypeExternalReference, id, x.name, x.trailer()))
	return nil
}
