package solver

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind selects the solution strategy.
type Kind string

const (
	// KindRoot solves F(x) = 0.
	KindRoot Kind = "root"

	// KindMinimize minimizes the sum of squares of F(x).
	KindMinimize Kind = "minimize"
)

// ParseKind converts a name to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindRoot, KindMinimize:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown solver kind %q (expected root or minimize)", s)
}

// Settings configures a solve.
type Settings struct {
	// Kind is the solver mode.
	Kind Kind `json:"kind" yaml:"kind" validate:"required,oneof=root minimize"`

	// Tolerance is the convergence threshold: residual norm for root
	// finding, simplex size for minimization.
	Tolerance float64 `json:"tolerance" yaml:"tolerance" validate:"gt=0"`

	// Relax is the under-relaxation factor in (0, 1].
	Relax float64 `json:"relax" yaml:"relax" validate:"gt=0,lte=1"`

	// MaxIter bounds the number of iterations.
	MaxIter int `json:"max_iter" yaml:"max_iter" validate:"gt=0"`
}

// DefaultSettings returns root finding with tolerance 1e-10, no relaxation
// and at most 1000 iterations.
func DefaultSettings() Settings {
	return Settings{
		Kind:      KindRoot,
		Tolerance: 1e-10,
		Relax:     1,
		MaxIter:   1000,
	}
}

var validate = validator.New()

// Validate checks the settings.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid solver settings: %s failed on %s=%s (value %v)",
				fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("invalid solver settings: %w", err)
	}
	return nil
}
