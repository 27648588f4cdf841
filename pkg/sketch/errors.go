package sketch

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/openfroyo/sketcher/pkg/solver"
)

// ErrorClass classifies sketch errors.
type ErrorClass string

const (
	// ErrorClassIndex is a DoF or constraint index out of range.
	ErrorClassIndex ErrorClass = "index"

	// ErrorClassDependency is a missing, stale or cyclic dependency.
	ErrorClassDependency ErrorClass = "dependency"

	// ErrorClassParse is malformed script input.
	ErrorClassParse ErrorClass = "parse"

	// ErrorClassSolver is a failed or non-converged solve.
	ErrorClassSolver ErrorClass = "solver"

	// ErrorClassValidation is a rejected mutation of the sketch.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassNotFound is a lookup of an unknown entity or layer.
	ErrorClassNotFound ErrorClass = "not_found"
)

// Error codes.
const (
	ErrCodeIndexOutOfRange = "INDEX_OUT_OF_RANGE"
	ErrCodeDangling        = "DANGLING_DEPENDENCY"
	ErrCodeCycle           = "DEPENDENCY_CYCLE"
	ErrCodeCapability      = "CAPABILITY_MISMATCH"
	ErrCodeSyntax          = "SYNTAX_ERROR"
	ErrCodeNotConverged    = "NOT_CONVERGED"
	ErrCodeSolverFailed    = "SOLVER_FAILED"
	ErrCodeHasDependents   = "HAS_DEPENDENTS"
	ErrCodeTypeMismatch    = "TYPE_MISMATCH"
	ErrCodeDuplicate       = "DUPLICATE"
	ErrCodeLayerInUse      = "LAYER_IN_USE"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeExpression      = "EXPRESSION_ERROR"
)

// SketchError is a classified error with context.
type SketchError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Entity is the ID of the entity involved, if any.
	Entity string `json:"entity,omitempty"`

	// Operation is the operation being performed.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *SketchError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Entity != "" && e.Operation != "" {
		msg += fmt.Sprintf(" (entity=%s, operation=%s)", e.Entity, e.Operation)
	} else if e.Entity != "" {
		msg += fmt.Sprintf(" (entity=%s)", e.Entity)
	} else if e.Operation != "" {
		msg += fmt.Sprintf(" (operation=%s)", e.Operation)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *SketchError) Unwrap() error {
	return e.Err
}

// Is matches errors of the same class and code.
func (e *SketchError) Is(target error) bool {
	t, ok := target.(*SketchError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, code, message string, err error) *SketchError {
	return &SketchError{Class: class, Code: code, Message: message, Err: err}
}

// WithEntity adds the entity ID.
func (e *SketchError) WithEntity(id int) *SketchError {
	e.Entity = strconv.Itoa(id)
	return e
}

// WithOperation adds the operation name.
func (e *SketchError) WithOperation(op string) *SketchError {
	e.Operation = op
	return e
}

// WithCode sets the error code.
func (e *SketchError) WithCode(code string) *SketchError {
	e.Code = code
	return e
}

// WithDetail adds a detail field.
func (e *SketchError) WithDetail(key string, value interface{}) *SketchError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is. They match any SketchError with the same class
// and code.
var (
	ErrIndexOutOfRange    = &SketchError{Class: ErrorClassIndex, Code: ErrCodeIndexOutOfRange}
	ErrDanglingDependency = &SketchError{Class: ErrorClassDependency, Code: ErrCodeDangling}
	ErrCycle              = &SketchError{Class: ErrorClassDependency, Code: ErrCodeCycle}
	ErrCapability         = &SketchError{Class: ErrorClassDependency, Code: ErrCodeCapability}
	ErrSyntax             = &SketchError{Class: ErrorClassParse, Code: ErrCodeSyntax}
	ErrHasDependents      = &SketchError{Class: ErrorClassValidation, Code: ErrCodeHasDependents}
	ErrTypeMismatch       = &SketchError{Class: ErrorClassValidation, Code: ErrCodeTypeMismatch}
	ErrDuplicate          = &SketchError{Class: ErrorClassValidation, Code: ErrCodeDuplicate}
	ErrLayerInUse         = &SketchError{Class: ErrorClassValidation, Code: ErrCodeLayerInUse}
	ErrNotFound           = &SketchError{Class: ErrorClassNotFound, Code: ErrCodeNotFound}
	ErrExpression         = &SketchError{Class: ErrorClassValidation, Code: ErrCodeExpression}

	// ErrNotConverged is the solver's non-convergence signal.
	ErrNotConverged = solver.ErrNotConverged
)

func indexError(kind, typeName string, i, n int) error {
	return newError(ErrorClassIndex, ErrCodeIndexOutOfRange,
		fmt.Sprintf("%s index %d out of range for %s (has %d)", kind, i, typeName, n), nil).
		WithDetail("index", i).
		WithDetail("size", n)
}

func danglingError(h Handle) *SketchError {
	return newError(ErrorClassDependency, ErrCodeDangling,
		fmt.Sprintf("dependency %d (generation %d) does not resolve", h.ID, h.Gen), nil)
}

func capabilityError(h Handle, want Capability) *SketchError {
	return newError(ErrorClassDependency, ErrCodeCapability,
		fmt.Sprintf("entity %d is not %s", h.ID, want), nil)
}

func notFoundError(what string, id int) *SketchError {
	return newError(ErrorClassNotFound, ErrCodeNotFound, fmt.Sprintf("%s %d not found", what, id), nil).
		WithEntity(id)
}

// IsIndex reports an index error.
func IsIndex(err error) bool { return hasClass(err, ErrorClassIndex) }

// IsDependency reports a dependency error.
func IsDependency(err error) bool { return hasClass(err, ErrorClassDependency) }

// IsParse reports a parse error.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) || hasClass(err, ErrorClassParse)
}

// IsSolver reports a solver error.
func IsSolver(err error) bool { return hasClass(err, ErrorClassSolver) }

// IsValidation reports a validation error.
func IsValidation(err error) bool { return hasClass(err, ErrorClassValidation) }

// IsNotFound reports a lookup failure.
func IsNotFound(err error) bool { return hasClass(err, ErrorClassNotFound) }

func hasClass(err error, class ErrorClass) bool {
	var e *SketchError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
