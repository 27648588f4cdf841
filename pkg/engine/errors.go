package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openfroyo/sketcher/pkg/sketch"
	"github.com/openfroyo/sketcher/pkg/solver"
	"github.com/openfroyo/sketcher/pkg/stores"
)

// ErrNoStore is returned by document operations when the engine runs
// without a revision store.
var ErrNoStore = errors.New("no revision store configured")

// Error codes.
const (
	ErrCodeInvalidScript  = "INVALID_SCRIPT"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotConverged   = "NOT_CONVERGED"
	ErrCodeSolverFailed   = "SOLVER_FAILED"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// Error is the classified form of a workflow error, shared by the HTTP
// service and the command line.
type Error struct {
	// Code is the error code for programmatic handling.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Entity is the ID of the entity involved, if any.
	Entity string `json:"entity,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`

	// Details contains additional context, such as parse positions.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatus maps the error code to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrCodeInvalidScript, ErrCodeNotConverged, ErrCodeSolverFailed:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode maps the error code to a process exit status.
func (e *Error) ExitCode() int {
	switch e.Code {
	case ErrCodeInvalidScript, ErrCodeInvalidRequest:
		return 2
	case ErrCodeNotConverged, ErrCodeSolverFailed:
		return 3
	default:
		return 1
	}
}

// NewError creates a classified error.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Classify turns any workflow error into an *Error. It returns nil for a
// nil error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}

	out := &Error{Code: ErrCodeInternal, Message: err.Error(), Err: err}

	var pe *sketch.ParseError
	var se *sketch.SketchError
	if errors.As(err, &se) {
		out.Entity = se.Entity
		for k, v := range se.Details {
			out.WithDetail(k, v)
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Code = ErrCodeTimeout
	case errors.Is(err, context.Canceled):
		out.Code = ErrCodeTimeout
		out.Message = "request cancelled"
	case errors.As(err, &pe):
		out.Code = ErrCodeInvalidScript
		out.WithDetail("line", pe.Line).
			WithDetail("col", pe.Col).
			WithDetail("expected", pe.Expected)
		if pe.Found != "" {
			out.WithDetail("found", pe.Found)
		}
	case errors.Is(err, solver.ErrNotConverged):
		out.Code = ErrCodeNotConverged
	case errors.Is(err, stores.ErrNotFound):
		out.Code = ErrCodeNotFound
	case errors.Is(err, stores.ErrNothingToUndo):
		out.Code = ErrCodeConflict
	case errors.Is(err, ErrNoStore):
		out.Code = ErrCodeUnavailable
	case se != nil:
		switch se.Class {
		case sketch.ErrorClassSolver:
			out.Code = ErrCodeSolverFailed
		case sketch.ErrorClassNotFound:
			out.Code = ErrCodeNotFound
		default:
			out.Code = ErrCodeInvalidScript
		}
	}
	return out
}
