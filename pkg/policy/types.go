package policy

import (
	"time"

	"github.com/openfroyo/sketcher/pkg/sketch"
)

// Severity represents the severity level of a rule violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError fails the lint.
	SeverityError Severity = "error"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// ParseSeverity converts a name to a Severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError:
		return Severity(s), true
	}
	return "", false
}

// Policy is a design rule written in Rego. Its module must define a
// "deny" set whose elements are either strings or objects with "message"
// and optionally "severity", "entity" and "remediation" keys.
type Policy struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Rego        string   `json:"rego"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
	Builtin     bool     `json:"builtin"`
	Tags        []string `json:"tags,omitempty"`

	// Source is the file a custom policy was loaded from.
	Source string `json:"source,omitempty"`
}

// Violation is a single rule finding.
type Violation struct {
	Policy   string   `json:"policy"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`

	// Entity is the offending entity ID, if the rule names one.
	Entity *int `json:"entity,omitempty"`

	Remediation string                 `json:"remediation,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Result is the outcome of linting one sketch.
type Result struct {
	// Passed is false when any violation has error severity.
	Passed bool `json:"passed"`

	Violations []Violation `json:"violations"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Count returns the number of violations at or above a severity.
func (r *Result) Count(min Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity.rank() >= min.rank() {
			n++
		}
	}
	return n
}

// Input is the document a policy is evaluated against.
type Input struct {
	Sketch  *sketch.Summary `json:"sketch"`
	Context Context         `json:"context"`
}

// Context describes where the sketch came from.
type Context struct {
	// Source is a file name or document ID.
	Source string `json:"source,omitempty"`

	// Solved is set when the summary was taken after constraint
	// resolution, so residual rules apply.
	Solved bool `json:"solved"`

	Timestamp time.Time `json:"timestamp"`
}
