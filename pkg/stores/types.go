package stores

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a document or revision does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNothingToUndo is returned by Undo when a document has at most one
	// revision left.
	ErrNothingToUndo = errors.New("nothing to undo")
)

// Document is a named sketch with a history of revisions.
type Document struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Plane     string    `json:"plane"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Revisions is filled in by GetDocument and ListDocuments.
	Revisions int `json:"revisions"`
}

// Revision is one saved state of a document: the generated script
// together with the solver settings and the outcome of the solve that
// produced it.
type Revision struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Seq        int       `json:"seq"`
	Script     string    `json:"script"`
	Hash       string    `json:"hash"`
	SolverKind string    `json:"solver_kind"`
	Tolerance  float64   `json:"tolerance"`
	Relax      float64   `json:"relax"`
	MaxIter    int       `json:"max_iter"`
	Residual   float64   `json:"residual"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store defines the revision history persistence layer.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	CreateDocument(ctx context.Context, doc *Document) error
	GetDocument(ctx context.Context, id string) (*Document, error)
	ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// SaveRevision appends rev to its document, assigning ID, Seq and
	// CreatedAt.
	SaveRevision(ctx context.Context, rev *Revision) error
	GetRevision(ctx context.Context, documentID string, seq int) (*Revision, error)
	LatestRevision(ctx context.Context, documentID string) (*Revision, error)
	ListRevisions(ctx context.Context, documentID string) ([]*Revision, error)

	// Undo drops the latest revision and returns the new latest one.
	Undo(ctx context.Context, documentID string) (*Revision, error)

	HealthCheck(ctx context.Context) error
}
