package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/openfroyo/sketcher/pkg/geom"
	"github.com/openfroyo/sketcher/pkg/sketch"
	"github.com/openfroyo/sketcher/pkg/solver"
	"github.com/openfroyo/sketcher/pkg/stores"
	"github.com/openfroyo/sketcher/pkg/telemetry"
)

func (e *Engine) requireStore() error {
	if e.store == nil {
		return ErrNoStore
	}
	return nil
}

func (e *Engine) storeOp(op string, err error) error {
	e.tel.Metrics.RecordStoreOperation(op, err)
	return err
}

// CreateDocument stores a new, empty document. An empty plane selects the
// configured one.
func (e *Engine) CreateDocument(ctx context.Context, name, plane string) (*stores.Document, error) {
	if err := e.requireStore(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, NewError(ErrCodeInvalidRequest, "document name is required", nil)
	}
	if plane == "" {
		plane = e.cfg.Plane
	}
	if _, err := geom.PlaneByName(plane); err != nil {
		return nil, NewError(ErrCodeInvalidRequest, err.Error(), err)
	}

	doc := &stores.Document{Name: name, Plane: plane}
	if err := e.storeOp("create_document", e.store.CreateDocument(ctx, doc)); err != nil {
		return nil, err
	}
	e.tel.Logger.WithDocument(doc.ID).Infof("Document %s created", name)
	return doc, nil
}

// Document returns a stored document.
func (e *Engine) Document(ctx context.Context, id string) (*stores.Document, error) {
	if err := e.requireStore(); err != nil {
		return nil, err
	}
	doc, err := e.store.GetDocument(ctx, id)
	return doc, e.storeOp("get_document", err)
}

// Documents lists stored documents.
func (e *Engine) Documents(ctx context.Context, limit, offset int) ([]*stores.Document, error) {
	if err := e.requireStore(); err != nil {
		return nil, err
	}
	docs, err := e.store.ListDocuments(ctx, limit, offset)
	return docs, e.storeOp("list_documents", err)
}

// DeleteDocument removes a document and its revisions.
func (e *Engine) DeleteDocument(ctx context.Context, id string) error {
	if err := e.requireStore(); err != nil {
		return err
	}
	return e.storeOp("delete_document", e.store.DeleteDocument(ctx, id))
}

// Commit solves script on the document's plane and stores the solved
// script as the next revision. A solve that does not converge is refused
// unless opts.AllowPartial is set; the result is returned either way.
func (e *Engine) Commit(ctx context.Context, docID, script, message string, opts SolveOptions) (*stores.Revision, *SolveResult, error) {
	doc, err := e.Document(ctx, docID)
	if err != nil {
		return nil, nil, err
	}

	opts.DocumentID = doc.ID
	opts.Plane = doc.Plane
	if opts.Source == "" {
		opts.Source = doc.Name
	}

	res, err := e.Solve(ctx, script, opts)
	if res == nil {
		return nil, nil, err
	}
	if err != nil && !(opts.AllowPartial && errors.Is(err, solver.ErrNotConverged)) {
		return nil, res, err
	}

	rev := &stores.Revision{
		DocumentID: doc.ID,
		Script:     res.Script,
		Hash:       res.Hash,
		SolverKind: string(res.Settings.Kind),
		Tolerance:  res.Settings.Tolerance,
		Relax:      res.Settings.Relax,
		MaxIter:    res.Settings.MaxIter,
		Residual:   res.Residual,
		Iterations: res.Iterations,
		Converged:  res.Converged,
		Message:    message,
	}
	if err := e.storeOp("save_revision", e.store.SaveRevision(ctx, rev)); err != nil {
		return nil, res, err
	}

	e.tel.Logger.WithRevision(doc.ID, rev.Seq).Info("Revision saved")
	_ = e.tel.Events.PublishRevision(telemetry.EventTypeRevisionSaved, doc.ID, rev.Seq)
	return rev, res, nil
}

// Undo discards the latest revision of a document and returns the new
// latest one.
func (e *Engine) Undo(ctx context.Context, docID string) (*stores.Revision, error) {
	if err := e.requireStore(); err != nil {
		return nil, err
	}
	rev, err := e.store.Undo(ctx, docID)
	if err := e.storeOp("undo", err); err != nil {
		return nil, err
	}

	e.tel.Logger.WithRevision(docID, rev.Seq).Info("Revision undone")
	_ = e.tel.Events.PublishRevision(telemetry.EventTypeRevisionUndone, docID, rev.Seq)
	return rev, nil
}

// Revisions lists the revisions of a document, oldest first.
func (e *Engine) Revisions(ctx context.Context, docID string) ([]*stores.Revision, error) {
	if _, err := e.Document(ctx, docID); err != nil {
		return nil, err
	}
	revs, err := e.store.ListRevisions(ctx, docID)
	return revs, e.storeOp("list_revisions", err)
}

// Revision returns one revision of a document. Seq 0 selects the latest.
func (e *Engine) Revision(ctx context.Context, docID string, seq int) (*stores.Revision, error) {
	if err := e.requireStore(); err != nil {
		return nil, err
	}
	var rev *stores.Revision
	var err error
	if seq == 0 {
		rev, err = e.store.LatestRevision(ctx, docID)
	} else {
		rev, err = e.store.GetRevision(ctx, docID, seq)
	}
	return rev, e.storeOp("get_revision", err)
}

// Checkout loads a stored revision into a sketch with the revision's
// solver settings.
func (e *Engine) Checkout(ctx context.Context, docID string, seq int) (*sketch.Sketch, *stores.Revision, error) {
	doc, err := e.Document(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	rev, err := e.Revision(ctx, docID, seq)
	if err != nil {
		return nil, nil, err
	}

	settings := solver.Settings{
		Kind:      solver.Kind(rev.SolverKind),
		Tolerance: rev.Tolerance,
		Relax:     rev.Relax,
		MaxIter:   rev.MaxIter,
	}
	if settings.Validate() != nil {
		settings = e.cfg.Solver
	}
	s, err := e.parse(ctx, doc.ID, rev.Script, doc.Plane, settings)
	if err != nil {
		return nil, nil, err
	}
	return s, rev, nil
}
