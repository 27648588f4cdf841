package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createDocument(t *testing.T, store *SQLiteStore, name string) *Document {
	t.Helper()
	doc := &Document{Name: name}
	if err := store.CreateDocument(context.Background(), doc); err != nil {
		t.Fatalf("failed to create document: %v", err)
	}
	return doc
}

func saveRevision(t *testing.T, store *SQLiteStore, docID, script string, converged bool) *Revision {
	t.Helper()
	rev := &Revision{
		DocumentID: docID,
		Script:     script,
		SolverKind: "root",
		Tolerance:  1e-10,
		Relax:      1,
		MaxIter:    1000,
		Residual:   1e-12,
		Iterations: 3,
		Converged:  converged,
	}
	if err := store.SaveRevision(context.Background(), rev); err != nil {
		t.Fatalf("failed to save revision: %v", err)
	}
	return rev
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("Expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// Migrations are idempotent.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to re-run migrations: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)

	for _, table := range []string{"documents", "revisions"} {
		var count int
		if err := store.db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestDocumentCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	doc := createDocument(t, store, "bracket")
	if doc.ID == "" {
		t.Fatal("Expected generated document ID")
	}
	if doc.Plane != "XY" {
		t.Errorf("Expected default plane XY, got %s", doc.Plane)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("failed to get document: %v", err)
	}
	if got.Name != "bracket" || got.Revisions != 0 {
		t.Errorf("Expected bracket with 0 revisions, got %s with %d", got.Name, got.Revisions)
	}

	if err := store.CreateDocument(ctx, &Document{}); err == nil {
		t.Error("Expected error for unnamed document")
	}
	if err := store.CreateDocument(ctx, &Document{ID: doc.ID, Name: "dup"}); err == nil {
		t.Error("Expected error for duplicate document ID")
	}

	createDocument(t, store, "hinge")
	docs, err := store.ListDocuments(ctx, 0, 0)
	if err != nil {
		t.Fatalf("failed to list documents: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, got %d", len(docs))
	}
	page, err := store.ListDocuments(ctx, 1, 1)
	if err != nil {
		t.Fatalf("failed to list documents: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("Expected 1 document on page, got %d", len(page))
	}

	if err := store.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("failed to delete document: %v", err)
	}
	if _, err := store.GetDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
	if err := store.DeleteDocument(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got: %v", err)
	}
}

func TestRevisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	doc := createDocument(t, store, "bracket")

	first := saveRevision(t, store, doc.ID, "SketchPoint( 1, [0, 0, 0], layer standard )", true)
	second := saveRevision(t, store, doc.ID, "SketchPoint( 1, [1, 0, 0], layer standard )", false)

	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("Expected sequences 1 and 2, got %d and %d", first.Seq, second.Seq)
	}
	if first.ID == second.ID {
		t.Error("Expected distinct revision IDs")
	}

	got, err := store.GetRevision(ctx, doc.ID, 1)
	if err != nil {
		t.Fatalf("failed to get revision: %v", err)
	}
	if got.Script != first.Script || !got.Converged || got.Tolerance != 1e-10 || got.MaxIter != 1000 {
		t.Errorf("Expected first revision round trip, got %+v", got)
	}

	latest, err := store.LatestRevision(ctx, doc.ID)
	if err != nil {
		t.Fatalf("failed to get latest revision: %v", err)
	}
	if latest.Seq != 2 || latest.Converged {
		t.Errorf("Expected unconverged revision 2, got %+v", latest)
	}

	revs, err := store.ListRevisions(ctx, doc.ID)
	if err != nil {
		t.Fatalf("failed to list revisions: %v", err)
	}
	if len(revs) != 2 || revs[0].Seq != 1 || revs[1].Seq != 2 {
		t.Errorf("Expected revisions [1 2], got %d entries", len(revs))
	}

	d, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("failed to get document: %v", err)
	}
	if d.Revisions != 2 {
		t.Errorf("Expected 2 revisions on document, got %d", d.Revisions)
	}

	if _, err := store.GetRevision(ctx, doc.ID, 9); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
	if err := store.SaveRevision(ctx, &Revision{DocumentID: "missing", Script: "x", SolverKind: "root"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown document, got: %v", err)
	}
}

func TestUndo(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	doc := createDocument(t, store, "bracket")

	if _, err := store.Undo(ctx, doc.ID); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Expected ErrNothingToUndo without revisions, got: %v", err)
	}

	saveRevision(t, store, doc.ID, "a", true)
	saveRevision(t, store, doc.ID, "b", true)
	saveRevision(t, store, doc.ID, "c", true)

	rev, err := store.Undo(ctx, doc.ID)
	if err != nil {
		t.Fatalf("failed to undo: %v", err)
	}
	if rev.Seq != 2 || rev.Script != "b" {
		t.Errorf("Expected revision 2 after undo, got %d (%s)", rev.Seq, rev.Script)
	}

	// The next save reuses the freed sequence number.
	next := saveRevision(t, store, doc.ID, "d", true)
	if next.Seq != 3 {
		t.Errorf("Expected sequence 3, got %d", next.Seq)
	}

	if _, err := store.Undo(ctx, doc.ID); err != nil {
		t.Fatalf("failed to undo: %v", err)
	}
	if _, err := store.Undo(ctx, doc.ID); err != nil {
		t.Fatalf("failed to undo: %v", err)
	}
	if _, err := store.Undo(ctx, doc.ID); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Expected ErrNothingToUndo with one revision, got: %v", err)
	}
}

func TestDeleteDocument_CascadesRevisions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	doc := createDocument(t, store, "bracket")
	saveRevision(t, store, doc.ID, "a", true)

	if err := store.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("failed to delete document: %v", err)
	}

	var count int
	if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM revisions").Scan(&count); err != nil {
		t.Fatalf("failed to count revisions: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected revisions to be deleted, got %d", count)
	}
}
