package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string        `yaml:"path" json:"path" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 8
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a separate database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateDocument inserts a document. An empty ID is replaced by a new UUID.
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *Document) error {
	if doc.Name == "" {
		return fmt.Errorf("document name is required")
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.Plane == "" {
		doc.Plane = "XY"
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	query := `
		INSERT INTO documents (id, name, plane, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, doc.ID, doc.Name, doc.Plane, doc.CreatedAt, doc.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

const documentColumns = `
	d.id, d.name, d.plane, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM revisions r WHERE r.document_id = d.id)
`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	doc := &Document{}
	err := row.Scan(
		&doc.ID,
		&doc.Name,
		&doc.Plane,
		&doc.CreatedAt,
		&doc.UpdatedAt,
		&doc.Revisions,
	)
	return doc, err
}

// GetDocument retrieves a document by ID.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents d WHERE d.id = ?`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments lists documents, most recently updated first.
func (s *SQLiteStore) ListDocuments(ctx context.Context, limit, offset int) ([]*Document, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + documentColumns + `
		FROM documents d
		ORDER BY d.updated_at DESC, d.name
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// DeleteDocument deletes a document together with its revisions.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return expectRow(result, "document", id)
}

func expectRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

// SaveRevision appends a revision to its document.
func (s *SQLiteStore) SaveRevision(ctx context.Context, rev *Revision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM revisions WHERE document_id = ?`, rev.DocumentID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to read revision sequence: %w", err)
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `UPDATE documents SET updated_at = ? WHERE id = ?`, now, rev.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to touch document: %w", err)
	}
	if err := expectRow(result, "document", rev.DocumentID); err != nil {
		return err
	}

	rev.ID = uuid.New().String()
	rev.Seq = seq + 1
	rev.CreatedAt = now

	query := `
		INSERT INTO revisions (
			id, document_id, seq, script, hash, solver_kind, tolerance, relax,
			max_iter, residual, iterations, converged, message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = tx.ExecContext(ctx, query,
		rev.ID,
		rev.DocumentID,
		rev.Seq,
		rev.Script,
		rev.Hash,
		rev.SolverKind,
		rev.Tolerance,
		rev.Relax,
		rev.MaxIter,
		rev.Residual,
		rev.Iterations,
		rev.Converged,
		rev.Message,
		rev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit revision: %w", err)
	}
	return nil
}

const revisionColumns = `
	id, document_id, seq, script, hash, solver_kind, tolerance, relax,
	max_iter, residual, iterations, converged, message, created_at
`

func scanRevision(row interface{ Scan(...any) error }) (*Revision, error) {
	rev := &Revision{}
	err := row.Scan(
		&rev.ID,
		&rev.DocumentID,
		&rev.Seq,
		&rev.Script,
		&rev.Hash,
		&rev.SolverKind,
		&rev.Tolerance,
		&rev.Relax,
		&rev.MaxIter,
		&rev.Residual,
		&rev.Iterations,
		&rev.Converged,
		&rev.Message,
		&rev.CreatedAt,
	)
	return rev, err
}

// GetRevision retrieves revision seq of a document.
func (s *SQLiteStore) GetRevision(ctx context.Context, documentID string, seq int) (*Revision, error) {
	query := `SELECT ` + revisionColumns + ` FROM revisions WHERE document_id = ? AND seq = ?`

	rev, err := scanRevision(s.db.QueryRowContext(ctx, query, documentID, seq))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revision %d of %s: %w", seq, documentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get revision: %w", err)
	}
	return rev, nil
}

// LatestRevision retrieves the newest revision of a document.
func (s *SQLiteStore) LatestRevision(ctx context.Context, documentID string) (*Revision, error) {
	return latestRevision(ctx, s.db, documentID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func latestRevision(ctx context.Context, q querier, documentID string) (*Revision, error) {
	query := `SELECT ` + revisionColumns + `
		FROM revisions
		WHERE document_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`
	rev, err := scanRevision(q.QueryRowContext(ctx, query, documentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("revisions of %s: %w", documentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest revision: %w", err)
	}
	return rev, nil
}

// ListRevisions lists the revisions of a document in sequence order.
func (s *SQLiteStore) ListRevisions(ctx context.Context, documentID string) ([]*Revision, error) {
	query := `SELECT ` + revisionColumns + ` FROM revisions WHERE document_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list revisions: %w", err)
	}
	defer rows.Close()

	revs := []*Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating revisions: %w", err)
	}
	return revs, nil
}

// Undo drops the latest revision of a document and returns the revision
// that is now the latest. A document needs at least two revisions.
func (s *SQLiteStore) Undo(ctx context.Context, documentID string) (*Revision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM revisions WHERE document_id = ?`, documentID,
	).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count revisions: %w", err)
	}
	if count < 2 {
		return nil, fmt.Errorf("document %s has %d revision(s): %w", documentID, count, ErrNothingToUndo)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM revisions
		WHERE document_id = ?
		AND seq = (SELECT MAX(seq) FROM revisions WHERE document_id = ?)
	`, documentID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to drop revision: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET updated_at = ? WHERE id = ?`, time.Now().UTC(), documentID,
	); err != nil {
		return nil, fmt.Errorf("failed to touch document: %w", err)
	}

	rev, err := latestRevision(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit undo: %w", err)
	}
	return rev, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
