package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"abus-go/internal/abus"
	"abus-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteCatalog implements abus.Catalog on SQLite.
type SQLiteCatalog struct {
	db     *sql.DB
	path   string
	logger abus.Logger
}

// NewSQLiteCatalog opens the catalog at path and migrates it to the latest
// schema. path can be a file path or ":memory:".
func NewSQLiteCatalog(path string, logger abus.Logger) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteCatalog{db: db, path: path, logger: logger}, nil
}

// NewSQLiteCatalogFromDB wraps an existing connection.
// The caller is responsible for the schema.
func NewSQLiteCatalogFromDB(db *sql.DB, logger abus.Logger) *SQLiteCatalog {
	return &SQLiteCatalog{db: db, logger: logger}
}

// OpenConnection opens and configures a SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to :memory: would get its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// withTx runs fn in a transaction. The transaction commits only if fn
// succeeds; every failure is returned as a *abus.CatalogTransactionError.
func (s *SQLiteCatalog) withTx(op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &abus.CatalogTransactionError{Op: op, Err: fmt.Errorf("starting transaction: %w", err)}
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return &abus.CatalogTransactionError{Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &abus.CatalogTransactionError{Op: op, Err: fmt.Errorf("committing: %w", err)}
	}
	return nil
}

// Run operations

func (s *SQLiteCatalog) ListRuns() ([]*abus.RunRecord, error) {
	rows, err := s.db.Query(`SELECT run_name, archive_dir FROM run ORDER BY run_name`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*abus.RunRecord
	for rows.Next() {
		r := &abus.RunRecord{}
		if err := rows.Scan(&r.RunName, &r.ArchiveDir); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// FindRun returns the run named runName, or nil if there is none.
func (s *SQLiteCatalog) FindRun(runName string) (*abus.RunRecord, error) {
	r := &abus.RunRecord{}
	err := s.db.QueryRow(`SELECT run_name, archive_dir FROM run WHERE run_name = ?`, runName).
		Scan(&r.RunName, &r.ArchiveDir)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding run: %w", err)
	}
	return r, nil
}

// Operation log

func (s *SQLiteCatalog) CreateOperation(op *abus.Operation) error {
	_, err := s.db.Exec(
		`INSERT INTO operation (id, name, started_at, status, summary) VALUES (?, ?, ?, ?, ?)`,
		op.ID, op.Name, op.StartedAt.UTC(), op.Status, op.Summary,
	)
	if err != nil {
		return fmt.Errorf("creating operation: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) FinishOperation(id string, status string, summary string) error {
	res, err := s.db.Exec(
		`UPDATE operation SET finished_at = ?, status = ?, summary = ? WHERE id = ?`,
		time.Now().UTC(), status, summary, id,
	)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %s", id)
	}
	return nil
}

// ListOperations returns up to limit operations, newest first.
func (s *SQLiteCatalog) ListOperations(limit int) ([]*abus.Operation, error) {
	rows, err := s.db.Query(
		`SELECT id, name, started_at, finished_at, status, summary
		 FROM operation ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*abus.Operation
	for rows.Next() {
		op := &abus.Operation{}
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.Name, &op.StartedAt, &finished, &op.Status, &op.Summary); err != nil {
			return nil, fmt.Errorf("scanning operation: %w", err)
		}
		if finished.Valid {
			op.FinishedAt = finished.Time
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteCatalog) Path() string {
	return s.path
}

// CheckMigrations verifies the catalog schema is up-to-date.
func (s *SQLiteCatalog) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a complete copy of the catalog to destPath using VACUUM INTO.
func (s *SQLiteCatalog) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up catalog: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ abus.Catalog = (*SQLiteCatalog)(nil)
