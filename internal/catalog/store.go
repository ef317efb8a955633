// Package catalog is the SQLite-backed record of archives, scopes and the
// files each scope owns.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Data and archive lifecycle states.
const (
	StateActive = "ACTIVE"
	StateJunk   = "JUNK"
	StatePruned = "PRUNED"
	StatePurged = "PURGED"
)

// ErrNotFound is returned when a single-row lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Scope is one attempt: a logical unit of files living under one relative path.
type Scope struct {
	ID           int64
	ReqNum       int64
	UnitName     string
	AttNum       int64
	RelPath      string
	Operator     string
	Pipeline     string
	SubmitTime   string
	DataState    string
	ArchiveState string
}

// File is one catalog file row joined with its location in an archive.
// An empty Compression is stored as NULL.
type File struct {
	ID          int64
	ScopeID     int64
	Filename    string
	Compression string
	FileType    string
	Size        int64
	Checksum    string
	Path        string
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Reader is the read side of the catalog, satisfied by both *Store and *Tx.
type Reader interface {
	ArchiveRoot(ctx context.Context, archive string) (string, error)
	ScopeInfo(ctx context.Context, id int64) (Scope, error)
	FilesByScope(ctx context.Context, archive string, id int64, fileType string) ([]File, error)
	FilesByPath(ctx context.Context, archive, relPath string) ([]File, error)
	DuplicateLocations(ctx context.Context, archive string, filenames []string) ([]File, error)
	CountFiles(ctx context.Context, archive string, id int64) (int, error)
}

// Store is an open catalog database. Each worker opens its own Store.
type Store struct {
	conn
	db   *sql.DB
	path string
}

// Open opens (or creates) the catalog at path and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(30000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{conn: conn{q: db}, db: db, path: path}, nil
}

// Path returns the catalog file path.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a transaction. Reads through the returned Tx observe its
// uncommitted writes.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &Tx{conn: conn{q: tx}, tx: tx}, nil
}

// Tx is a catalog transaction.
type Tx struct {
	conn
	tx *sql.Tx
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a no-op.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// conn carries the queries shared by Store and Tx.
type conn struct {
	q querier
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
