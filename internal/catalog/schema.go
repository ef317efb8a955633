package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

const archiveTableDDL = `
CREATE TABLE IF NOT EXISTS archive (
    name TEXT PRIMARY KEY,
    root TEXT NOT NULL
);
`

const attemptTableDDL = `
CREATE TABLE IF NOT EXISTS attempt (
    id INTEGER PRIMARY KEY,
    reqnum INTEGER NOT NULL,
    unitname TEXT NOT NULL,
    attnum INTEGER NOT NULL,
    archive_path TEXT,
    operator TEXT,
    pipeline TEXT,
    submit_time TEXT
);
`

const attemptStateTableDDL = `
CREATE TABLE IF NOT EXISTS attempt_state (
    attempt_id INTEGER PRIMARY KEY,
    data_state TEXT NOT NULL DEFAULT 'ACTIVE',
    archive_state TEXT,
    db_state TEXT
);
`

const tagTableDDL = `
CREATE TABLE IF NOT EXISTS tag (
    tag TEXT NOT NULL,
    attempt_id INTEGER NOT NULL,
    PRIMARY KEY (tag, attempt_id)
);
`

const fileTableDDL = `
CREATE TABLE IF NOT EXISTS file (
    id INTEGER PRIMARY KEY,
    attempt_id INTEGER,
    filename TEXT NOT NULL,
    compression TEXT,
    filetype TEXT,
    filesize INTEGER NOT NULL DEFAULT 0,
    checksum TEXT
);
`

const fileLocationTableDDL = `
CREATE TABLE IF NOT EXISTS file_location (
    file_id INTEGER NOT NULL,
    archive_name TEXT NOT NULL,
    path TEXT NOT NULL,
    PRIMARY KEY (file_id, archive_name)
);
`

const metaTableDDL = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const attemptPathIndexDDL = `CREATE INDEX IF NOT EXISTS idx_attempt_path ON attempt(archive_path);`
const attemptTripletIndexDDL = `CREATE INDEX IF NOT EXISTS idx_attempt_triplet ON attempt(reqnum, unitname, attnum);`
const fileAttemptIndexDDL = `CREATE INDEX IF NOT EXISTS idx_file_attempt ON file(attempt_id);`
const fileNameIndexDDL = `CREATE INDEX IF NOT EXISTS idx_file_name ON file(filename);`
const locationPathIndexDDL = `CREATE INDEX IF NOT EXISTS idx_location_path ON file_location(archive_name, path);`

// InitSchema creates all tables and indexes in the catalog.
func InitSchema(ctx context.Context, db *sql.DB) error {
	ddls := []string{
		archiveTableDDL,
		attemptTableDDL,
		attemptStateTableDDL,
		tagTableDDL,
		fileTableDDL,
		fileLocationTableDDL,
		metaTableDDL,
		attemptPathIndexDDL,
		attemptTripletIndexDDL,
		fileAttemptIndexDDL,
		fileNameIndexDDL,
		locationPathIndexDDL,
	}

	for _, ddl := range ddls {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	return nil
}

// applyPragmas configures a catalog connection for concurrent workers.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}
