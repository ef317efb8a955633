package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// MetaChecksumAlgorithm names the content hash used for file checksums.
const MetaChecksumAlgorithm = "checksum_algorithm"

// AddArchive registers (or re-roots) an archive.
func (c conn) AddArchive(ctx context.Context, name, root string) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO archive (name, root) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET root = excluded.root`, name, root)
	if err != nil {
		return fmt.Errorf("add archive %s: %w", name, err)
	}
	return nil
}

// AddScope inserts a scope and its state row, returning the new id. A zero
// s.ID lets the catalog assign one.
func (c conn) AddScope(ctx context.Context, s Scope) (int64, error) {
	var id any
	if s.ID != 0 {
		id = s.ID
	}
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO attempt (id, reqnum, unitname, attnum, archive_path, operator, pipeline, submit_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, s.ReqNum, s.UnitName, s.AttNum, nullable(strings.TrimRight(s.RelPath, "/")),
		nullable(s.Operator), nullable(s.Pipeline), nullable(s.SubmitTime))
	if err != nil {
		return 0, fmt.Errorf("add scope: %w", err)
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add scope: %w", err)
	}

	state := s.DataState
	if state == "" {
		state = StateActive
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO attempt_state (attempt_id, data_state, archive_state) VALUES (?, ?, ?)`,
		newID, state, nullable(s.ArchiveState))
	if err != nil {
		return 0, fmt.Errorf("add scope state: %w", err)
	}
	return newID, nil
}

// AddTag links a scope to tag.
func (c conn) AddTag(ctx context.Context, tag string, id int64) error {
	_, err := c.q.ExecContext(ctx, `INSERT OR IGNORE INTO tag (tag, attempt_id) VALUES (?, ?)`, tag, id)
	if err != nil {
		return fmt.Errorf("tag %d: %w", id, err)
	}
	return nil
}

// AddFile inserts a file row and its location in archive, returning the new id.
func (c conn) AddFile(ctx context.Context, archive string, f File) (int64, error) {
	var scopeID any
	if f.ScopeID != 0 {
		scopeID = f.ScopeID
	}
	res, err := c.q.ExecContext(ctx, `
		INSERT INTO file (attempt_id, filename, compression, filetype, filesize, checksum)
		VALUES (?, ?, ?, ?, ?, ?)`,
		scopeID, f.Filename, nullable(f.Compression), nullable(f.FileType), f.Size, nullable(f.Checksum))
	if err != nil {
		return 0, fmt.Errorf("add file %s: %w", f.Filename, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add file %s: %w", f.Filename, err)
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO file_location (file_id, archive_name, path) VALUES (?, ?, ?)`,
		id, archive, strings.TrimRight(f.Path, "/"))
	if err != nil {
		return 0, fmt.Errorf("add location of %s: %w", f.Filename, err)
	}
	return id, nil
}

// Meta returns the value stored under key, or "" when unset.
func (c conn) Meta(ctx context.Context, key string) (string, error) {
	var v string
	err := c.q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("meta %s: %w", key, err)
	}
	return v, nil
}

// SetMeta stores value under key.
func (c conn) SetMeta(ctx context.Context, key, value string) error {
	_, err := c.q.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}
