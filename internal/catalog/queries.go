package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const fileColumns = `f.id, coalesce(f.attempt_id, 0), f.filename, coalesce(f.compression, ''),
    coalesce(f.filetype, ''), f.filesize, coalesce(f.checksum, ''), fl.path`

// inChunk bounds the number of bound parameters per IN (...) list.
const inChunk = 500

// ArchiveRoot returns the filesystem root of the named archive.
func (c conn) ArchiveRoot(ctx context.Context, archive string) (string, error) {
	var root string
	err := c.q.QueryRowContext(ctx, `SELECT root FROM archive WHERE name = ?`, archive).Scan(&root)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("archive %q: %w", archive, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("archive %q: %w", archive, err)
	}
	return root, nil
}

// ScopeInfo returns a scope's path, states and owner.
func (c conn) ScopeInfo(ctx context.Context, id int64) (Scope, error) {
	var s Scope
	err := c.q.QueryRowContext(ctx, `
		SELECT a.id, a.reqnum, a.unitname, a.attnum, coalesce(a.archive_path, ''),
		       coalesce(a.operator, ''), coalesce(a.pipeline, ''), coalesce(a.submit_time, ''),
		       coalesce(s.data_state, 'ACTIVE'), coalesce(s.archive_state, '')
		FROM attempt a LEFT JOIN attempt_state s ON s.attempt_id = a.id
		WHERE a.id = ?`, id,
	).Scan(&s.ID, &s.ReqNum, &s.UnitName, &s.AttNum, &s.RelPath,
		&s.Operator, &s.Pipeline, &s.SubmitTime, &s.DataState, &s.ArchiveState)
	if errors.Is(err, sql.ErrNoRows) {
		return Scope{}, fmt.Errorf("scope %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Scope{}, fmt.Errorf("scope %d: %w", id, err)
	}
	s.RelPath = strings.TrimRight(s.RelPath, "/")
	return s, nil
}

// ScopesByTag returns the ids linked to tag, ascending.
func (c conn) ScopesByTag(ctx context.Context, tag string) ([]int64, error) {
	return c.ids(ctx, `SELECT attempt_id FROM tag WHERE tag = ? ORDER BY attempt_id`, tag)
}

// ScopesByTriplet returns the ids for a request, optionally narrowed by unit
// name and attempt number.
func (c conn) ScopesByTriplet(ctx context.Context, reqnum int64, unitname string, attnum int64) ([]int64, error) {
	query := `SELECT id FROM attempt WHERE reqnum = ?`
	args := []any{reqnum}
	if unitname != "" {
		query += ` AND unitname = ?`
		args = append(args, unitname)
	}
	if attnum != 0 {
		query += ` AND attnum = ?`
		args = append(args, attnum)
	}
	return c.ids(ctx, query+` ORDER BY id`, args...)
}

// ScopesByPath returns the ids whose recorded relative path is exactly relPath.
func (c conn) ScopesByPath(ctx context.Context, relPath string) ([]int64, error) {
	relPath = strings.TrimRight(relPath, "/")
	return c.ids(ctx, `
		SELECT id FROM attempt
		WHERE archive_path = ? OR archive_path = ?
		ORDER BY id`, relPath, relPath+"/")
}

// ScopesByDateRange returns ids submitted between from and to (YYYY-MM-DD,
// inclusive), optionally restricted to one pipeline.
func (c conn) ScopesByDateRange(ctx context.Context, from, to, pipeline string) ([]int64, error) {
	query := `SELECT id FROM attempt WHERE date(submit_time) BETWEEN ? AND ?`
	args := []any{from, to}
	if pipeline != "" {
		query += ` AND pipeline = ?`
		args = append(args, pipeline)
	}
	return c.ids(ctx, query+` ORDER BY id`, args...)
}

// ScopePaths returns the distinct file directories owned by ids in archive.
func (c conn) ScopePaths(ctx context.Context, archive string, ids []int64) ([]string, error) {
	seen := make(map[string]struct{})
	for start := 0; start < len(ids); start += inChunk {
		chunk := ids[start:min(start+inChunk, len(ids))]
		args := []any{archive}
		for _, id := range chunk {
			args = append(args, id)
		}
		rows, err := c.q.QueryContext(ctx, `
			SELECT DISTINCT fl.path FROM file f
			JOIN file_location fl ON fl.file_id = f.id
			WHERE fl.archive_name = ? AND f.attempt_id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("scope paths: %w", err)
		}
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scope paths: %w", err)
			}
			seen[strings.TrimRight(p, "/")] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("scope paths: %w", err)
		}
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	return paths, nil
}

// FilesByScope returns every file of scope id located in archive. A non-empty
// fileType narrows the result to that type.
func (c conn) FilesByScope(ctx context.Context, archive string, id int64, fileType string) ([]File, error) {
	query := `SELECT ` + fileColumns + ` FROM file f
		JOIN file_location fl ON fl.file_id = f.id
		WHERE fl.archive_name = ? AND f.attempt_id = ?`
	args := []any{archive, id}
	if fileType != "" {
		query += ` AND f.filetype = ?`
		args = append(args, fileType)
	}
	return c.files(ctx, query+` ORDER BY f.id`, args...)
}

// FilesByPath returns every file in archive located at or below relPath.
func (c conn) FilesByPath(ctx context.Context, archive, relPath string) ([]File, error) {
	relPath = strings.TrimRight(relPath, "/")
	return c.files(ctx, `SELECT `+fileColumns+` FROM file f
		JOIN file_location fl ON fl.file_id = f.id
		WHERE fl.archive_name = ? AND (fl.path = ? OR fl.path LIKE ? ESCAPE '\')
		ORDER BY f.id`, archive, relPath, likePrefix(relPath))
}

// DuplicateLocations returns every row in archive, among the given
// filenames, that shares its filename and compression with another row.
func (c conn) DuplicateLocations(ctx context.Context, archive string, filenames []string) ([]File, error) {
	var out []File
	for start := 0; start < len(filenames); start += inChunk {
		chunk := filenames[start:min(start+inChunk, len(filenames))]
		args := []any{archive}
		for _, name := range chunk {
			args = append(args, name)
		}
		files, err := c.files(ctx, `SELECT DISTINCT `+fileColumns+` FROM file f
			JOIN file_location fl ON fl.file_id = f.id
			JOIN file g ON g.filename = f.filename
			    AND coalesce(g.compression, 'x') = coalesce(f.compression, 'x')
			    AND g.id <> f.id
			JOIN file_location gl ON gl.file_id = g.id AND gl.archive_name = fl.archive_name
			WHERE fl.archive_name = ? AND f.filename IN (`+placeholders(len(chunk))+`)
			ORDER BY f.id`, args...)
		if err != nil {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		out = append(out, files...)
	}
	return out, nil
}

// CountFiles returns how many of scope id's files are still located in archive.
func (c conn) CountFiles(ctx context.Context, archive string, id int64) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `
		SELECT count(*) FROM file f JOIN file_location fl ON fl.file_id = f.id
		WHERE fl.archive_name = ? AND f.attempt_id = ?`, archive, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count files for %d: %w", id, err)
	}
	return n, nil
}

// UpdateFilePath moves a file's archive location from oldPath to newPath.
// An empty compression matches rows whose compression is NULL.
func (c conn) UpdateFilePath(ctx context.Context, archive, filename, compression, oldPath, newPath string) (int64, error) {
	compClause := `f.compression = ?`
	args := []any{newPath, archive, oldPath, filename}
	if compression == "" {
		compClause = `f.compression IS NULL`
	} else {
		args = append(args, compression)
	}

	res, err := c.q.ExecContext(ctx, `
		UPDATE file_location SET path = ?
		WHERE archive_name = ? AND path = ? AND file_id IN (
		    SELECT f.id FROM file f WHERE f.filename = ? AND `+compClause+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("update path of %s: %w", filename+compression, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update path of %s: %w", filename+compression, err)
	}
	return n, nil
}

// UpdateScopePath records a scope's new relative path.
func (c conn) UpdateScopePath(ctx context.Context, id int64, relPath string) error {
	if _, err := c.q.ExecContext(ctx, `UPDATE attempt SET archive_path = ? WHERE id = ?`, relPath, id); err != nil {
		return fmt.Errorf("update path of scope %d: %w", id, err)
	}
	return nil
}

// UpdateArchiveState records a scope's archive lifecycle state.
func (c conn) UpdateArchiveState(ctx context.Context, id int64, state string) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO attempt_state (attempt_id, archive_state) VALUES (?, ?)
		ON CONFLICT(attempt_id) DO UPDATE SET archive_state = excluded.archive_state`, id, state)
	if err != nil {
		return fmt.Errorf("set archive state of %d: %w", id, err)
	}
	return nil
}

// SetDataState records a scope's data lifecycle state (ACTIVE, JUNK, ...).
func (c conn) SetDataState(ctx context.Context, id int64, state string) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO attempt_state (attempt_id, data_state) VALUES (?, ?)
		ON CONFLICT(attempt_id) DO UPDATE SET data_state = excluded.data_state`, id, state)
	if err != nil {
		return fmt.Errorf("set data state of %d: %w", id, err)
	}
	return nil
}

// DeleteFilesByID removes the archive locations of the given file ids.
func (c conn) DeleteFilesByID(ctx context.Context, archive string, ids []int64) error {
	for start := 0; start < len(ids); start += inChunk {
		chunk := ids[start:min(start+inChunk, len(ids))]
		args := []any{archive}
		for _, id := range chunk {
			args = append(args, id)
		}
		_, err := c.q.ExecContext(ctx, `DELETE FROM file_location
			WHERE archive_name = ? AND file_id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return fmt.Errorf("delete files by id: %w", err)
		}
	}
	return nil
}

// DeleteFilesUnder removes every archive location at or below relPath.
func (c conn) DeleteFilesUnder(ctx context.Context, archive, relPath string) error {
	relPath = strings.TrimRight(relPath, "/")
	_, err := c.q.ExecContext(ctx, `
		DELETE FROM file_location
		WHERE archive_name = ? AND (path = ? OR path LIKE ? ESCAPE '\')`,
		archive, relPath, likePrefix(relPath))
	if err != nil {
		return fmt.Errorf("delete files under %s: %w", relPath, err)
	}
	return nil
}

func (c conn) ids(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c conn) files(ctx context.Context, query string, args ...any) ([]File, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.ScopeID, &f.Filename, &f.Compression,
			&f.FileType, &f.Size, &f.Checksum, &f.Path); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.Path = strings.TrimRight(f.Path, "/")
		files = append(files, f)
	}
	return files, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// likePrefix returns a LIKE pattern matching strict descendants of relPath.
func likePrefix(relPath string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(relPath) + "/%"
}
