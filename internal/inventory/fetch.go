package inventory

import (
	"context"
	"errors"
	"strings"

	"github.com/bamsammich/arcmgr/internal/catalog"
)

// FetchConfig selects the catalog records of one scope or path.
type FetchConfig struct {
	Archive string

	// ScopeID takes precedence over RelPath when set.
	ScopeID int64
	RelPath string

	// FileType narrows a scope fetch to one file type.
	FileType string
}

// FetchCatalog builds the catalog-side inventory. After the main query it
// runs an explicit duplicate check so that rows claiming the same
// filename+compression elsewhere in the archive are reported.
func FetchCatalog(ctx context.Context, cat catalog.Reader, cfg FetchConfig) (*Inventory, error) {
	var (
		files []catalog.File
		err   error
	)
	switch {
	case cfg.FileType != "":
		if cfg.ScopeID == 0 {
			return nil, errors.New("a file type filter requires a scope id")
		}
		files, err = cat.FilesByScope(ctx, cfg.Archive, cfg.ScopeID, cfg.FileType)
	case cfg.ScopeID != 0:
		files, err = cat.FilesByScope(ctx, cfg.Archive, cfg.ScopeID, "")
	case cfg.RelPath != "":
		files, err = cat.FilesByPath(ctx, cfg.Archive, strings.TrimRight(cfg.RelPath, "/"))
	default:
		return nil, errors.New("fetch needs a scope id or relative path")
	}
	if err != nil {
		return nil, err
	}

	inv := New()
	seen := make(map[int64]struct{}, len(files))
	names := make(map[string]struct{})
	for _, f := range files {
		inv.Add(FromCatalog(f))
		seen[f.ID] = struct{}{}
		names[f.Filename] = struct{}{}
	}
	if len(names) == 0 {
		return inv, nil
	}

	candidates := make([]string, 0, len(names))
	for n := range names {
		candidates = append(candidates, n)
	}
	dups, err := cat.DuplicateLocations(ctx, cfg.Archive, candidates)
	if err != nil {
		return nil, err
	}
	for _, d := range dups {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		rec := FromCatalog(d)
		if _, ok := inv.Files[rec.Key()]; !ok {
			continue
		}
		seen[d.ID] = struct{}{}
		inv.Add(rec)
	}
	return inv, nil
}
