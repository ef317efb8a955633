package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bamsammich/arcmgr/internal/catalog"
	"github.com/bamsammich/arcmgr/internal/compare"
	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/inventory"
	"github.com/bamsammich/arcmgr/internal/stats"
)

// MinDeleteDepth is the fewest relative path segments a deletion may target.
const MinDeleteDepth = 3

// DeleteConfig holds the settings shared by every scope of a delete run.
type DeleteConfig struct {
	Archive  string
	Root     string
	FileType string

	Algorithm inventory.Algorithm
	Cache     *inventory.Cache
	Stats     *stats.Collector
	SideFiles SideFiles
}

// DeletePlan is the read-only assessment of one target.
type DeletePlan struct {
	Target    Target
	Key       string
	RelPath   string
	DataState string
	Operator  string

	// Partial is set when the target path is not a scope root.
	Partial   bool
	Deletable bool
	ByFile    bool

	// Skipped explains why nothing will happen, when non-empty.
	Skipped string

	Disk       *inventory.Inventory
	Catalog    *inventory.Inventory
	Comparison *compare.Result
}

// DiskSize is the size of the files found on disk.
func (p *DeletePlan) DiskSize() int64 {
	if p.Disk == nil {
		return 0
	}
	return p.Disk.TotalSize()
}

// DeleteOutcome is what Execute did.
type DeleteOutcome struct {
	ArchiveState string
	Deleted      int
	Bytes        int64
	Undeletable  []string
	UndelFile    string
}

// Deleter removes scopes (or parts of them) from disk and catalog.
type Deleter struct {
	cfg   DeleteConfig
	store *catalog.Store
	emit  event.Emitter
}

// NewDeleter binds a deleter to one worker's catalog connection.
func NewDeleter(cfg DeleteConfig, store *catalog.Store, emit event.Emitter) *Deleter {
	if cfg.Algorithm == "" {
		cfg.Algorithm = inventory.DefaultAlgorithm
	}
	return &Deleter{cfg: cfg, store: store, emit: emit}
}

// CheckDepth rejects relative paths too close to the archive root.
func CheckDepth(relPath string) error {
	if filepath.IsAbs(relPath) {
		return fmt.Errorf("refusing to delete absolute path %s", relPath)
	}
	clean := filepath.Clean(relPath)
	if clean == "." || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("refusing to delete %q: outside the archive", relPath)
	}
	if n := len(strings.Split(clean, string(filepath.Separator))); n < MinDeleteDepth {
		return fmt.Errorf("refusing to delete %s: need at least %d path segments, got %d", relPath, MinDeleteDepth, n)
	}
	return nil
}

// Plan inventories and classifies t without changing anything.
func (d *Deleter) Plan(ctx context.Context, t Target) (*DeletePlan, error) {
	p := &DeletePlan{Target: t, Key: t.Key(), Partial: t.ID == 0}
	emit := d.emit.ForScope(p.Key)
	emit.Emit(event.Message{Kind: event.PhaseChanged, Text: "PLANNING"})

	if t.ID != 0 {
		info, err := d.store.ScopeInfo(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		p.RelPath = info.RelPath
		p.DataState = info.DataState
		p.Operator = info.Operator
	} else {
		p.RelPath = strings.TrimRight(t.RelPath, "/")
	}
	if err := CheckDepth(p.RelPath); err != nil {
		return nil, err
	}

	if _, err := os.Stat(filepath.Join(d.cfg.Root, p.RelPath)); errors.Is(err, fs.ErrNotExist) {
		p.Skipped = "path does not exist on disk"
		emit.Notice(fmt.Sprintf("skipping %s: %s", p.RelPath, p.Skipped))
		return p, nil
	}

	fetch := inventory.FetchConfig{Archive: d.cfg.Archive, ScopeID: t.ID, FileType: d.cfg.FileType}
	if t.ID == 0 {
		fetch.RelPath = p.RelPath
		if d.cfg.FileType != "" {
			return nil, errors.New("a file type filter requires a scope id")
		}
	}
	disk, cat, err := inventory.Collect(ctx, d.store, inventory.ScanConfig{
		Root:      d.cfg.Root,
		RelPath:   p.RelPath,
		Algorithm: d.cfg.Algorithm,
		Cache:     d.cfg.Cache,
		OnFile:    func(inventory.FileRecord) { d.addScanned() },
	}, fetch)
	if err != nil {
		return nil, err
	}

	if d.cfg.FileType != "" {
		for k := range disk.Files {
			if _, ok := cat.Files[k]; !ok {
				delete(disk.Files, k)
				delete(disk.Duplicates, k)
			}
		}
	}
	p.Disk, p.Catalog = disk, cat
	p.Comparison = compare.Compare(disk, cat, compare.Options{
		Root:      d.cfg.Root,
		Algorithm: d.cfg.Algorithm,
		Cache:     d.cfg.Cache,
	})

	p.ByFile = d.cfg.FileType != "" || p.Partial
	p.Deletable = p.DataState == catalog.StateJunk || p.ByFile
	return p, nil
}

func (d *Deleter) addScanned() {
	if d.cfg.Stats != nil {
		d.cfg.Stats.AddFilesScanned(1)
	}
}

// Execute deletes a deletable plan and records the scope's new archive
// state. Undeletable files are listed in a side file, never fatal.
func (d *Deleter) Execute(ctx context.Context, p *DeletePlan) (*DeleteOutcome, error) {
	if p.Skipped != "" || !p.Deletable {
		return nil, fmt.Errorf("scope %s is not deletable", p.Key)
	}
	emit := d.emit.ForScope(p.Key)
	if ctx.Err() != nil {
		return nil, ErrInterrupted
	}

	emit.Emit(event.Message{Kind: event.PhaseChanged, Text: PhasePermissionCheck.String()})
	var paths []string
	if p.ByFile {
		for _, k := range p.Catalog.Keys() {
			paths = append(paths, d.catalogPath(p.Catalog.Files[k]))
		}
	} else {
		for _, k := range p.Disk.Keys() {
			paths = append(paths, p.Disk.Files[k].FullPath)
		}
	}
	var existing []string
	for _, path := range paths {
		if _, err := os.Lstat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if bad := CheckAccess(existing); len(bad) > 0 {
		perr := &PermissionError{Scope: p.Key, Paths: bad}
		if sf, err := d.cfg.SideFiles.BadPerm(p.Key, bad); err == nil {
			perr.SideFile = sf
		}
		return nil, perr
	}
	if ctx.Err() != nil {
		return nil, ErrInterrupted
	}

	emit.Emit(event.Message{Kind: event.PhaseChanged, Text: "DELETING", Total: len(paths)})
	dbctx := context.WithoutCancel(ctx)
	var (
		out *DeleteOutcome
		err error
	)
	if p.ByFile {
		out, err = d.deleteFiles(dbctx, p, emit)
	} else {
		out, err = d.deleteTree(dbctx, p, emit)
	}
	if err != nil {
		return out, err
	}

	if len(out.Undeletable) > 0 {
		sf, err := d.cfg.SideFiles.Undeletable(p.Key, out.Undeletable)
		if err != nil {
			return out, err
		}
		out.UndelFile = sf
		emit.Notice(fmt.Sprintf("%d files could not be deleted, see %s", len(out.Undeletable), sf))
	}
	if p.Target.ID != 0 {
		if err := d.store.UpdateArchiveState(dbctx, p.Target.ID, out.ArchiveState); err != nil {
			return out, err
		}
	}
	if d.cfg.Stats != nil {
		d.cfg.Stats.AddFilesDeleted(int64(out.Deleted))
		d.cfg.Stats.AddBytesDeleted(out.Bytes)
	}
	emit.Notice(fmt.Sprintf("%s: %d files (%s) deleted, state %s",
		p.RelPath, out.Deleted, stats.FormatBytes(out.Bytes), out.ArchiveState))
	return out, nil
}

func (d *Deleter) catalogPath(r inventory.FileRecord) string {
	return filepath.Join(d.cfg.Root, r.RelPath, r.Name())
}

// deleteFiles removes each catalog file individually and drops the rows of
// the ones that are gone.
func (d *Deleter) deleteFiles(ctx context.Context, p *DeletePlan, emit event.Emitter) (*DeleteOutcome, error) {
	out := &DeleteOutcome{}
	keys := p.Catalog.Keys()
	var gone []int64
	for i, k := range keys {
		r := p.Catalog.Files[k]
		path := d.catalogPath(r)
		err := os.Remove(path)
		switch {
		case err == nil:
			out.Deleted++
			out.Bytes += r.Size
			gone = append(gone, r.ID)
		case errors.Is(err, fs.ErrNotExist):
			gone = append(gone, r.ID)
		default:
			out.Undeletable = append(out.Undeletable, path)
			emit.Emit(event.Message{Kind: event.FileFailed, Path: path, Err: err})
		}
		emit.Tick(i+1, len(keys))
	}

	if err := d.store.DeleteFilesByID(ctx, d.cfg.Archive, gone); err != nil {
		return out, err
	}
	if p.Target.ID == 0 {
		out.ArchiveState = catalog.StatePruned
		return out, nil
	}
	n, err := d.store.CountFiles(ctx, d.cfg.Archive, p.Target.ID)
	if err != nil {
		return out, err
	}
	out.ArchiveState = catalog.StatePurged
	if n > 0 {
		out.ArchiveState = catalog.StatePruned
	}
	return out, nil
}

// deleteTree removes the whole relative path, then reconciles whatever
// survived against the catalog. Only catalog rows whose own file survived are
// kept; a surviving disk-only file does not keep the scope PRUNED.
func (d *Deleter) deleteTree(ctx context.Context, p *DeletePlan, emit event.Emitter) (*DeleteOutcome, error) {
	out := &DeleteOutcome{}
	dir := filepath.Join(d.cfg.Root, p.RelPath)
	if err := os.RemoveAll(dir); err != nil {
		emit.Notice(fmt.Sprintf("remove %s: %v", p.RelPath, err))
	}

	survivors := make(map[string]struct{})
	err := filepath.WalkDir(dir, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !de.IsDir() {
			survivors[path] = struct{}{}
			out.Undeletable = append(out.Undeletable, path)
		}
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("walk %s: %w", dir, err)
	}
	slices.Sort(out.Undeletable)

	for _, r := range allRecords(p.Disk, func(r inventory.FileRecord) string { return r.FullPath }) {
		if _, ok := survivors[r.FullPath]; !ok {
			out.Deleted++
			out.Bytes += r.Size
		}
	}

	if len(survivors) == 0 {
		out.ArchiveState = catalog.StatePurged
		return out, d.store.DeleteFilesUnder(ctx, d.cfg.Archive, p.RelPath)
	}

	var gone []int64
	kept := 0
	for _, r := range allRecords(p.Catalog, func(r inventory.FileRecord) string { return strconv.FormatInt(r.ID, 10) }) {
		if !under(r.RelPath, p.RelPath) {
			continue
		}
		if _, ok := survivors[d.catalogPath(r)]; ok {
			kept++
			continue
		}
		gone = append(gone, r.ID)
	}
	out.ArchiveState = catalog.StatePurged
	if kept > 0 {
		out.ArchiveState = catalog.StatePruned
	}
	return out, d.store.DeleteFilesByID(ctx, d.cfg.Archive, gone)
}

// allRecords lists every record of inv, duplicates included, once per id.
func allRecords(inv *inventory.Inventory, id func(inventory.FileRecord) string) []inventory.FileRecord {
	seen := make(map[string]struct{})
	var out []inventory.FileRecord
	add := func(r inventory.FileRecord) {
		if _, ok := seen[id(r)]; ok {
			return
		}
		seen[id(r)] = struct{}{}
		out = append(out, r)
	}
	for _, k := range inv.Keys() {
		add(inv.Files[k])
		for _, r := range inv.Duplicates[k] {
			add(r)
		}
	}
	return out
}

// under reports whether relPath is dir or below it.
func under(relPath, dir string) bool {
	relPath = strings.TrimRight(relPath, "/")
	return relPath == dir || strings.HasPrefix(relPath, dir+"/")
}
