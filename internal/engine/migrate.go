package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/time/rate"

	"github.com/bamsammich/arcmgr/internal/catalog"
	"github.com/bamsammich/arcmgr/internal/compare"
	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/inventory"
	"github.com/bamsammich/arcmgr/internal/stats"
)

// Phase is a migration state.
type Phase int

const (
	PhaseGathering Phase = iota
	PhasePermissionCheck
	PhaseCopying
	PhaseDBUpdate
	PhaseVerify
	PhaseCleanup
	PhaseDone
	PhaseRolledBack
)

var phaseNames = [...]string{
	PhaseGathering:       "GATHERING",
	PhasePermissionCheck: "PERMISSION-CHECK",
	PhaseCopying:         "COPYING",
	PhaseDBUpdate:        "DB-UPDATE",
	PhaseVerify:          "VERIFY",
	PhaseCleanup:         "CLEANUP",
	PhaseDone:            "DONE",
	PhaseRolledBack:      "ROLLED-BACK",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "UNKNOWN"
}

// PlanEntry maps one file from its old location to its new one.
type PlanEntry struct {
	Filename    string
	Compression string
	OldRelPath  string
	NewRelPath  string
	SrcPath     string
	DstPath     string
	Size        int64
}

// Plan is the list of files copied so far. It drives both the catalog update
// and rollback.
type Plan struct {
	Entries []PlanEntry
}

// Compressed returns the entries with a compression suffix.
func (p *Plan) Compressed() []PlanEntry {
	var out []PlanEntry
	for _, e := range p.Entries {
		if e.Compression != "" {
			out = append(out, e)
		}
	}
	return out
}

// Uncompressed returns the entries matched in the catalog by a NULL
// compression.
func (p *Plan) Uncompressed() []PlanEntry {
	var out []PlanEntry
	for _, e := range p.Entries {
		if e.Compression == "" {
			out = append(out, e)
		}
	}
	return out
}

// Bytes sums the entries' sizes.
func (p *Plan) Bytes() int64 {
	var n int64
	for _, e := range p.Entries {
		n += e.Size
	}
	return n
}

// Target is the unit a migration or deletion works on: a scope id, or for
// partial selections a relative path that is not a scope root.
type Target struct {
	ID      int64
	RelPath string
}

// Key names the target in messages and side files.
func (t Target) Key() string {
	if t.ID != 0 {
		return strconv.FormatInt(t.ID, 10)
	}
	return SideFileKey(t.RelPath)
}

// MigrateConfig holds the settings shared by every scope of a migrate run.
type MigrateConfig struct {
	Archive string
	Root    string

	// Current is replaced by Destination in each relative path. When empty,
	// Destination is prefixed to the whole path.
	Current     string
	Destination string

	Algorithm inventory.Algorithm
	Cache     *inventory.Cache
	Limiter   *rate.Limiter
	Stats     *stats.Collector
	SideFiles SideFiles
	DryRun    bool

	// Confirm, when set, is asked after a clean verification. Declining
	// rolls the scope back without error.
	Confirm func(ctx context.Context, scope string, out *MigrateOutcome) (bool, error)
}

// MigrateOutcome describes how one scope's migration ended.
type MigrateOutcome struct {
	Scope       string
	OldRelPath  string
	NewRelPath  string
	Phase       Phase
	Planned     []PlanEntry
	Plan        Plan
	Verify      *compare.Result
	Undeletable []string
	UndelFile   string
	Declined    bool
	DryRun      bool
}

// Migrator moves scopes to a new relative path in one archive.
type Migrator struct {
	cfg   MigrateConfig
	store *catalog.Store
	emit  event.Emitter

	copyFile func(ctx context.Context, src, dst string) (int64, error)
}

// NewMigrator binds a migrator to one worker's catalog connection.
func NewMigrator(cfg MigrateConfig, store *catalog.Store, emit event.Emitter) *Migrator {
	if cfg.Algorithm == "" {
		cfg.Algorithm = inventory.DefaultAlgorithm
	}
	c := &Copier{Limiter: cfg.Limiter}
	return &Migrator{cfg: cfg, store: store, emit: emit, copyFile: c.Copy}
}

// RewritePath maps an old relative path to its destination.
func (m *Migrator) RewritePath(old string) string {
	if m.cfg.Current == "" {
		return path.Join(m.cfg.Destination, old)
	}
	return strings.Replace(old, m.cfg.Current, m.cfg.Destination, 1)
}

// migration is the state of one scope's move.
type migration struct {
	*Migrator
	target  Target
	emit    event.Emitter
	out     *MigrateOutcome
	pending []PlanEntry

	// dirs holds this migration's claims on destination directories.
	dirs map[string]struct{}

	// repointed is set once the DB-UPDATE transaction commits. Rollback then
	// needs a compensating transaction to restore the old paths.
	repointed bool

	// uninterruptible is set once CLEANUP starts deleting originals.
	uninterruptible bool
}

// Migrate runs the state machine for one target. The catalog update commits
// at the end of DB-UPDATE so no write lock is held across VERIFY or the
// confirmation prompt. Once CLEANUP starts the move is never rolled back.
func (m *Migrator) Migrate(ctx context.Context, t Target) (*MigrateOutcome, error) {
	r := &migration{
		Migrator: m,
		target:   t,
		emit:     m.emit.ForScope(t.Key()),
		out:      &MigrateOutcome{Scope: t.Key(), DryRun: m.cfg.DryRun},
		dirs:     make(map[string]struct{}),
	}
	defer globalDirRegistry.release(r.dirs)
	return r.out, r.run(ctx)
}

func (r *migration) run(ctx context.Context) error {
	if err := r.gather(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return r.rollback(ErrInterrupted)
	}

	r.phase(PhasePermissionCheck, len(r.pending))
	srcs := make([]string, len(r.pending))
	for i, e := range r.pending {
		srcs[i] = e.SrcPath
	}
	if bad := CheckAccess(srcs); len(bad) > 0 {
		perr := &PermissionError{Scope: r.out.Scope, Paths: bad}
		if p, err := r.cfg.SideFiles.BadPerm(r.out.Scope, bad); err == nil {
			perr.SideFile = p
		}
		return r.rollback(perr)
	}

	if r.cfg.DryRun {
		r.out.Phase = PhaseDone
		r.emit.Notice(fmt.Sprintf("dry run: %d files (%s) %s -> %s",
			len(r.pending), stats.FormatBytes(sumSizes(r.pending)), r.out.OldRelPath, r.out.NewRelPath))
		return nil
	}

	steps := []struct {
		phase Phase
		fn    func(context.Context) error
	}{
		{PhaseCopying, r.copyAll},
		{PhaseDBUpdate, r.updateCatalog},
		{PhaseVerify, r.verify},
	}
	for _, s := range steps {
		if ctx.Err() != nil {
			return r.rollback(ErrInterrupted)
		}
		r.phase(s.phase, len(r.pending))
		if err := s.fn(ctx); err != nil {
			return r.rollback(err)
		}
	}

	if r.cfg.Confirm != nil {
		ok, err := r.cfg.Confirm(ctx, r.out.Scope, r.out)
		if err != nil {
			return r.rollback(err)
		}
		if !ok {
			r.out.Declined = true
			r.emit.Notice("move declined")
			return r.rollback(nil)
		}
	}

	if ctx.Err() != nil {
		return r.rollback(ErrInterrupted)
	}
	return r.cleanup(ctx)
}

func (r *migration) phase(p Phase, total int) {
	r.out.Phase = p
	r.emit.Emit(event.Message{Kind: event.PhaseChanged, Text: p.String(), Total: total})
}

// gather resolves the old and new locations of every catalog file.
// Cancellation is observed at the boundary that follows.
func (r *migration) gather(ctx context.Context) error {
	r.phase(PhaseGathering, 0)
	ctx = context.WithoutCancel(ctx)

	var (
		files []catalog.File
		err   error
	)
	if r.target.ID != 0 {
		info, err := r.store.ScopeInfo(ctx, r.target.ID)
		if err != nil {
			return err
		}
		r.out.OldRelPath = info.RelPath
		files, err = r.store.FilesByScope(ctx, r.cfg.Archive, r.target.ID, "")
		if err != nil {
			return err
		}
	} else {
		r.out.OldRelPath = strings.TrimRight(r.target.RelPath, "/")
		files, err = r.store.FilesByPath(ctx, r.cfg.Archive, r.out.OldRelPath)
		if err != nil {
			return err
		}
	}

	r.out.NewRelPath = r.RewritePath(r.out.OldRelPath)
	if r.out.NewRelPath == r.out.OldRelPath {
		return fmt.Errorf("scope %s: new path equals old path %q", r.out.Scope, r.out.OldRelPath)
	}
	if len(files) == 0 {
		return fmt.Errorf("scope %s: no catalog files under %s", r.out.Scope, r.out.OldRelPath)
	}

	for _, f := range files {
		newRel := r.RewritePath(f.Path)
		name := f.Filename + f.Compression
		r.pending = append(r.pending, PlanEntry{
			Filename:    f.Filename,
			Compression: f.Compression,
			OldRelPath:  f.Path,
			NewRelPath:  newRel,
			SrcPath:     filepath.Join(r.cfg.Root, f.Path, name),
			DstPath:     filepath.Join(r.cfg.Root, newRel, name),
			Size:        f.Size,
		})
	}
	r.out.Planned = r.pending

	if r.cfg.DryRun {
		return nil
	}
	return r.mkdirAll(filepath.Join(r.cfg.Root, r.out.NewRelPath))
}

// copyAll copies every pending file. Cancellation is not observed mid-phase.
func (r *migration) copyAll(ctx context.Context) error {
	cctx := context.WithoutCancel(ctx)
	for i, e := range r.pending {
		if err := r.mkdirAll(filepath.Dir(e.DstPath)); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(e.DstPath), err)
		}
		n, err := r.copyFile(cctx, e.SrcPath, e.DstPath)
		if err != nil {
			if r.cfg.Stats != nil {
				r.cfg.Stats.AddFilesFailed(1)
			}
			r.emit.Emit(event.Message{Kind: event.FileFailed, Path: e.SrcPath, Err: err})
			return err
		}
		r.out.Plan.Entries = append(r.out.Plan.Entries, e)
		if r.cfg.Stats != nil {
			r.cfg.Stats.AddFilesCopied(1)
			r.cfg.Stats.AddBytesCopied(n)
		}
		r.emit.Tick(i+1, len(r.pending))
	}
	return nil
}

// updateCatalog repoints every copied row and the scope path in one short
// transaction.
func (r *migration) updateCatalog(ctx context.Context) error {
	dbctx := context.WithoutCancel(ctx)
	entries := append(r.out.Plan.Compressed(), r.out.Plan.Uncompressed()...)
	err := r.repoint(dbctx, entries, r.out.NewRelPath, func(e PlanEntry) (string, string) {
		return e.OldRelPath, e.NewRelPath
	})
	if err != nil {
		return err
	}
	r.repointed = true
	return nil
}

// restoreCatalog points the rows moved by updateCatalog back at their old
// locations.
func (r *migration) restoreCatalog(ctx context.Context) error {
	entries := append(r.out.Plan.Compressed(), r.out.Plan.Uncompressed()...)
	err := r.repoint(ctx, entries, r.out.OldRelPath, func(e PlanEntry) (string, string) {
		return e.NewRelPath, e.OldRelPath
	})
	if err != nil {
		return fmt.Errorf("restore catalog paths: %w", err)
	}
	r.repointed = false
	return nil
}

func (r *migration) repoint(ctx context.Context, entries []PlanEntry, scopePath string, paths func(PlanEntry) (string, string)) (err error) {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	for i, e := range entries {
		from, to := paths(e)
		n, err := tx.UpdateFilePath(ctx, r.cfg.Archive, e.Filename, e.Compression, from, to)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("update %s: no catalog row at %s", e.Filename+e.Compression, from)
		}
		r.emit.Tick(i+1, len(entries))
	}
	if r.target.ID != 0 {
		if err := tx.UpdateScopePath(ctx, r.target.ID, scopePath); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// verify re-inventories the new location and compares with checksums on.
func (r *migration) verify(ctx context.Context) error {
	dbctx := context.WithoutCancel(ctx)
	fetch := inventory.FetchConfig{Archive: r.cfg.Archive, ScopeID: r.target.ID}
	if r.target.ID == 0 {
		fetch.RelPath = r.out.NewRelPath
	}
	disk, cat, err := inventory.Collect(dbctx, r.store, inventory.ScanConfig{
		Root:      r.cfg.Root,
		RelPath:   r.out.NewRelPath,
		Checksum:  true,
		Algorithm: r.cfg.Algorithm,
		Cache:     r.cfg.Cache,
	}, fetch)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	res := compare.Compare(disk, cat, compare.Options{
		Checksum:  true,
		Root:      r.cfg.Root,
		Algorithm: r.cfg.Algorithm,
		Cache:     r.cfg.Cache,
	})
	r.out.Verify = res
	if r.cfg.Stats != nil {
		r.cfg.Stats.AddFilesVerified(int64(len(res.Equal)))
	}
	if !res.Clean() {
		if r.cfg.Stats != nil {
			r.cfg.Stats.AddMismatches(int64(len(res.CatalogOnly) + len(res.DiskOnly) +
				len(res.PathMismatch) + len(res.SizeMismatch) + len(res.ChecksumMismatch)))
		}
		return &VerifyError{Scope: r.out.Scope, Result: res}
	}
	return nil
}

// cleanup removes the originals.
func (r *migration) cleanup(ctx context.Context) error {
	r.phase(PhaseCleanup, len(r.out.Plan.Entries))
	r.uninterruptible = true

	for i, e := range r.out.Plan.Entries {
		if err := os.Remove(e.SrcPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			r.out.Undeletable = append(r.out.Undeletable, e.SrcPath)
			r.emit.Emit(event.Message{Kind: event.FileFailed, Path: e.SrcPath, Err: err})
		}
		r.emit.Tick(i+1, len(r.out.Plan.Entries))
	}
	if len(r.out.Undeletable) > 0 {
		p, err := r.cfg.SideFiles.Undeletable(r.out.Scope, r.out.Undeletable)
		if err != nil {
			return err
		}
		r.out.UndelFile = p
		r.emit.Notice(fmt.Sprintf("%d originals could not be deleted, see %s", len(r.out.Undeletable), p))
	}

	if err := PruneEmptyDirs(r.cfg.Root, r.out.OldRelPath); err != nil {
		r.emit.Notice(fmt.Sprintf("prune %s: %v", r.out.OldRelPath, err))
	}
	if ctx.Err() != nil {
		r.emit.Notice("interrupt ignored: cleanup in progress")
	}

	r.phase(PhaseDone, len(r.out.Plan.Entries))
	return nil
}

// rollback restores the catalog paths and removes every copy. Directories
// left empty are removed when the migration releases them. cause is returned
// unchanged unless a rollback step failed.
func (r *migration) rollback(cause error) error {
	if r.uninterruptible {
		return cause
	}
	var errs *multierror.Error

	if r.repointed {
		if err := r.restoreCatalog(context.Background()); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	// Copies the catalog still points at are kept.
	for i := len(r.out.Plan.Entries) - 1; i >= 0 && !r.repointed; i-- {
		dst := r.out.Plan.Entries[i].DstPath
		if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierror.Append(errs, fmt.Errorf("remove copy %s: %w", dst, err))
		}
	}
	if r.cfg.Stats != nil {
		r.cfg.Stats.AddRollbacks(1)
	}
	r.phase(PhaseRolledBack, len(r.out.Plan.Entries))

	if errs != nil {
		if cause == nil {
			cause = errors.New("move declined")
		}
		return &RollbackError{Cause: cause, Failures: errs}
	}
	return cause
}

func (r *migration) mkdirAll(dir string) error {
	return globalDirRegistry.mkdirAll(dir, r.dirs)
}

func sumSizes(entries []PlanEntry) int64 {
	p := Plan{Entries: entries}
	return p.Bytes()
}
