package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bamsammich/arcmgr/internal/catalog"
	"github.com/bamsammich/arcmgr/internal/config"
	"github.com/bamsammich/arcmgr/internal/inventory"
	"github.com/bamsammich/arcmgr/internal/scope"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Create and populate the catalog",
	}
	cmd.AddCommand(newCatalogInitCmd(opts))
	cmd.AddCommand(newCatalogRegisterCmd(opts))
	cmd.AddCommand(newCatalogStateCmd(opts))
	cmd.AddCommand(newCatalogShowCmd(opts))
	return cmd
}

func (o *rootOptions) openCatalog(ctx context.Context) (*catalog.Store, error) {
	if err := o.requireCatalog(); err != nil {
		return nil, err
	}
	return catalog.Open(ctx, o.catalog)
}

func newCatalogInitCmd(opts *rootOptions) *cobra.Command {
	var (
		root string
		algo algoFlag
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Register the archive and its root directory",
		Example: `  arcmgr --catalog cat.db --archive desar catalog init --root /archive
  arcmgr catalog init --root /archive --algorithm md5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if root == "" {
				return &usageError{msg: "--root is required"}
			}
			abs, err := filepath.Abs(config.ExpandHome(root))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := opts.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			existing, err := store.Meta(ctx, catalog.MetaChecksumAlgorithm)
			if err != nil {
				return err
			}
			want := algo.algo
			switch {
			case want == "" && existing == "":
				want = inventory.DefaultAlgorithm
			case want == "":
				want = inventory.Algorithm(existing)
			case existing != "" && existing != string(want):
				return fmt.Errorf("catalog already uses %s checksums, not %s", existing, want)
			}

			if err := store.AddArchive(ctx, opts.archive, abs); err != nil {
				return err
			}
			if err := store.SetMeta(ctx, catalog.MetaChecksumAlgorithm, string(want)); err != nil {
				return err
			}
			if !opts.quiet {
				fmt.Fprintf(opts.stdout, "archive %s rooted at %s (%s checksums)\n", opts.archive, abs, want)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "archive root directory (required)")
	cmd.Flags().Var(&algo, "algorithm", "checksum algorithm: md5, blake3 or xxhash")
	return cmd
}

type registerOptions struct {
	fileType   string
	reqNum     int64
	unitName   string
	attNum     int64
	operator   string
	pipeline   string
	tag        string
	state      string
	submitTime string
}

func newCatalogRegisterCmd(opts *rootOptions) *cobra.Command {
	ro := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register RELPATH",
		Short: "Record every file under RELPATH as a new scope",
		Long: `Scan RELPATH below the archive root and record it as a new scope owning every
file found there, with sizes and checksums. Files whose type has a content
handler are validated first and ingested afterwards.`,
		Example: `  arcmgr catalog register OPS/red/r1/p01 --filetype raw --reqnum 42 --unitname D001 --attnum 1
  arcmgr catalog register OPS/red/r2/p01 --filetype raw --tag Y6A1 --state JUNK`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd.Context(), opts, ro, strings.TrimRight(args[0], "/"))
		},
	}
	f := cmd.Flags()
	f.StringVar(&ro.fileType, "filetype", "", "file type of every registered file (required)")
	f.Int64Var(&ro.reqNum, "reqnum", 0, "request number")
	f.StringVar(&ro.unitName, "unitname", "", "unit name")
	f.Int64Var(&ro.attNum, "attnum", 0, "attempt number")
	f.StringVar(&ro.operator, "operator", "", "operator recorded for the scope")
	f.StringVar(&ro.pipeline, "pipeline", "", "pipeline recorded for the scope")
	f.StringVar(&ro.tag, "tag", "", "tag to link the scope to")
	f.StringVar(&ro.state, "state", catalog.StateActive, "data state: ACTIVE or JUNK")
	f.StringVar(&ro.submitTime, "submit-time", "", "submit date YYYY-MM-DD")
	return cmd
}

func runRegister(ctx context.Context, opts *rootOptions, ro *registerOptions, relPath string) error {
	if ro.fileType == "" {
		return &usageError{msg: "--filetype is required"}
	}
	if filepath.IsAbs(relPath) || relPath == "" {
		return &usageError{msg: "RELPATH must be relative to the archive root"}
	}
	state := strings.ToUpper(ro.state)
	if state != catalog.StateActive && state != catalog.StateJunk {
		return &usageError{msg: fmt.Sprintf("--state must be %s or %s", catalog.StateActive, catalog.StateJunk)}
	}

	store, err := opts.openCatalog(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	root, err := store.ArchiveRoot(ctx, opts.archive)
	if err != nil {
		return fmt.Errorf("archive %s: %w", opts.archive, err)
	}
	algo, err := catalogAlgorithm(ctx, store)
	if err != nil {
		return err
	}

	disk, err := inventory.ScanDisk(ctx, inventory.ScanConfig{
		Root:      root,
		RelPath:   relPath,
		Checksum:  true,
		Algorithm: algo,
	})
	if err != nil {
		return err
	}
	if disk.Len() == 0 {
		return fmt.Errorf("no files under %s", relPath)
	}
	if len(disk.Duplicates) > 0 {
		dups := make([]string, 0, len(disk.Duplicates))
		for k := range disk.Duplicates {
			dups = append(dups, k)
		}
		sort.Strings(dups)
		return fmt.Errorf("%s holds the same file name more than once: %s", relPath, strings.Join(dups, ", "))
	}

	handler := inventory.Handler(ro.fileType)
	paths := make([]string, 0, disk.Len())
	for _, k := range disk.Keys() {
		paths = append(paths, disk.Files[k].FullPath)
	}
	valid, err := handler.CheckValid(ctx, paths)
	if err != nil {
		return err
	}
	var invalid []string
	for _, p := range paths {
		if !valid[p] {
			invalid = append(invalid, p)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid %s files: %s", ro.fileType, strings.Join(invalid, ", "))
	}

	id, err := registerScope(ctx, store, opts.archive, ro, state, relPath, disk)
	if err != nil {
		return err
	}

	ingested, err := handler.HasContentsIngested(ctx, paths)
	if err != nil {
		return err
	}
	var pending []string
	for _, p := range paths {
		if !ingested[p] {
			pending = append(pending, p)
		}
	}
	if len(pending) > 0 {
		if err := handler.IngestContents(ctx, pending); err != nil {
			return fmt.Errorf("scope %d registered, but ingesting contents failed: %w", id, err)
		}
	}

	if !opts.quiet {
		fmt.Fprintf(opts.stdout, "scope %d: %d files (%s) under %s\n",
			id, disk.Len(), humanize.IBytes(uint64(disk.TotalSize())), relPath)
	}
	return nil
}

// registerScope writes the scope, its files and its tag in one transaction.
func registerScope(
	ctx context.Context,
	store *catalog.Store,
	archive string,
	ro *registerOptions,
	state, relPath string,
	disk *inventory.Inventory,
) (_ int64, err error) {
	tx, err := store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	id, err := tx.AddScope(ctx, catalog.Scope{
		ReqNum:     ro.reqNum,
		UnitName:   ro.unitName,
		AttNum:     ro.attNum,
		RelPath:    relPath,
		Operator:   ro.operator,
		Pipeline:   ro.pipeline,
		SubmitTime: ro.submitTime,
		DataState:  state,
	})
	if err != nil {
		return 0, err
	}
	for _, k := range disk.Keys() {
		r := disk.Files[k]
		_, err = tx.AddFile(ctx, archive, catalog.File{
			ScopeID:     id,
			Filename:    r.Filename,
			Compression: r.Compression,
			FileType:    ro.fileType,
			Size:        r.Size,
			Checksum:    r.Checksum,
			Path:        r.RelPath,
		})
		if err != nil {
			return 0, err
		}
	}
	if ro.tag != "" {
		if err := tx.AddTag(ctx, ro.tag, id); err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func newCatalogStateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "state ID ACTIVE|JUNK",
		Short:   "Set a scope's data state",
		Example: `  arcmgr catalog state 123456 JUNK`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := scope.ParseIDs(args[0])
			if err != nil {
				return err
			}
			state := strings.ToUpper(args[1])
			if state != catalog.StateActive && state != catalog.StateJunk {
				return &usageError{msg: fmt.Sprintf("state must be %s or %s", catalog.StateActive, catalog.StateJunk)}
			}
			ctx := cmd.Context()
			store, err := opts.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			for _, id := range ids {
				if _, err := store.ScopeInfo(ctx, id); err != nil {
					return err
				}
				if err := store.SetDataState(ctx, id, state); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCatalogShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "show ID",
		Short:   "Print a scope and its files",
		Example: `  arcmgr catalog show 123456`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := scope.ParseIDs(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := opts.openCatalog(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			tw := tabwriter.NewWriter(opts.stdout, 0, 0, 2, ' ', 0)
			for _, id := range ids {
				if err := showScope(ctx, tw, store, opts.archive, id); err != nil {
					return err
				}
			}
			return tw.Flush()
		},
	}
}

func showScope(ctx context.Context, tw *tabwriter.Writer, store *catalog.Store, archive string, id int64) error {
	info, err := store.ScopeInfo(ctx, id)
	if err != nil {
		return err
	}
	files, err := store.FilesByScope(ctx, archive, id, "")
	if err != nil {
		return err
	}
	archiveState := info.ArchiveState
	if archiveState == "" {
		archiveState = "-"
	}
	fmt.Fprintf(tw, "scope %d\t%s\n", info.ID, info.RelPath)
	fmt.Fprintf(tw, "  triplet\t%d %s %d\n", info.ReqNum, info.UnitName, info.AttNum)
	fmt.Fprintf(tw, "  state\t%s / %s\n", info.DataState, archiveState)
	if info.Operator != "" {
		fmt.Fprintf(tw, "  operator\t%s\n", info.Operator)
	}
	for _, f := range files {
		fmt.Fprintf(tw, "  %s%s\t%s\t%s\t%s\n", f.Filename, f.Compression, f.FileType,
			humanize.IBytes(uint64(f.Size)), f.Path)
	}
	return nil
}
