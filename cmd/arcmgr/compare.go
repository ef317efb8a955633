package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bamsammich/arcmgr/internal/compare"
	"github.com/bamsammich/arcmgr/internal/engine"
	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/inventory"
)

type compareOptions struct {
	sel      selectorFlags
	cache    cacheFlags
	algo     algoFlag
	checksum bool
	byPath   bool
	diff     bool
	debug    bool
	format   string
}

// compared is one target's comparison, kept for ordered output.
type compared struct {
	relPath string
	result  *compare.Result
}

func newCompareCmd(opts *rootOptions) *cobra.Command {
	co := &compareOptions{}
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare catalog records against the files on disk",
		Long: `Compare every selected scope's catalog records with the files found under its
path on disk. A file is equal when it is in both with the same path and size
(and checksum, with --checksum). Exits 1 when any scope has a discrepancy.`,
		Example: `  arcmgr compare --id 123456
  arcmgr compare --tag Y6A1 --checksum --diff
  arcmgr compare --date-range 2024-01-01,2024-01-31 --pipeline multiepoch --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompare(cmd, opts, co)
		},
	}
	co.sel.register(cmd, true)
	co.cache.register(cmd)
	cmd.Flags().BoolVar(&co.checksum, "checksum", false, "also compare checksums")
	cmd.Flags().Var(&co.algo, "algorithm", "checksum algorithm: md5, blake3 or xxhash (default: the catalog's)")
	cmd.Flags().BoolVar(&co.byPath, "by-path", false, "compare each distinct file directory of the selection separately")
	cmd.Flags().BoolVar(&co.diff, "diff", false, "list every discrepancy")
	cmd.Flags().BoolVar(&co.debug, "debug-list", false, "list every file side by side")
	cmd.Flags().StringVar(&co.format, "format", "text", "output format: text, json or yaml")
	return cmd
}

func runCompare(cmd *cobra.Command, opts *rootOptions, co *compareOptions) error {
	ctx := cmd.Context()
	d := opts.cfg.Defaults
	if !cmd.Flags().Changed("checksum") && d.Checksum != nil {
		co.checksum = *d.Checksum
	}
	if !cmd.Flags().Changed("algorithm") && d.Algorithm != nil {
		if err := co.algo.Set(*d.Algorithm); err != nil {
			return &usageError{msg: "config defaults.algorithm: " + err.Error()}
		}
	}
	switch co.format {
	case "text", "json", "yaml":
	default:
		return &usageError{msg: fmt.Sprintf("unknown --format %q (want text, json or yaml)", co.format)}
	}

	res, err := opts.resolve(ctx, &co.sel, co.algo.algo, co.byPath)
	if err != nil {
		return err
	}

	var cache *inventory.Cache
	if co.checksum {
		cache = co.cache.open(cmd, opts.cfg)
		if cache != nil {
			defer cache.Close()
		}
	}

	s := opts.newSession("compare", res.root)
	var (
		mu      sync.Mutex
		results = make(map[string]compared, len(res.targets))
	)
	fn := func(ctx context.Context, w *engine.Worker, t engine.Target) error {
		c, err := compareTarget(ctx, w, t, compareConfig{
			archive:  opts.archive,
			root:     res.root,
			checksum: co.checksum,
			algo:     res.algo,
			cache:    cache,
			onFile:   func() { s.stats.AddFilesScanned(1) },
		})
		if err != nil {
			return err
		}
		if !c.result.Clean() {
			s.stats.AddMismatches(int64(discrepancies(c.result)))
			w.Emit.Notice(fmt.Sprintf("%s: %d discrepancies", c.relPath, discrepancies(c.result)))
		} else if opts.verbose {
			w.Emit.Notice(fmt.Sprintf("%s: clean", c.relPath))
		}
		mu.Lock()
		results[t.Key()] = c
		mu.Unlock()
		return nil
	}
	run := s.run(ctx, res.targets, fn)

	dirty := false
	for _, c := range results {
		if !c.result.Clean() {
			dirty = true
		}
	}
	if err := writeComparisons(opts.stdout, co, opts.archive, res.targets, results); err != nil {
		return err
	}
	return s.finish(run, dirty)
}

type compareConfig struct {
	archive  string
	root     string
	checksum bool
	algo     inventory.Algorithm
	cache    *inventory.Cache
	onFile   func()
}

// compareTarget inventories one target on disk and in the catalog and
// compares them.
func compareTarget(ctx context.Context, w *engine.Worker, t engine.Target, cfg compareConfig) (compared, error) {
	w.Emit.Emit(event.Message{Kind: event.PhaseChanged, Text: "GATHERING"})

	relPath := t.RelPath
	fetch := inventory.FetchConfig{Archive: cfg.archive, ScopeID: t.ID}
	if t.ID != 0 {
		info, err := w.Store.ScopeInfo(ctx, t.ID)
		if err != nil {
			return compared{}, err
		}
		relPath = info.RelPath
	} else {
		fetch.RelPath = relPath
	}
	if relPath == "" {
		return compared{}, fmt.Errorf("scope %s has no archive path", t.Key())
	}

	disk, cat, err := inventory.Collect(ctx, w.Store, inventory.ScanConfig{
		Root:      cfg.root,
		RelPath:   relPath,
		Checksum:  cfg.checksum,
		Algorithm: cfg.algo,
		Cache:     cfg.cache,
		OnFile: func(inventory.FileRecord) {
			if cfg.onFile != nil {
				cfg.onFile()
			}
		},
	}, fetch)
	if err != nil {
		return compared{}, err
	}

	w.Emit.Emit(event.Message{Kind: event.PhaseChanged, Text: "COMPARING", Total: disk.Len() + cat.Len()})
	result := compare.Compare(disk, cat, compare.Options{
		Checksum:  cfg.checksum,
		Root:      cfg.root,
		Algorithm: cfg.algo,
		Cache:     cfg.cache,
	})
	return compared{relPath: relPath, result: result}, nil
}

func discrepancies(r *compare.Result) int {
	return len(r.CatalogOnly) + len(r.DiskOnly) + len(r.PathMismatch) +
		len(r.SizeMismatch) + len(r.ChecksumMismatch)
}

// writeComparisons prints results in selection order. Targets that failed
// have no result and are skipped; their errors are reported by the run.
func writeComparisons(
	w io.Writer,
	co *compareOptions,
	archive string,
	targets []engine.Target,
	results map[string]compared,
) error {
	if co.format != "text" {
		reports := make([]compare.Report, 0, len(results))
		for _, t := range targets {
			if c, ok := results[t.Key()]; ok {
				reports = append(reports, c.result.Report(t.Key(), c.relPath, archive))
			}
		}
		return compare.Encode(w, co.format, reports)
	}

	for _, t := range targets {
		c, ok := results[t.Key()]
		if !ok {
			continue
		}
		c.result.Summary(w, c.relPath, archive)
		if co.diff && !c.result.Clean() {
			c.result.WriteDiff(w)
		}
		if co.debug {
			c.result.WriteAll(w)
		}
	}
	return nil
}
