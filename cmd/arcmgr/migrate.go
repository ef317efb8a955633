package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/bamsammich/arcmgr/internal/engine"
)

type migrateOptions struct {
	sel     selectorFlags
	cache   cacheFlags
	algo    algoFlag
	dest    string
	current string
	bwLimit string
	dryRun  bool
	force   bool
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	mo := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move scopes to a new relative path",
		Long: `Move every file of the selected scopes to a new relative path inside the same
archive. Files are copied, the catalog is updated in a transaction, and the
copies are re-compared with checksums before the originals are removed. Any
failure before cleanup rolls the scope back to where it was.

With --current the first occurrence of that string in each path is replaced
by --dest; without it --dest is prefixed to the whole path.`,
		Example: `  arcmgr migrate --id 123456 --dest MIGRATED
  arcmgr migrate --tag Y6A1 --current OPS --dest OPS_OLD --force
  arcmgr migrate --reqnum 42 --dest NEW --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, opts, mo)
		},
	}
	mo.sel.register(cmd, false)
	mo.cache.register(cmd)
	f := cmd.Flags()
	f.StringVar(&mo.dest, "dest", "", "destination path, or the replacement for --current (required)")
	f.StringVar(&mo.current, "current", "", "part of each path to replace with --dest")
	f.StringVar(&mo.bwLimit, "bwlimit", "", "bandwidth limit for copies, e.g. 100MB (per second)")
	f.Var(&mo.algo, "algorithm", "checksum algorithm: md5, blake3 or xxhash (default: the catalog's)")
	f.BoolVar(&mo.dryRun, "dry-run", false, "report what would move without changing anything")
	f.BoolVar(&mo.force, "force", false, "remove originals without asking")
	return cmd
}

func runMigrate(cmd *cobra.Command, opts *rootOptions, mo *migrateOptions) error {
	ctx := cmd.Context()
	if mo.dest == "" {
		return &usageError{msg: "--dest is required"}
	}
	if strings.HasPrefix(mo.dest, "/") {
		return &usageError{msg: "--dest must be relative to the archive root"}
	}

	d := opts.cfg.Defaults
	stringDefault(cmd, "bwlimit", &mo.bwLimit, d.BWLimit)
	if !cmd.Flags().Changed("algorithm") && d.Algorithm != nil {
		if err := mo.algo.Set(*d.Algorithm); err != nil {
			return &usageError{msg: "config defaults.algorithm: " + err.Error()}
		}
	}
	var limiter *rate.Limiter
	if mo.bwLimit != "" {
		bps, err := humanize.ParseBytes(mo.bwLimit)
		if err != nil {
			return &usageError{msg: fmt.Sprintf("invalid --bwlimit %q: %v", mo.bwLimit, err)}
		}
		limiter = engine.NewBWLimiter(int64(bps))
	}

	res, err := opts.resolve(ctx, &mo.sel, mo.algo.algo, false)
	if err != nil {
		return err
	}
	if res.partial {
		return &usageError{msg: fmt.Sprintf("%s is not a scope root; migrate moves whole scopes", res.targets[0].RelPath)}
	}

	cache := mo.cache.open(cmd, opts.cfg)
	if cache != nil {
		defer cache.Close()
	}

	s := opts.newSession("migrate", res.root)
	cfg := engine.MigrateConfig{
		Archive:     opts.archive,
		Root:        res.root,
		Current:     mo.current,
		Destination: mo.dest,
		Algorithm:   res.algo,
		Cache:       cache,
		Limiter:     limiter,
		Stats:       s.stats,
		SideFiles:   s.sideFiles(),
		DryRun:      mo.dryRun,
	}
	if !mo.force && !mo.dryRun {
		s.interactive = true
		cfg.Confirm = confirmCleanup(newPrompter(opts.stdin, opts.stderr))
	}

	run := s.run(ctx, res.targets, func(ctx context.Context, w *engine.Worker, t engine.Target) error {
		_, err := engine.NewMigrator(cfg, w.Store, w.Emit).Migrate(ctx, t)
		var verr *engine.VerifyError
		if errors.As(err, &verr) {
			noticeDiff(w, verr)
		}
		return err
	})
	return s.finish(run, false)
}

// confirmCleanup lists the originals a verified move is about to remove and
// asks before they go.
func confirmCleanup(p *prompter) func(context.Context, string, *engine.MigrateOutcome) (bool, error) {
	return func(_ context.Context, scope string, out *engine.MigrateOutcome) (bool, error) {
		var answer string
		err := p.withLock(func() error {
			fmt.Fprintf(p.out, "Scope %s: %s -> %s\n", scope, out.OldRelPath, out.NewRelPath)
			for _, e := range out.Plan.Entries {
				fmt.Fprintf(p.out, "  %s\n", e.SrcPath)
			}
			var err error
			answer, err = p.askLocked("Delete the above files", "y", "n")
			return err
		})
		if err != nil {
			return false, err
		}
		return answer == "y", nil
	}
}

// noticeDiff reports every discrepancy of a failed verification.
func noticeDiff(w *engine.Worker, verr *engine.VerifyError) {
	var buf bytes.Buffer
	verr.Result.WriteDiff(&buf)
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if line != "" {
			w.Emit.Notice(line)
		}
	}
}
