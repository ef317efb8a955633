package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bamsammich/arcmgr/internal/engine"
)

type deleteOptions struct {
	sel      selectorFlags
	fileType string
	dryRun   bool
	force    bool
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	do := &deleteOptions{}
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete JUNK scopes, or one file type, from disk and catalog",
		Long: `Delete the selected scopes from disk and from the catalog. Whole scopes are
only deleted when their data state is JUNK; with --filetype only the files of
that type are removed, whatever the state. A scope whose files are all gone
is marked PURGED, otherwise PRUNED.

Every scope is inventoried first and a report is printed before anything is
removed. Paths with fewer than three segments are never deleted.`,
		Example: `  arcmgr delete --id 123456
  arcmgr delete --tag Y6A1 --filetype raw --dry-run
  arcmgr delete --relpath OPS/red/r1/p01/qa --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDelete(cmd, opts, do)
		},
	}
	do.sel.register(cmd, true)
	f := cmd.Flags()
	f.StringVar(&do.fileType, "filetype", "", "only delete files of this type")
	f.BoolVar(&do.dryRun, "dry-run", false, "print the report and stop")
	f.BoolVar(&do.force, "force", false, "delete without asking")
	return cmd
}

func runDelete(cmd *cobra.Command, opts *rootOptions, do *deleteOptions) error {
	ctx := cmd.Context()
	res, err := opts.resolve(ctx, &do.sel, "", false)
	if err != nil {
		return err
	}
	if res.partial && do.fileType != "" {
		return &usageError{msg: "--filetype needs whole scopes, not a path inside one"}
	}

	p := newPrompter(opts.stdin, opts.stderr)
	if do.sel.tag != "" && do.fileType == "" && !do.force && !do.dryRun {
		fmt.Fprintln(opts.stderr, "WARNING: specifying a tag without a filetype will delete all data from the tag")
		answer, err := p.ask("Do you wish to continue", "yes", "no")
		if err != nil {
			return err
		}
		if answer != "yes" {
			return nil
		}
	}

	s := opts.newSession("delete", res.root)
	cfg := engine.DeleteConfig{
		Archive:   opts.archive,
		Root:      res.root,
		FileType:  do.fileType,
		Algorithm: res.algo,
		SideFiles: s.sideFiles(),
	}

	plans, planRun := s.plan(ctx, cfg, res.targets)
	report := engine.NewDeleteReport(plans)
	if err := report.Write(opts.stdout); err != nil {
		return err
	}
	if do.dryRun || len(report.Deletable) == 0 {
		if len(report.Deletable) == 0 && !opts.quiet {
			fmt.Fprintln(opts.stderr, "Nothing to delete.")
		}
		return s.finish(planRun, false)
	}

	if !do.force {
		ok, err := confirmDelete(p, report, opts)
		if err != nil {
			return err
		}
		if !ok {
			return s.finish(planRun, false)
		}
	}

	byKey := make(map[string]*engine.DeletePlan, len(report.Deletable))
	targets := make([]engine.Target, 0, len(report.Deletable))
	for _, pl := range report.Deletable {
		byKey[pl.Key] = pl
		targets = append(targets, pl.Target)
	}
	cfg.Stats = s.stats
	run := s.run(ctx, targets, func(ctx context.Context, w *engine.Worker, t engine.Target) error {
		_, err := engine.NewDeleter(cfg, w.Store, w.Emit).Execute(ctx, byKey[t.Key()])
		return err
	})
	if planRun.Err != nil {
		return s.finish(planRun, false)
	}
	return s.finish(run, false)
}

// plan assesses every target without a display attached. Plans come back in
// target order; targets that could not be planned are logged and dropped.
func (s *session) plan(ctx context.Context, cfg engine.DeleteConfig, targets []engine.Target) ([]*engine.DeletePlan, *engine.RunResult) {
	var (
		mu    sync.Mutex
		byKey = make(map[string]*engine.DeletePlan, len(targets))
	)
	run := s.coordinator(nil, nil).Run(ctx, targets, func(ctx context.Context, w *engine.Worker, t engine.Target) error {
		p, err := engine.NewDeleter(cfg, w.Store, w.Emit).Plan(ctx, t)
		if err != nil {
			return err
		}
		mu.Lock()
		byKey[t.Key()] = p
		mu.Unlock()
		return nil
	})
	for _, o := range run.Outcomes {
		if o.Err != nil {
			slog.Error("could not plan deletion", "scope", o.Target.Key(), "error", o.Err)
		}
	}

	plans := make([]*engine.DeletePlan, 0, len(byKey))
	for _, t := range targets {
		if p, ok := byKey[t.Key()]; ok {
			plans = append(plans, p)
		}
	}
	return plans, run
}

// confirmDelete asks until the user answers yes or no, showing the diff or
// the full file list on request.
func confirmDelete(p *prompter, report *engine.DeleteReport, opts *rootOptions) (bool, error) {
	for {
		answer, err := p.ask("Do you wish to continue with deletion", "yes", "no", "diff", "print")
		if err != nil {
			return false, err
		}
		switch answer {
		case "yes":
			return true, nil
		case "no":
			return false, nil
		case "diff":
			report.WriteDiff(opts.stdout)
		case "print":
			if err := report.WriteFiles(opts.stdout); err != nil {
				return false, err
			}
		}
	}
}
