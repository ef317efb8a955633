package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bamsammich/arcmgr/internal/catalog"
	"github.com/bamsammich/arcmgr/internal/config"
	"github.com/bamsammich/arcmgr/internal/engine"
	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/inventory"
	"github.com/bamsammich/arcmgr/internal/scope"
	"github.com/bamsammich/arcmgr/internal/stats"
	"github.com/bamsammich/arcmgr/internal/ui"
	"github.com/bamsammich/arcmgr/internal/ui/tui"
)

// selectorFlags are the scope selection flags shared by compare, migrate
// and delete.
type selectorFlags struct {
	ids       string
	tag       string
	relPath   string
	reqNum    int64
	unitName  string
	attNum    int64
	dateRange string
	pipeline  string
	startAt   int
	endAt     int
}

func (s *selectorFlags) register(cmd *cobra.Command, withDates bool) {
	f := cmd.Flags()
	f.StringVar(&s.ids, "id", "", "scope id, or a comma-separated list of ids")
	f.StringVar(&s.tag, "tag", "", "every scope linked to TAG")
	f.StringVar(&s.relPath, "relpath", "", "scope root (or a path inside one) relative to the archive root")
	f.Int64Var(&s.reqNum, "reqnum", 0, "request number")
	f.StringVar(&s.unitName, "unitname", "", "unit name (requires --reqnum)")
	f.Int64Var(&s.attNum, "attnum", 0, "attempt number (requires --reqnum)")
	f.IntVar(&s.startAt, "start-at", 0, "first scope of the sorted selection to process (1-based)")
	f.IntVar(&s.endAt, "end-at", 0, "last scope of the sorted selection to process (1-based)")
	if withDates {
		f.StringVar(&s.dateRange, "date-range", "", "submit date YYYY-MM-DD or range YYYY-MM-DD,YYYY-MM-DD")
		f.StringVar(&s.pipeline, "pipeline", "", "restrict --date-range to one pipeline")
	}
}

func (s *selectorFlags) selector() (scope.Selector, error) {
	sel := scope.Selector{
		Tag:       s.tag,
		RelPath:   s.relPath,
		ReqNum:    s.reqNum,
		UnitName:  s.unitName,
		AttNum:    s.attNum,
		DateRange: s.dateRange,
		Pipeline:  s.pipeline,
	}
	if s.ids != "" {
		ids, err := scope.ParseIDs(s.ids)
		if err != nil {
			return scope.Selector{}, err
		}
		sel.IDs = ids
	}
	return sel, sel.Validate()
}

// resolution is what a command works on after selection.
type resolution struct {
	root    string
	algo    inventory.Algorithm
	targets []engine.Target
	partial bool
}

// resolve validates the selection, then opens the catalog once to find the
// archive root, the checksum algorithm and the targets.
func (o *rootOptions) resolve(ctx context.Context, sf *selectorFlags, algo inventory.Algorithm, byPath bool) (*resolution, error) {
	sel, err := sf.selector()
	if err != nil {
		return nil, err
	}
	if err := o.requireCatalog(); err != nil {
		return nil, err
	}

	store, err := catalog.Open(ctx, o.catalog)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	res := &resolution{algo: algo}
	res.root, err = store.ArchiveRoot(ctx, o.archive)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", o.archive, err)
	}
	if res.algo == "" {
		res.algo, err = catalogAlgorithm(ctx, store)
		if err != nil {
			return nil, err
		}
	}

	r, err := scope.Resolve(ctx, store, sel)
	if err != nil {
		return nil, err
	}
	res.partial = r.Partial

	switch {
	case r.Partial:
		res.targets = []engine.Target{{RelPath: r.RelPath}}
	case byPath:
		paths, err := scope.ResolvePaths(ctx, store, o.archive, r.IDs)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			res.targets = append(res.targets, engine.Target{RelPath: p})
		}
	default:
		for _, id := range r.IDs {
			res.targets = append(res.targets, engine.Target{ID: id})
		}
	}

	res.targets, err = scope.Slice(res.targets, sf.startAt, sf.endAt)
	if err != nil {
		return nil, err
	}
	slog.Debug("resolved selection", "selector", sel.Kind(), "targets", len(res.targets), "root", res.root)
	return res, nil
}

// catalogAlgorithm returns the checksum algorithm recorded in the catalog.
func catalogAlgorithm(ctx context.Context, store *catalog.Store) (inventory.Algorithm, error) {
	name, err := store.Meta(ctx, catalog.MetaChecksumAlgorithm)
	if err != nil {
		return "", err
	}
	if name == "" {
		return inventory.DefaultAlgorithm, nil
	}
	return inventory.ParseAlgorithm(name)
}

// cacheFlags selects the checksum cache.
type cacheFlags struct {
	path    string
	disable bool
}

func (c *cacheFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.path, "cache", "", "checksum cache file (default: $XDG_CACHE_HOME/arcmgr/checksums.db)")
	cmd.Flags().BoolVar(&c.disable, "no-cache", false, "always re-read files for checksums")
}

// open returns the checksum cache, or nil when disabled. A cache that cannot
// be opened is logged and skipped.
func (c *cacheFlags) open(cmd *cobra.Command, cfg config.Config) *inventory.Cache {
	if c.disable {
		return nil
	}
	stringDefault(cmd, "cache", &c.path, cfg.Defaults.Cache)
	path := c.path
	if path == "" {
		path = config.DefaultCachePath()
	}
	if path == "" {
		return nil
	}
	cache, err := inventory.OpenCache(path)
	if err != nil {
		slog.Warn("checksum cache disabled", "path", path, "error", err)
		return nil
	}
	return cache
}

// session runs one command's targets through the worker pool with a
// presenter attached.
type session struct {
	opts        *rootOptions
	command     string
	root        string
	runID       string
	stats       *stats.Collector
	interactive bool
}

func (o *rootOptions) newSession(command, root string) *session {
	return &session{
		opts:    o,
		command: command,
		root:    root,
		runID:   uuid.NewString(),
		stats:   stats.NewCollector(),
	}
}

func (s *session) sideFiles() engine.SideFiles {
	return engine.SideFiles{Dir: s.opts.reportDir}
}

func (s *session) coordinator(events chan<- event.Message, collector *stats.Collector) *engine.Coordinator {
	path := s.opts.catalog
	return engine.NewCoordinator(engine.CoordinatorConfig{
		Workers: s.opts.workers,
		Open: func(ctx context.Context) (*catalog.Store, error) {
			return catalog.Open(ctx, path)
		},
		Events:    events,
		SideFiles: s.sideFiles(),
		Stats:     collector,
	})
}

// presenter picks the display for a run over slots workers.
//
//nolint:ireturn // selects between presenter implementations
func (s *session) presenter(slots int) (ui.Presenter, bool) {
	o := s.opts
	isTTY := ui.IsTTY(os.Stderr.Fd())
	if o.tui && isTTY && !s.interactive && !o.quiet {
		return tui.NewPresenter(tui.Config{
			Stats:   s.stats,
			Command: s.command,
			Workers: slots,
			Root:    s.root,
			Theme:   o.cfg.Theme,
		}), true
	}
	if o.tui && !isTTY {
		slog.Warn("--tui requires a terminal, falling back to inline output")
	}
	var p ui.Presenter = ui.NewPresenter(ui.Config{
		Writer:     o.stderr,
		ErrWriter:  o.stderr,
		Stats:      s.stats,
		Root:       s.root,
		Workers:    slots,
		IsTTY:      isTTY,
		Quiet:      o.quiet,
		Verbose:    o.verbose,
		NoProgress: o.noProgress || s.interactive,
	})
	return p, false
}

// run processes targets with fn, displaying progress, and returns once every
// slot is done. Temp files left by interrupted copies are removed.
func (s *session) run(ctx context.Context, targets []engine.Target, fn engine.WorkFunc) *engine.RunResult {
	events := make(chan event.Message, 256)
	coord := s.coordinator(events, s.stats)
	presenter, fullScreen := s.presenter(coord.Slots(len(targets)))
	logger := slog.Default().With("run", s.runID, "command", s.command)
	logger.Debug("run starting", "targets", len(targets), "root", s.root)
	if s.opts.logFile != "" {
		presenter = ui.Tee(presenter, logger)
	}

	var result *engine.RunResult
	if fullScreen {
		result = runForeground(ctx, presenter, events, func(runCtx context.Context) *engine.RunResult {
			return coord.Run(runCtx, targets, fn)
		}, func(m event.Message) {
			if s.opts.logFile != "" && !m.IsTick() {
				ui.LogMessage(logger, m)
			}
		})
	} else {
		var presenterErr error
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			presenterErr = presenter.Run(events)
		}()

		result = coord.Run(ctx, targets, fn)
		close(events)
		wg.Wait()
		if presenterErr != nil {
			fmt.Fprintf(s.opts.stderr, "presenter: %v\n", presenterErr)
		}
	}

	if n := engine.CleanupTmpFiles(); n > 0 {
		slog.Warn("removed leftover temp files", "count", n)
	}
	if !s.opts.quiet {
		if summary := presenter.Summary(); summary != "" {
			fmt.Fprintln(s.opts.stderr, summary)
		}
	}
	s.writeMetrics()
	return result
}

// runForeground gives the terminal to presenter while start runs in the
// background. Quitting the presenter cancels the run at once; the remaining
// events are passed to drain until every worker has stopped.
func runForeground(
	ctx context.Context,
	presenter ui.Presenter,
	events chan event.Message,
	start func(context.Context) *engine.RunResult,
	drain func(event.Message),
) *engine.RunResult {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var result *engine.RunResult
	done := make(chan struct{})
	go func() {
		defer close(done)
		result = start(runCtx)
		close(events)
	}()

	if err := presenter.Run(events); err != nil {
		slog.Warn("presenter failed", "error", err)
	}
	cancel()
	for m := range events {
		drain(m)
	}
	<-done
	return result
}

func (s *session) writeMetrics() {
	if s.opts.metricsFile == "" {
		return
	}
	if err := stats.WriteTextfile(s.opts.metricsFile, s.command, s.stats.Snapshot()); err != nil {
		slog.Warn("failed to write metrics", "error", err)
	}
}

// finish turns a run result into the command's exit status.
func (s *session) finish(res *engine.RunResult, discrepancies bool) error {
	if res.Err != nil {
		slog.Error(s.command+" failed", "failed", res.Failed(), "error", res.Err)
	}
	if res.Err != nil || discrepancies {
		return &exitError{code: 1}
	}
	return nil
}

// errPromptClosed is returned when input ends before an answer is given.
var errPromptClosed = errors.New("no answer: input closed")

// prompter asks questions on stderr and reads answers from stdin. It is
// safe for use by several workers at once; questions never interleave.
type prompter struct {
	mu  sync.Mutex
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

// ask repeats question until the answer starts with the first letter of one
// of choices, and returns that choice.
func (p *prompter) ask(question string, choices ...string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.askLocked(question, choices...)
}

func (p *prompter) askLocked(question string, choices ...string) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s [%s]? ", question, strings.Join(choices, "/"))
		if !p.in.Scan() {
			if err := p.in.Err(); err != nil {
				return "", err
			}
			return "", errPromptClosed
		}
		answer := strings.ToLower(strings.TrimSpace(p.in.Text()))
		if answer == "" {
			continue
		}
		for _, c := range choices {
			if answer == c || answer[0] == c[0] {
				return c, nil
			}
		}
	}
}

// withLock runs fn while holding the prompt lock, so a listing printed
// before a question is not split by another worker's question.
func (p *prompter) withLock(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn()
}
