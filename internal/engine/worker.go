package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/bamsammich/arcmgr/internal/catalog"
	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
)

// MaxWorkers caps the number of worker slots.
const MaxWorkers = 16

// Worker is the per-slot context handed to a WorkFunc. Store is owned by the
// slot and never shared.
type Worker struct {
	Slot  int
	Store *catalog.Store
	Emit  event.Emitter
}

// WorkFunc runs the full pipeline for one target.
type WorkFunc func(ctx context.Context, w *Worker, t Target) error

// CoordinatorConfig controls a worker pool run.
type CoordinatorConfig struct {
	Workers int

	// Open returns a fresh catalog connection for one slot.
	Open func(ctx context.Context) (*catalog.Store, error)

	// Events receives every worker message, in per-slot order. May be nil.
	Events chan<- event.Message

	SideFiles SideFiles
	Stats     *stats.Collector
}

// Outcome is the result of one target.
type Outcome struct {
	Target  Target
	Slot    int
	Err     error
	Skipped bool
}

// RunResult aggregates a run.
type RunResult struct {
	Outcomes []Outcome
	Err      error
}

// Failed counts targets that ended with an error.
func (r *RunResult) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Coordinator spreads targets round-robin over worker slots. Each slot
// processes its share strictly in order.
type Coordinator struct {
	cfg CoordinatorConfig
}

// NewCoordinator returns a coordinator for cfg.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{cfg: cfg}
}

// Slots returns how many workers a run over n targets uses.
func (c *Coordinator) Slots(n int) int {
	w := max(c.cfg.Workers, 1)
	return min(w, MaxWorkers, n)
}

// Partition deals targets round-robin into slots.
func Partition(targets []Target, slots int) [][]Target {
	parts := make([][]Target, slots)
	for i, t := range targets {
		parts[i%slots] = append(parts[i%slots], t)
	}
	return parts
}

// Run processes targets and returns once every slot has reported Complete.
// A failing or panicking target is recorded and does not stop its slot.
// Once ctx is done, slots skip their remaining targets.
func (c *Coordinator) Run(ctx context.Context, targets []Target, fn WorkFunc) *RunResult {
	res := &RunResult{}
	if len(targets) == 0 {
		return res
	}
	if c.cfg.Stats != nil {
		c.cfg.Stats.SetScopesTotal(int64(len(targets)))
	}

	n := c.Slots(len(targets))
	parts := Partition(targets, n)
	msgs := make(chan event.Message, 64*n)
	results := make([][]Outcome, n)

	var wg sync.WaitGroup
	for slot := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[slot] = c.runSlot(ctx, slot, parts[slot], fn, msgs)
		}()
	}

	for done := 0; done < n; {
		m := <-msgs
		if m.Kind == event.Complete {
			done++
		}
		c.forward(m)
	}
	wg.Wait()

	var errs *multierror.Error
	for _, slotResults := range results {
		for _, o := range slotResults {
			res.Outcomes = append(res.Outcomes, o)
			if o.Err != nil && !o.Skipped {
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", o.Target.Key(), o.Err))
			}
		}
	}
	if ctx.Err() != nil {
		errs = multierror.Append(errs, ErrInterrupted)
	}
	res.Err = errs.ErrorOrNil()
	return res
}

func (c *Coordinator) forward(m event.Message) {
	if c.cfg.Events == nil {
		return
	}
	if m.Kind == event.Progress && m.IsTick() {
		select {
		case c.cfg.Events <- m:
		default:
		}
		return
	}
	c.cfg.Events <- m
}

func (c *Coordinator) runSlot(
	ctx context.Context,
	slot int,
	part []Target,
	fn WorkFunc,
	msgs chan<- event.Message,
) []Outcome {
	emit := event.NewEmitter(msgs, slot)
	defer emit.Emit(event.Message{Kind: event.Complete})

	out := make([]Outcome, 0, len(part))
	store, err := c.cfg.Open(ctx)
	if err != nil {
		err = fmt.Errorf("open catalog: %w", err)
		for _, t := range part {
			c.record(emit.ForScope(t.Key()), t, err, nil)
			out = append(out, Outcome{Target: t, Slot: slot, Err: err})
		}
		return out
	}
	defer store.Close()

	w := &Worker{Slot: slot, Store: store, Emit: emit}
	for _, t := range part {
		if ctx.Err() != nil {
			out = append(out, Outcome{Target: t, Slot: slot, Err: ErrInterrupted, Skipped: true})
			continue
		}
		out = append(out, Outcome{Target: t, Slot: slot, Err: c.runOne(ctx, w, t, fn)})
	}
	return out
}

func (c *Coordinator) runOne(ctx context.Context, w *Worker, t Target, fn WorkFunc) (err error) {
	emit := w.Emit.ForScope(t.Key())
	emit.Emit(event.Message{Kind: event.ScopeStarted})

	var stack []byte
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
			stack = debug.Stack()
		}
		c.record(emit, t, err, stack)
	}()

	scoped := *w
	scoped.Emit = emit
	return fn(ctx, &scoped, t)
}

// record reports a finished target and writes its error side file.
func (c *Coordinator) record(emit event.Emitter, t Target, err error, stack []byte) {
	if err == nil {
		if c.cfg.Stats != nil {
			c.cfg.Stats.AddScopesCompleted(1)
		}
		emit.Emit(event.Message{Kind: event.ScopeCompleted})
		return
	}

	if c.cfg.Stats != nil {
		c.cfg.Stats.AddScopesFailed(1)
	}
	if !errors.Is(err, ErrInterrupted) {
		if _, werr := c.cfg.SideFiles.Error(t.Key(), err, stack); werr != nil {
			slog.Warn("could not write error file", "scope", t.Key(), "error", werr)
		}
	}
	emit.Emit(event.Message{Kind: event.ScopeFailed, Err: err})
}
