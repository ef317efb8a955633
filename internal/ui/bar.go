package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
)

// barPresenter shows a single progress bar for one-worker runs. The bar
// tracks the current phase of the current scope.
type barPresenter struct {
	w     io.Writer
	stats stats.ReadTicker
	bar   *progressbar.ProgressBar
	scope string
	phase string
}

func newBarPresenter(w io.Writer, s stats.ReadTicker) *barPresenter {
	return &barPresenter{w: w, stats: s}
}

func (p *barPresenter) newBar(total int) {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
	p.bar = progressbar.NewOptions(max(total, 1),
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(fmt.Sprintf("%s %s", p.scope, p.phase)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *barPresenter) Run(msgs <-chan event.Message) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				if p.bar != nil {
					_ = p.bar.Finish()
				}
				return nil
			}
			p.handle(m)
		case <-ticker.C:
			p.stats.Tick()
		}
	}
}

func (p *barPresenter) handle(m event.Message) {
	switch m.Kind {
	case event.ScopeStarted:
		p.scope, p.phase = m.Scope, ""
	case event.PhaseChanged:
		p.phase = m.Text
		p.newBar(m.Total)
	case event.Progress:
		if p.bar == nil {
			p.newBar(m.Total)
		}
		if m.Total > 0 && int64(m.Total) != p.bar.GetMax64() {
			p.bar.ChangeMax(m.Total)
		}
		_ = p.bar.Set(m.Iteration)
	case event.Notice:
		p.println(fmt.Sprintf("%s  %s", m.Scope, m.Text))
	case event.FileFailed:
		p.println(fmt.Sprintf("✗ %s  %s  %v", m.Scope, m.Path, m.Err))
	case event.ScopeCompleted:
		p.println(fmt.Sprintf("✓ %s", m.Scope))
	case event.ScopeFailed:
		p.println(fmt.Sprintf("✗ %s  %v", m.Scope, m.Err))
	case event.Complete:
	}
}

func (p *barPresenter) println(line string) {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
	fmt.Fprintln(p.w, line)
	if p.bar != nil {
		_ = p.bar.RenderBlank()
	}
}

func (p *barPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
