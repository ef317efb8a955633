package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
)

// plainPresenter prints one line per meaningful message to w and periodic
// progress to errW. Used when output is not a terminal.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   stats.ReadTicker
	root    string
	verbose bool
}

func (p *plainPresenter) Run(msgs <-chan event.Message) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			p.handle(m)
		case <-ticker.C:
			p.stats.Tick()
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handle(m event.Message) {
	prefix := fmt.Sprintf("[%d] %s", m.Slot, m.Scope)
	switch m.Kind {
	case event.ScopeStarted:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  started\n", prefix)
		}
	case event.PhaseChanged:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", prefix, m.Text)
		}
	case event.Notice:
		fmt.Fprintf(p.w, "%s  %s\n", prefix, m.Text)
	case event.FileFailed:
		fmt.Fprintf(p.w, "%s  %s  %v\n", prefix, StripRoot(p.root, m.Path), m.Err)
	case event.ScopeCompleted:
		fmt.Fprintf(p.w, "%s  done\n", prefix)
	case event.ScopeFailed:
		fmt.Fprintf(p.w, "%s  FAILED: %v\n", prefix, m.Err)
	case event.Progress, event.Complete:
		// counters only
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	fmt.Fprintf(p.errW, "progress: %s/%s scopes %s files %s %s\n",
		FormatCount(snap.ScopesCompleted+snap.ScopesFailed), FormatCount(snap.ScopesTotal),
		FormatCount(snap.FilesCopied+snap.FilesDeleted),
		FormatBytes(snap.BytesCopied+snap.BytesDeleted),
		FormatRate(p.stats.RollingSpeed(10)),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}
