package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

const (
	sparklineWidth   = 20
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
	speedHistory     = 60
)

// slotState is the latest known state of one worker slot.
type slotState struct {
	scope     string
	phase     string
	text      string
	iteration int
	total     int
	busy      bool
	done      bool
}

// hudPresenter gives every worker slot its own line that is redrawn in place,
// with notices and failures scrolling above it.
type hudPresenter struct {
	w     io.Writer
	stats stats.ReadTicker
	slots int
	root  string

	state        []slotState
	speeds       []float64
	hudDrawn     bool
	hudLineCount int
	lastHUDDraw  time.Time
}

func (p *hudPresenter) Run(msgs <-chan event.Message) error {
	p.state = make([]slotState, p.slots)

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handle(m)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			p.speeds = append(p.speeds, p.stats.RollingSpeed(1))
			if len(p.speeds) > speedHistory {
				p.speeds = p.speeds[1:]
			}
		}
	}
}

func (p *hudPresenter) slot(i int) *slotState {
	for i >= len(p.state) {
		p.state = append(p.state, slotState{})
	}
	return &p.state[i]
}

func (p *hudPresenter) handle(m event.Message) {
	s := p.slot(m.Slot)
	switch m.Kind {
	case event.ScopeStarted:
		*s = slotState{scope: m.Scope, busy: true}
	case event.PhaseChanged:
		s.phase = m.Text
		s.iteration, s.total = 0, m.Total
	case event.Progress:
		s.iteration, s.total = m.Iteration, m.Total
	case event.Notice:
		s.text = m.Text
		p.feed(fmt.Sprintf("%s  %s", p.label(m), m.Text))
	case event.FileFailed:
		p.feed(fmt.Sprintf("✗  %s  %s  %v", p.label(m), p.styledPath(m.Path), m.Err))
	case event.ScopeCompleted:
		s.busy = false
		p.feed(fmt.Sprintf("✓  %s", p.label(m)))
	case event.ScopeFailed:
		s.busy = false
		p.feed(fmt.Sprintf("✗  %s  %v", p.label(m), m.Err))
	case event.Complete:
		s.busy, s.done = false, true
	}
}

func (p *hudPresenter) label(m event.Message) string {
	return fmt.Sprintf("%s[%d]%s %s", ansiDim, m.Slot, ansiReset, m.Scope)
}

// feed prints a line above the HUD.
func (p *hudPresenter) feed(line string) {
	p.clearHUD()
	fmt.Fprintln(p.w, line)
	p.drawHUD()
}

func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	p.clearHUD()
	lines := 0
	busy := 0
	for i, s := range p.state {
		if s.busy {
			busy++
		}
		fmt.Fprintln(p.w, p.slotLine(i, s))
		lines++
	}

	snap := p.stats.Snapshot()
	fmt.Fprintf(p.w, "%s  %s  %s   scopes %s/%s   %s\n",
		WorkerIndicator(busy, len(p.state)),
		Sparkline(p.speeds, sparklineWidth),
		FormatRate(p.stats.RollingSpeed(10)),
		FormatCount(snap.ScopesCompleted+snap.ScopesFailed), FormatCount(snap.ScopesTotal),
		FormatDuration(snap.Elapsed))
	lines++

	p.hudDrawn = true
	p.hudLineCount = lines
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) slotLine(i int, s slotState) string {
	switch {
	case s.done:
		return fmt.Sprintf("%s[%d] done%s", ansiDim, i, ansiReset)
	case s.scope == "":
		return fmt.Sprintf("%s[%d] idle%s", ansiDim, i, ansiReset)
	}
	var pct float64
	if s.total > 0 {
		pct = float64(s.iteration) / float64(s.total)
	}
	line := fmt.Sprintf("[%d] %s%-10s%s %-16s %s %s/%s",
		i, ansiBold, s.scope, ansiReset, s.phase, ProgressBar(pct, progressBarWidth),
		FormatCount(int64(s.iteration)), FormatCount(int64(s.total)))
	if s.text != "" {
		line += "  " + ansiDim + truncText(s.text, 40) + ansiReset
	}
	return line
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", p.hudLineCount)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// styledPath dims the directory part of a root-relative path.
func (p *hudPresenter) styledPath(path string) string {
	path = StripRoot(p.root, path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s/%s%s", ansiDim, dir, ansiReset, base)
}

// truncText shortens s to at most maxLen runes.
func truncText(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// StripRoot removes a root prefix from a path, returning a clean relative path.
func StripRoot(root, path string) string {
	if root == "" {
		return path
	}
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	if strings.HasPrefix(path, root) {
		return path[len(root):]
	}
	return path
}
