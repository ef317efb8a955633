package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/ui"
)

// slotEntry is what one worker slot is doing right now.
type slotEntry struct {
	scope     string
	phase     string
	iteration int
	total     int
	started   time.Time
}

// resultEntry is one line of the scrolling history.
type resultEntry struct {
	scope  string
	slot   int
	text   string
	failed bool
	done   bool
}

type errorEntry struct {
	scope string
	path  string
	err   string
	time  time.Time
}

type feedView struct {
	active       map[int]*slotEntry // keyed by slot
	results      []resultEntry      // unbounded history
	errors       []errorEntry       // never evicted
	root         string
	scrollOffset int  // viewport offset into results
	autoScroll   bool // follow new entries
}

func newFeedView(root string) feedView {
	return feedView{
		active:     make(map[int]*slotEntry),
		root:       root,
		autoScroll: true,
	}
}

func errText(err error) string {
	if err == nil {
		return "error"
	}
	return err.Error()
}

func (f *feedView) handleMessage(m event.Message) {
	switch m.Kind {
	case event.ScopeStarted:
		f.active[m.Slot] = &slotEntry{scope: m.Scope, started: m.Timestamp}

	case event.PhaseChanged:
		if e, ok := f.active[m.Slot]; ok {
			e.phase = m.Text
			e.iteration, e.total = 0, m.Total
		}

	case event.Progress:
		if e, ok := f.active[m.Slot]; ok {
			e.iteration, e.total = m.Iteration, m.Total
		}

	case event.Notice:
		f.results = append(f.results, resultEntry{scope: m.Scope, slot: m.Slot, text: m.Text})

	case event.FileFailed:
		f.errors = append(f.errors, errorEntry{scope: m.Scope, path: m.Path, err: errText(m.Err), time: m.Timestamp})

	case event.ScopeCompleted:
		delete(f.active, m.Slot)
		f.results = append(f.results, resultEntry{scope: m.Scope, slot: m.Slot, done: true})

	case event.ScopeFailed:
		delete(f.active, m.Slot)
		msg := errText(m.Err)
		f.results = append(f.results, resultEntry{scope: m.Scope, slot: m.Slot, text: msg, failed: true})
		f.errors = append(f.errors, errorEntry{scope: m.Scope, err: msg, time: m.Timestamp})

	case event.Complete:
		delete(f.active, m.Slot)
	}
}

// scrollDown moves the viewport down one line and disables autoScroll.
func (f *feedView) scrollDown() {
	f.autoScroll = false
	f.scrollOffset++
}

// scrollUp moves the viewport up one line and disables autoScroll.
func (f *feedView) scrollUp() {
	f.autoScroll = false
	if f.scrollOffset > 0 {
		f.scrollOffset--
	}
}

func (f *feedView) scrollToTop() {
	f.autoScroll = false
	f.scrollOffset = 0
}

// scrollToBottom re-enables autoScroll.
func (f *feedView) scrollToBottom() {
	f.autoScroll = true
}

func (f *feedView) view(width, height int, errorsOnly bool) string {
	width = max(width, 20)

	activeCount := min(len(f.active), max(height/3, 1))
	errCount := len(f.errors)
	if !errorsOnly {
		errCount = min(errCount, 5)
	}

	dividers := 0
	if activeCount > 0 {
		dividers++
	}
	if errCount > 0 {
		dividers++
	}
	if len(f.results) > 0 && !errorsOnly {
		dividers++
	}

	resultsHeight := max(height-activeCount-errCount-dividers, 1)
	maxOffset := max(len(f.results)-resultsHeight, 0)
	if f.autoScroll || f.scrollOffset > maxOffset {
		f.scrollOffset = maxOffset
	}

	var b strings.Builder
	if lines := f.renderActive(width, activeCount); lines != "" {
		b.WriteString(styleDivider.Render("─ working"))
		b.WriteByte('\n')
		b.WriteString(lines)
	}
	if !errorsOnly {
		if lines := f.renderResults(width, resultsHeight); lines != "" {
			b.WriteString(styleDivider.Render(fmt.Sprintf("─ scopes (%d)", len(f.results))))
			b.WriteByte('\n')
			b.WriteString(lines)
		}
	}
	if lines := f.renderErrors(width, errCount); lines != "" {
		b.WriteString(styleDivider.Render(fmt.Sprintf("─ errors (%d)", len(f.errors))))
		b.WriteByte('\n')
		b.WriteString(lines)
	}
	return b.String()
}

func (f *feedView) renderActive(width, maxLines int) string {
	if len(f.active) == 0 {
		return ""
	}
	slots := make([]int, 0, len(f.active))
	for s := range f.active {
		slots = append(slots, s)
	}
	sort.Ints(slots)

	var b strings.Builder
	for _, s := range slots[:min(maxLines, len(slots))] {
		e := f.active[s]
		var pct float64
		if e.total > 0 {
			pct = float64(e.iteration) / float64(e.total)
		}
		line := fmt.Sprintf("  %s %s  %s  %s  %s",
			styleInFlight.Render("⟩"),
			styleWorkerIdle.Render(fmt.Sprintf("[%d]", s)),
			styleFilePath.Render(e.scope),
			styleFileSize.Render(fmt.Sprintf("%-16s", e.phase)),
			styleProgressFilled.Render(ui.ProgressBar(pct, 10)),
		)
		if e.total > 0 {
			line += styleFileSize.Render(fmt.Sprintf(" %s/%s",
				ui.FormatCount(int64(e.iteration)), ui.FormatCount(int64(e.total))))
		}
		b.WriteString(truncate(line, width))
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *feedView) renderResults(width, viewportHeight int) string {
	if len(f.results) == 0 {
		return ""
	}
	start := max(f.scrollOffset, 0)
	end := min(start+viewportHeight, len(f.results))

	var b strings.Builder
	for _, e := range f.results[start:end] {
		var icon, text string
		switch {
		case e.failed:
			icon = styleIconFailed.Render("✗")
			text = styleError.Render(e.text)
		case e.done:
			icon = styleIconDone.Render("✓")
			text = styleIconDone.Render("done")
		default:
			icon = styleIconSkipped.Render("·")
			text = styleFileSize.Render(e.text)
		}
		line := fmt.Sprintf("  %s  %s  %s", icon, styleFilePath.Render(e.scope), text)
		b.WriteString(truncate(line, width))
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *feedView) renderErrors(width, maxLines int) string {
	if len(f.errors) == 0 || maxLines <= 0 {
		return ""
	}
	start := max(len(f.errors)-maxLines, 0)

	var b strings.Builder
	for _, e := range f.errors[start:] {
		subject := styleErrorPath.Render(e.scope)
		if e.path != "" {
			subject += "  " + f.styledPath(e.path)
		}
		line := fmt.Sprintf("  %s  %s  %s", styleIconFailed.Render("✗"), subject, styleError.Render(e.err))
		b.WriteString(truncate(line, width))
		b.WriteByte('\n')
	}
	return b.String()
}

func (f *feedView) styledPath(path string) string {
	path = ui.StripRoot(f.root, path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" {
		return styleFilePath.Render(base)
	}
	return styleFileDir.Render(dir+"/") + styleFilePath.Render(base)
}
