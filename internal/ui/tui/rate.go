package tui

import (
	"fmt"
	"strings"

	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
	"github.com/bamsammich/arcmgr/internal/ui"
)

const speedHistory = 60

type rateView struct {
	busy   map[int]bool
	speeds []float64 // one sample per second
}

func newRateView() rateView {
	return rateView{busy: make(map[int]bool)}
}

func (r *rateView) handleMessage(m event.Message) {
	switch m.Kind {
	case event.ScopeStarted:
		r.busy[m.Slot] = true
	case event.ScopeCompleted, event.ScopeFailed, event.Complete:
		delete(r.busy, m.Slot)
	}
}

func (r *rateView) sample(speed float64) {
	r.speeds = append(r.speeds, speed)
	if len(r.speeds) > speedHistory {
		r.speeds = r.speeds[1:]
	}
}

func (r *rateView) view(width int, snap stats.Snapshot, speed float64, slots int) string {
	width = max(width, 20)

	var b strings.Builder
	b.WriteString("  " + styleBigNumber.Render(ui.FormatRate(speed)))
	b.WriteString("\n\n")

	sparkWidth := max(width-4, 10)
	b.WriteString("  " + styleSparkline.Render(ui.Sparkline(r.speeds, sparkWidth)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("  %s   %s   %s\n\n",
		styleFileSpeed.Render(fmt.Sprintf("%s copied", ui.FormatCount(snap.FilesCopied))),
		styleFileSpeed.Render(fmt.Sprintf("%s deleted", ui.FormatCount(snap.FilesDeleted))),
		styleFileSize.Render(fmt.Sprintf("%s / %s scopes",
			ui.FormatCount(snap.ScopesCompleted+snap.ScopesFailed), ui.FormatCount(snap.ScopesTotal))),
	))

	b.WriteString("  " + styleDivider.Render("workers") + "  ")
	b.WriteString(r.renderWorkerGrid(slots))
	b.WriteByte('\n')
	return b.String()
}

func (r *rateView) renderWorkerGrid(total int) string {
	var b strings.Builder
	for i := range total {
		if r.busy[i] {
			b.WriteString(styleWorkerBusy.Render("▪"))
		} else {
			b.WriteString(styleWorkerIdle.Render("□"))
		}
	}
	return b.String()
}
