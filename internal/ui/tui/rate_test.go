package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
)

func TestRateView_SlotTracking(t *testing.T) {
	r := newRateView()
	r.handleMessage(event.Message{Kind: event.ScopeStarted, Slot: 0})
	r.handleMessage(event.Message{Kind: event.ScopeStarted, Slot: 2})
	assert.True(t, r.busy[0])
	assert.True(t, r.busy[2])

	r.handleMessage(event.Message{Kind: event.ScopeFailed, Slot: 0})
	assert.False(t, r.busy[0])
	assert.Equal(t, "□□▪", stripANSI(r.renderWorkerGrid(3)))
}

func TestRateView_SampleHistory(t *testing.T) {
	r := newRateView()
	for i := range speedHistory + 5 {
		r.sample(float64(i))
	}
	assert.Len(t, r.speeds, speedHistory)
	assert.InDelta(t, 5.0, r.speeds[0], 0.001)
}

func TestRateView_View(t *testing.T) {
	r := newRateView()
	r.sample(1024)
	out := r.view(80, stats.Snapshot{ScopesTotal: 3, ScopesCompleted: 1, FilesCopied: 12}, 1024, 4)
	assert.Contains(t, out, "12 copied")
	assert.Contains(t, out, "1 / 3 scopes")
	assert.Contains(t, out, "workers")
}

func stripANSI(s string) string {
	var out []rune
	inEsc := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEsc = true
		case inEsc:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEsc = false
			}
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
