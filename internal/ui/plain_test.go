package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
)

func runPlain(t *testing.T, p *plainPresenter, msgs ...event.Message) []string {
	t.Helper()
	ch := make(chan event.Message, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	require.NoError(t, p.Run(ch))
	out := strings.TrimSpace(p.w.(*bytes.Buffer).String())
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestPlainPresenterScopeLifecycle(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.NewCollector()}

	lines := runPlain(t, p,
		event.Message{Kind: event.ScopeStarted, Scope: "42", Slot: 0},
		event.Message{Kind: event.PhaseChanged, Scope: "42", Text: "COPYING", Total: 5},
		event.Message{Kind: event.Progress, Scope: "42", Iteration: 1, Total: 5},
		event.Message{Kind: event.Notice, Scope: "42", Text: "dry run: 5 files"},
		event.Message{Kind: event.ScopeCompleted, Scope: "42"},
		event.Message{Kind: event.Complete},
	)

	require.Len(t, lines, 2)
	assert.Equal(t, "[0] 42  dry run: 5 files", lines[0])
	assert.Equal(t, "[0] 42  done", lines[1])
	assert.Empty(t, errOut.String())
}

func TestPlainPresenterVerbose(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.NewCollector(), verbose: true}

	lines := runPlain(t, p,
		event.Message{Kind: event.ScopeStarted, Scope: "7", Slot: 3},
		event.Message{Kind: event.PhaseChanged, Scope: "7", Slot: 3, Text: "VERIFY"},
	)

	require.Len(t, lines, 2)
	assert.Equal(t, "[3] 7  started", lines[0])
	assert.Equal(t, "[3] 7  VERIFY", lines[1])
}

func TestPlainPresenterFailures(t *testing.T) {
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.NewCollector(), root: "/archive"}

	lines := runPlain(t, p,
		event.Message{Kind: event.FileFailed, Scope: "9", Slot: 1,
			Path: "/archive/OPS/red/a.fits", Err: errors.New("permission denied")},
		event.Message{Kind: event.ScopeFailed, Scope: "9", Slot: 1, Err: errors.New("rolled back")},
	)

	require.Len(t, lines, 2)
	assert.Equal(t, "[1] 9  OPS/red/a.fits  permission denied", lines[0])
	assert.Equal(t, "[1] 9  FAILED: rolled back", lines[1])
}

func TestPlainPresenterProgressLine(t *testing.T) {
	var out, errOut bytes.Buffer
	c := stats.NewCollector()
	c.SetScopesTotal(4)
	c.AddScopesCompleted(1)
	c.AddScopesFailed(1)
	c.AddFilesCopied(12)
	p := &plainPresenter{w: &out, errW: &errOut, stats: c}

	p.printProgress()
	assert.Contains(t, errOut.String(), "progress: 2/4 scopes 12 files")
}

func TestPlainPresenterSummary(t *testing.T) {
	c := stats.NewCollector()
	c.SetScopesTotal(2)
	c.AddScopesCompleted(2)
	p := &plainPresenter{stats: c}

	s := p.Summary()
	assert.Contains(t, s, "done ✓")
	assert.Contains(t, s, "scopes 2/2")
	assert.Contains(t, s, "errors 0")
}
