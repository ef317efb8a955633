package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
	"github.com/bamsammich/arcmgr/internal/ui"
)

type viewMode int

const (
	viewFeed viewMode = iota
	viewErrors
	viewRate
)

// Bubble Tea messages.
type workerMsg event.Message
type channelDoneMsg struct{}
type tickMsg time.Time
type saveResultMsg struct{ err error }

// readNextMessage returns a tea.Cmd that blocks on the worker channel.
func readNextMessage(ch <-chan event.Message) tea.Cmd {
	return func() tea.Msg {
		m, ok := <-ch
		if !ok {
			return channelDoneMsg{}
		}
		return workerMsg(m)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// saveModal manages the text input overlay for saving the run report.
type saveModal struct {
	active bool
	input  string
	cursor int
}

func (s *saveModal) insertRune(r rune) {
	s.input = s.input[:s.cursor] + string(r) + s.input[s.cursor:]
	s.cursor++
}

func (s *saveModal) backspace() {
	if s.cursor > 0 {
		s.input = s.input[:s.cursor-1] + s.input[s.cursor:]
		s.cursor--
	}
}

func (s *saveModal) deleteChar() {
	if s.cursor < len(s.input) {
		s.input = s.input[:s.cursor] + s.input[s.cursor+1:]
	}
}

func (s *saveModal) moveLeft() {
	if s.cursor > 0 {
		s.cursor--
	}
}

func (s *saveModal) moveRight() {
	if s.cursor < len(s.input) {
		s.cursor++
	}
}

func (s *saveModal) render() string {
	prompt := styleSavePrompt.Render("Save to: ")
	cursor := styleSaveInput.Render("█")
	return "  " + prompt + styleSaveInput.Render(s.input[:s.cursor]) + cursor + styleSaveInput.Render(s.input[s.cursor:])
}

// Model is the root Bubble Tea model.
type Model struct {
	msgs    <-chan event.Message
	stats   stats.ReadTicker
	command string
	slots   int
	root    string

	mode      viewMode
	feed      feedView
	rate      rateView
	width     int
	height    int
	statusMsg string // transient notification
	done      bool   // every slot finished
	quitting  bool

	lastSnap  stats.Snapshot
	lastSpeed float64

	save saveModal
}

// NewModel creates a new TUI model.
func NewModel(msgs <-chan event.Message, collector stats.ReadTicker, command string, slots int, root string) Model {
	return Model{
		msgs:    msgs,
		stats:   collector,
		command: command,
		slots:   slots,
		root:    root,
		feed:    newFeedView(root),
		rate:    newRateView(),
		width:   80,
		height:  24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(readNextMessage(m.msgs), tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case workerMsg:
		m.feed.handleMessage(event.Message(msg))
		m.rate.handleMessage(event.Message(msg))
		return m, readNextMessage(m.msgs)

	case channelDoneMsg:
		m.done = true
		m.lastSnap = m.stats.Snapshot()
		m.lastSpeed = m.stats.RollingSpeed(10)
		return m, nil

	case tickMsg:
		if m.done {
			return m, nil
		}
		m.stats.Tick()
		m.lastSnap = m.stats.Snapshot()
		m.lastSpeed = m.stats.RollingSpeed(10)
		m.rate.sample(m.stats.RollingSpeed(1))
		return m, tickCmd()

	case saveResultMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("save failed: %v", msg.err)
		} else {
			m.statusMsg = fmt.Sprintf("saved to %s", m.save.input)
		}
		m.save.active = false
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.save.active {
		return m.handleSaveKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "r":
		m.mode = viewRate
		m.statusMsg = ""
	case "f":
		m.mode = viewFeed
		m.statusMsg = ""
	case "e":
		m.mode = viewErrors
		m.statusMsg = ""
	case "j", "down":
		m.feed.scrollDown()
	case "k", "up":
		m.feed.scrollUp()
	case "G":
		m.feed.scrollToBottom()
	case "g":
		m.feed.scrollToTop()
	case "s":
		if m.done {
			m.save.active = true
			m.save.input = fmt.Sprintf("arcmgr-%s-%s.log", m.command, time.Now().Format("2006-01-02-150405"))
			m.save.cursor = len(m.save.input)
			m.statusMsg = ""
		}
	}
	return m, nil
}

func (m Model) handleSaveKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEscape:
		m.save.active = false
		m.statusMsg = ""
	case tea.KeyEnter:
		return m, m.writeReport(m.save.input)
	case tea.KeyBackspace:
		m.save.backspace()
	case tea.KeyDelete:
		m.save.deleteChar()
	case tea.KeyLeft:
		m.save.moveLeft()
	case tea.KeyRight:
		m.save.moveRight()
	case tea.KeyRunes:
		for _, r := range msg.Runes {
			m.save.insertRune(r)
		}
	}
	return m, nil
}

func (m Model) writeReport(path string) tea.Cmd {
	snap := m.lastSnap
	command, root := m.command, m.root
	results := make([]resultEntry, len(m.feed.results))
	copy(results, m.feed.results)
	errs := make([]errorEntry, len(m.feed.errors))
	copy(errs, m.feed.errors)

	return func() tea.Msg {
		var b strings.Builder
		fmt.Fprintf(&b, "arcmgr %s report\n", command)
		b.WriteString("====================\n")
		fmt.Fprintf(&b, "root:      %s\n", root)
		fmt.Fprintf(&b, "finished:  %s\n", time.Now().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "duration:  %s\n", ui.FormatDuration(snap.Elapsed))
		fmt.Fprintf(&b, "scopes:    %d/%d (%d failed)\n", snap.ScopesCompleted, snap.ScopesTotal, snap.ScopesFailed)
		fmt.Fprintf(&b, "copied:    %s files, %s\n", ui.FormatCount(snap.FilesCopied), ui.FormatBytes(snap.BytesCopied))
		fmt.Fprintf(&b, "deleted:   %s files, %s\n", ui.FormatCount(snap.FilesDeleted), ui.FormatBytes(snap.BytesDeleted))
		fmt.Fprintf(&b, "rollbacks: %d\n", snap.Rollbacks)

		b.WriteString("\n--- scopes ---\n")
		for _, e := range results {
			switch {
			case e.failed:
				fmt.Fprintf(&b, "x  [%d] %-20s  %s\n", e.slot, e.scope, e.text)
			case e.done:
				fmt.Fprintf(&b, "v  [%d] %-20s  done\n", e.slot, e.scope)
			default:
				fmt.Fprintf(&b, "-  [%d] %-20s  %s\n", e.slot, e.scope, e.text)
			}
		}
		if len(errs) > 0 {
			b.WriteString("\n--- errors ---\n")
			for _, e := range errs {
				fmt.Fprintf(&b, "%s  %s  %s  %s\n", e.time.Format(time.TimeOnly), e.scope, ui.StripRoot(root, e.path), e.err)
			}
		}

		err := os.WriteFile(path, []byte(b.String()), 0o644) //nolint:gosec // user-chosen path for report output
		return saveResultMsg{err: err}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteByte('\n')

	contentHeight := max(m.height-3, 3) // header, status, footer
	switch m.mode {
	case viewFeed:
		b.WriteString(m.feed.view(m.width, contentHeight, false))
	case viewErrors:
		b.WriteString(m.feed.view(m.width, contentHeight, true))
	case viewRate:
		b.WriteString(m.rate.view(m.width, m.lastSnap, m.lastSpeed, m.slots))
	}

	switch {
	case m.save.active:
		b.WriteString(m.save.render())
	case m.statusMsg != "":
		b.WriteString(styleStatus.Render("  " + m.statusMsg))
	}
	b.WriteByte('\n')

	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	snap := m.lastSnap
	finished := snap.ScopesCompleted + snap.ScopesFailed

	var pct float64
	if snap.ScopesTotal > 0 {
		pct = float64(finished) / float64(snap.ScopesTotal)
	}

	label := styleHeaderLabel.Render("arcmgr " + m.command)
	if m.done {
		icon := styleIconDone.Render("done")
		if snap.ScopesFailed > 0 {
			icon = styleIconFailed.Render(fmt.Sprintf("done, %d failed", snap.ScopesFailed))
		}
		return styleHeader.Render(fmt.Sprintf("  %s  %s  %d/%d scopes  %s",
			label, icon, finished, snap.ScopesTotal, ui.FormatDuration(snap.Elapsed)))
	}

	return styleHeader.Render(fmt.Sprintf("  %s  %3.0f%%  %s  %d/%d scopes  %s  %s  %dw",
		label,
		pct*100,
		styleProgressFilled.Render(ui.ProgressBar(pct, 10)),
		finished, snap.ScopesTotal,
		ui.FormatRate(m.lastSpeed),
		ui.FormatDuration(snap.Elapsed),
		m.slots,
	))
}

func (m Model) renderFooter() string {
	type keybind struct {
		key   string
		label string
	}

	binds := []keybind{
		{"q", "quit"},
		{"f", "feed"},
		{"e", "errors"},
		{"r", "rate"},
		{"j/k", "scroll"},
	}
	if m.done {
		binds = append([]keybind{{"s", "save"}}, binds...)
	}

	parts := make([]string, 0, len(binds))
	for _, kb := range binds {
		parts = append(parts, styleKeybindKey.Render(kb.key)+" "+styleKeybindLabel.Render(kb.label))
	}
	return "  " + strings.Join(parts, "   ")
}
