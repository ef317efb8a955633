package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/bamsammich/arcmgr/internal/config"
	"github.com/bamsammich/arcmgr/internal/event"
	"github.com/bamsammich/arcmgr/internal/stats"
	"github.com/bamsammich/arcmgr/internal/ui"
)

// Config configures the TUI presenter.
type Config struct {
	Stats   *stats.Collector
	Command string
	Workers int
	Root    string
	Theme   config.ThemeConfig
}

// Presenter wraps a Bubble Tea program and implements ui.Presenter.
type Presenter struct {
	cfg   Config
	model Model
}

// NewPresenter creates a new TUI presenter.
func NewPresenter(cfg Config) *Presenter {
	ApplyTheme(cfg.Theme)
	return &Presenter{cfg: cfg}
}

// Run starts the Bubble Tea program and blocks until the user quits. The
// program stays up after the channel closes so the results can be read. When
// the user quits early the rest of msgs is left for the caller to drain.
func (p *Presenter) Run(msgs <-chan event.Message) error {
	p.model = NewModel(msgs, p.cfg.Stats, p.cfg.Command, p.cfg.Workers, p.cfg.Root)
	prog := tea.NewProgram(
		p.model,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)
	finalModel, err := prog.Run()
	if err != nil {
		return err
	}
	p.model = finalModel.(Model)
	return nil
}

// Summary returns the final completion summary line.
func (p *Presenter) Summary() string {
	return ui.CompletionSummary(p.cfg.Stats.Snapshot())
}
