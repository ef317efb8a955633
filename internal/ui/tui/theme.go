package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bamsammich/arcmgr/internal/config"
)

// palette is the set of colors every style is derived from.
type palette struct {
	green, blue, yellow, red, teal, mauve, muted, dim, bright lipgloss.Color
}

// defaultPalette is Catppuccin Mocha.
var defaultPalette = palette{
	green:  "#a6e3a1",
	blue:   "#89b4fa",
	yellow: "#f9e2af",
	red:    "#f38ba8",
	teal:   "#94e2d5",
	mauve:  "#cba6f7",
	muted:  "#5a6278",
	dim:    "#3a4055",
	bright: "#cdd6f4",
}

var (
	styleHeader         lipgloss.Style
	styleHeaderLabel    lipgloss.Style
	styleDivider        lipgloss.Style
	styleIconDone       lipgloss.Style
	styleIconFailed     lipgloss.Style
	styleIconSkipped    lipgloss.Style
	styleFilePath       lipgloss.Style
	styleFileDir        lipgloss.Style
	styleFileSize       lipgloss.Style
	styleFileSpeed      lipgloss.Style
	styleInFlight       lipgloss.Style
	styleError          lipgloss.Style
	styleErrorPath      lipgloss.Style
	styleKeybindKey     lipgloss.Style
	styleKeybindLabel   lipgloss.Style
	styleBigNumber      lipgloss.Style
	styleSparkline      lipgloss.Style
	styleWorkerBusy     lipgloss.Style
	styleWorkerIdle     lipgloss.Style
	styleProgressFilled lipgloss.Style
	styleStatus         lipgloss.Style
	styleSavePrompt     lipgloss.Style
	styleSaveInput      lipgloss.Style
)

func init() {
	defaultPalette.apply()
}

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

func (p palette) apply() {
	styleHeader = fg(p.bright).Bold(true)
	styleHeaderLabel = fg(p.mauve).Bold(true)
	styleDivider = fg(p.dim)
	styleIconDone = fg(p.green)
	styleIconFailed = fg(p.red)
	styleIconSkipped = fg(p.muted)
	styleFilePath = fg(p.bright)
	styleFileDir = fg(p.muted)
	styleFileSize = fg(p.muted)
	styleFileSpeed = fg(p.teal)
	styleInFlight = fg(p.blue)
	styleError = fg(p.red)
	styleErrorPath = fg(p.red).Bold(true)
	styleKeybindKey = fg(p.mauve).Bold(true)
	styleKeybindLabel = fg(p.muted)
	styleBigNumber = fg(p.green).Bold(true)
	styleSparkline = fg(p.blue)
	styleWorkerBusy = fg(p.blue)
	styleWorkerIdle = fg(p.dim)
	styleProgressFilled = fg(p.green)
	styleStatus = fg(p.yellow).Italic(true)
	styleSavePrompt = fg(p.muted)
	styleSaveInput = fg(p.bright)
}

// themed returns the default palette with the config's overrides applied.
func themed(tc config.ThemeConfig) palette {
	p := defaultPalette
	for _, o := range []struct {
		dst *lipgloss.Color
		src *string
	}{
		{&p.green, tc.Green},
		{&p.blue, tc.Blue},
		{&p.yellow, tc.Yellow},
		{&p.red, tc.Red},
		{&p.mauve, tc.Mauve},
		{&p.muted, tc.Muted},
		{&p.dim, tc.Dim},
		{&p.bright, tc.Bright},
	} {
		if o.src != nil && *o.src != "" {
			*o.dst = lipgloss.Color(*o.src)
		}
	}
	return p
}

// ApplyTheme restyles the TUI with the config's color overrides.
func ApplyTheme(tc config.ThemeConfig) {
	themed(tc).apply()
}

// truncate clips a styled line to width terminal cells.
func truncate(s string, width int) string {
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
