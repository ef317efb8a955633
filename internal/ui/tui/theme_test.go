package tui

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/arcmgr/internal/config"
)

func TestThemedOverrides(t *testing.T) {
	red := "#ff0000"
	empty := ""
	p := themed(config.ThemeConfig{Red: &red, Blue: &empty})

	assert.Equal(t, lipgloss.Color("#ff0000"), p.red)
	assert.Equal(t, defaultPalette.blue, p.blue, "empty override keeps the default")
	assert.Equal(t, defaultPalette.teal, p.teal)
	assert.Equal(t, lipgloss.Color("#f38ba8"), defaultPalette.red, "defaults are not mutated")
}
