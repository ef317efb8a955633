package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/bamsammich/arcmgr/internal/stats"
)

// FormatRate formats a bytes-per-second rate.
func FormatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "0 B/s"
	}
	return humanize.IBytes(uint64(bytesPerSec)) + "/s"
}

// FormatCount formats n with thousands separators.
func FormatCount(n int64) string {
	return humanize.Comma(n)
}

// FormatBytes formats a byte count.
func FormatBytes(b int64) string {
	return stats.FormatBytes(b)
}

// FormatDuration formats elapsed time at second resolution.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h, m, s := int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// ProgressBar renders fraction pct of width cells as ▪ on a □ track.
func ProgressBar(pct float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(min(max(pct, 0), 1) * float64(width))
	return strings.Repeat("▪", filled) + strings.Repeat("□", width-filled)
}

// WorkerIndicator renders one square per worker slot, filled while busy.
func WorkerIndicator(busy, total int) string {
	busy = min(max(busy, 0), total)
	return strings.Repeat("▪", busy) + strings.Repeat("□", total-busy)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws the last width samples as block characters scaled to
// their maximum. Short histories are left-padded with the lowest block.
func Sparkline(samples []float64, width int) string {
	if width <= 0 {
		return ""
	}
	if len(samples) > width {
		samples = samples[len(samples)-width:]
	}
	out := make([]rune, width)
	pad := width - len(samples)
	for i := range pad {
		out[i] = sparkBlocks[0]
	}
	top := 0.0
	if len(samples) > 0 {
		top = slices.Max(samples)
	}
	for i, v := range samples {
		idx := 0
		if top > 0 && v > 0 {
			idx = min(int(v/top*float64(len(sparkBlocks)-1)), len(sparkBlocks)-1)
		}
		out[pad+i] = sparkBlocks[idx]
	}
	return string(out)
}
