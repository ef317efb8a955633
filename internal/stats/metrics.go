package stats

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteTextfile writes the snapshot in Prometheus text format to path, for
// pickup by a node_exporter textfile collector. The command label separates
// compare, migrate and delete runs.
func WriteTextfile(path, command string, snap Snapshot) error {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"command": command}

	gauges := []struct {
		name  string
		help  string
		value float64
	}{
		{"scopes_total", "Scopes selected for the run.", float64(snap.ScopesTotal)},
		{"scopes_completed", "Scopes processed without error.", float64(snap.ScopesCompleted)},
		{"scopes_failed", "Scopes that reported an error.", float64(snap.ScopesFailed)},
		{"files_scanned", "Files seen on disk.", float64(snap.FilesScanned)},
		{"files_copied", "Files copied to a new location.", float64(snap.FilesCopied)},
		{"bytes_copied", "Bytes copied to a new location.", float64(snap.BytesCopied)},
		{"files_deleted", "Files removed from disk.", float64(snap.FilesDeleted)},
		{"bytes_deleted", "Bytes removed from disk.", float64(snap.BytesDeleted)},
		{"files_failed", "Files that could not be processed.", float64(snap.FilesFailed)},
		{"files_verified", "Files checked after a move.", float64(snap.FilesVerified)},
		{"mismatches", "Catalog/disk discrepancies found.", float64(snap.Mismatches)},
		{"rollbacks", "Migrations rolled back.", float64(snap.Rollbacks)},
		{"elapsed_seconds", "Wall time of the run.", snap.Elapsed.Seconds()},
	}

	for _, g := range gauges {
		gauge := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "arcmgr",
			Name:        g.name,
			Help:        g.help,
			ConstLabels: labels,
		})
		gauge.Set(g.value)
		if err := reg.Register(gauge); err != nil {
			return fmt.Errorf("register %s: %w", g.name, err)
		}
	}

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
