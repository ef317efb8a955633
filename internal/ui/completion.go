package ui

import (
	"fmt"

	"github.com/bamsammich/arcmgr/internal/stats"
)

// CompletionSummary builds the final summary line from a snapshot.
// Format: done ✓  scopes 12/12  files 4,217  size 2.1 GiB  time 3m 17s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	icon := "✓"
	if snap.ScopesFailed > 0 || snap.FilesFailed > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  scopes %d/%d", icon, snap.ScopesCompleted, snap.ScopesTotal)
	if snap.FilesCopied > 0 {
		avg := 0.0
		if snap.Elapsed.Seconds() > 0 {
			avg = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
		}
		base += fmt.Sprintf("  copied %s  size %s  avg %s",
			FormatCount(snap.FilesCopied), FormatBytes(snap.BytesCopied), FormatRate(avg))
	}
	if snap.FilesDeleted > 0 {
		base += fmt.Sprintf("  deleted %s  freed %s", FormatCount(snap.FilesDeleted), FormatBytes(snap.BytesDeleted))
	}
	if snap.FilesVerified > 0 {
		base += fmt.Sprintf("  verified %s", FormatCount(snap.FilesVerified))
	}
	if snap.Rollbacks > 0 {
		base += fmt.Sprintf("  rollbacks %d", snap.Rollbacks)
	}
	base += fmt.Sprintf("  time %s  errors %d", FormatDuration(snap.Elapsed), snap.ScopesFailed+snap.FilesFailed)
	return base
}
