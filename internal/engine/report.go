package engine

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// DeleteReport aggregates the plans of a delete run before anything is
// removed.
type DeleteReport struct {
	Deletable []*DeletePlan
	Blocked   []*DeletePlan
	Skipped   []*DeletePlan
}

// NewDeleteReport sorts plans into deletable, blocked and skipped.
func NewDeleteReport(plans []*DeletePlan) *DeleteReport {
	r := &DeleteReport{}
	for _, p := range plans {
		switch {
		case p.Skipped != "":
			r.Skipped = append(r.Skipped, p)
		case p.Deletable:
			r.Deletable = append(r.Deletable, p)
		default:
			r.Blocked = append(r.Blocked, p)
		}
	}
	return r
}

type deleteTotals struct {
	scopes      int
	catalogFile int
	diskFiles   int
	bytes       int64
}

func totals(plans []*DeletePlan) deleteTotals {
	var t deleteTotals
	for _, p := range plans {
		t.scopes++
		if p.Catalog != nil {
			t.catalogFile += p.Catalog.Len()
		}
		if p.Disk != nil {
			t.diskFiles += p.Disk.Len()
		}
		t.bytes += p.DiskSize()
	}
	return t
}

// Write renders the report as an aligned table.
func (r *DeleteReport) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if len(r.Blocked) > 0 {
		bt := totals(r.Blocked)
		fmt.Fprintf(tw, "Not deletable (state is not %s):\n", "JUNK")
		fmt.Fprintln(tw, "  SCOPE\tPATH\tSTATE\tOPERATOR\tCATALOG\tDISK\tSIZE")
		for _, p := range r.Blocked {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%d\t%d\t%s\n", p.Key, p.RelPath, p.DataState, p.Operator,
				p.Catalog.Len(), p.Disk.Len(), humanize.IBytes(uint64(p.DiskSize())))
		}
		fmt.Fprintf(tw, "  total\t%d scopes\t\t\t%d\t%d\t%s\n\n", bt.scopes, bt.catalogFile, bt.diskFiles,
			humanize.IBytes(uint64(bt.bytes)))
	}

	for _, p := range r.Skipped {
		fmt.Fprintf(tw, "Skipping %s (%s): %s\n", p.Key, p.RelPath, p.Skipped)
	}

	dt := totals(r.Deletable)
	fmt.Fprintln(tw, "Deletable:")
	fmt.Fprintln(tw, "  SCOPE\tPATH\tMODE\tCATALOG\tDISK\tSIZE")
	for _, p := range r.Deletable {
		mode := "directory"
		if p.ByFile {
			mode = "by file"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%d\t%s\n", p.Key, p.RelPath, mode,
			p.Catalog.Len(), p.Disk.Len(), humanize.IBytes(uint64(p.DiskSize())))
	}
	fmt.Fprintf(tw, "  total\t%d scopes\t\t%d\t%d\t%s\n", dt.scopes, dt.catalogFile, dt.diskFiles,
		humanize.IBytes(uint64(dt.bytes)))
	return tw.Flush()
}

// WriteDiff lists, per deletable scope, the disk/catalog discrepancies.
func (r *DeleteReport) WriteDiff(w io.Writer) {
	for _, p := range r.Deletable {
		if p.Comparison == nil {
			continue
		}
		fmt.Fprintf(w, "== %s (%s)\n", p.Key, p.RelPath)
		p.Comparison.WriteDiff(w)
	}
}

// WriteFiles lists every file a deletable scope would remove.
func (r *DeleteReport) WriteFiles(w io.Writer) error {
	for _, p := range r.Deletable {
		fmt.Fprintf(w, "== %s (%s)\n", p.Key, p.RelPath)
		inv := p.Disk
		if p.ByFile {
			inv = p.Catalog
		}
		for _, k := range inv.Keys() {
			rec := inv.Files[k]
			if _, err := fmt.Fprintf(w, "  %s/%s\t%s\n", rec.RelPath, rec.Name(), humanize.IBytes(uint64(rec.Size))); err != nil {
				return err
			}
		}
	}
	return nil
}
