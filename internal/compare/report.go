package compare

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/bamsammich/arcmgr/internal/inventory"
)

// Summary writes the per-scope counts.
func (r *Result) Summary(w io.Writer, relPath, archive string) {
	fmt.Fprintf(w, "\nPath = %s\n", relPath)
	fmt.Fprintf(w, "Archive name = %s\n", archive)

	var catNote, diskNote string
	if len(r.CatalogDuplicates) > 0 {
		catNote = fmt.Sprintf("(%d are distinct)", len(r.Catalog))
	}
	if len(r.DiskDuplicates) > 0 {
		diskNote = fmt.Sprintf("(%d are distinct)", len(r.Disk))
	}
	fmt.Fprintf(w, "Number of files from catalog = %d   %s\n", len(r.Catalog)+len(r.CatalogDuplicates), catNote)
	fmt.Fprintf(w, "Number of files from disk    = %d   %s\n", len(r.Disk)+len(r.DiskDuplicates), diskNote)
	if len(r.DiskDuplicates) > 0 {
		fmt.Fprintf(w, "Files with multiple paths on disk = %d\n", len(r.DiskDuplicates))
	}

	fmt.Fprintln(w, "Comparison Summary")
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, "\tEqual:\t%d\n", len(r.Equal))
	fmt.Fprintf(tw, "\tCatalog only:\t%d\n", len(r.CatalogOnly))
	fmt.Fprintf(tw, "\tDisk only:\t%d\n", len(r.DiskOnly))
	fmt.Fprintf(tw, "\tMismatched paths:\t%d\n", len(r.PathMismatch))
	fmt.Fprintf(tw, "\tMismatched filesize:\t%d\n", len(r.SizeMismatch))
	if r.Checksum {
		fmt.Fprintf(tw, "\tMismatched checksum:\t%d\n", len(r.ChecksumMismatch))
	}
	if len(r.DuplicateResolved) > 0 {
		fmt.Fprintf(tw, "\tResolved duplicates:\t%d\n", len(r.DuplicateResolved))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

// WriteDiff writes every discrepancy with the paths, sizes or checksums
// involved, followed by the duplicate listings.
func (r *Result) WriteDiff(w io.Writer) {
	listed := make(map[string]bool)

	if len(r.CatalogOnly) > 0 {
		fmt.Fprintln(w, "Files only found in the catalog --------- ")
		for _, k := range r.CatalogOnly {
			fmt.Fprintf(w, "\t%s/%s\n", r.Catalog[k].RelPath, k)
		}
	}

	if len(r.DiskOnly) > 0 {
		fmt.Fprintln(w, "\nFiles only found on disk --------- ")
		for _, k := range r.DiskOnly {
			fmt.Fprintf(w, "\t%s/%s%s\n", r.Disk[k].RelPath, k, r.dupMark(k, "  *"))
		}
		if len(r.PathDup) > 0 {
			fmt.Fprintln(w, "\n The following files had multiple paths on disk (path  filesize):")
			for _, k := range r.PathDup {
				r.writeListing(w, k, r.DiskDuplicates[k], r.Catalog, "(catalog match)")
				listed[k] = true
			}
		}
	}

	if len(r.PathMismatch) > 0 {
		fmt.Fprintln(w, "\nPath mismatch (file name, catalog path, disk path) --------- ")
		for _, k := range r.PathMismatch {
			fmt.Fprintf(w, "\t%s\t%s\t%s%s\n", k, r.Catalog[k].RelPath, r.Disk[k].RelPath, r.dupMark(k, " *"))
		}
	}

	if len(r.SizeMismatch) > 0 {
		fmt.Fprintln(w, "\nFilesize mismatch (file name, size in catalog, size on disk) --------- ")
		for _, k := range r.SizeMismatch {
			fmt.Fprintf(w, "\t%s %d %d\n", k, r.Catalog[k].Size, r.Disk[k].Size)
		}
	}

	if r.Checksum && len(r.ChecksumMismatch) > 0 {
		fmt.Fprintln(w, "\nChecksum mismatch (file name, sum in catalog, sum on disk) --------- ")
		for _, k := range r.ChecksumMismatch {
			fmt.Fprintf(w, "\t%s %s %s\n", k, r.Catalog[k].Checksum, r.Disk[k].Checksum)
		}
	}

	remaining := sortedKeys(r.DiskDuplicates)
	remaining = slices.DeleteFunc(remaining, func(k string) bool { return listed[k] })
	if len(remaining) > 0 {
		fmt.Fprintln(w, "\nThe following files have multiple paths on disk (path  filesize):")
		for _, k := range remaining {
			r.writeListing(w, k, r.DiskDuplicates[k], r.Catalog, "(catalog match)")
		}
	}

	if len(r.CatalogDuplicates) > 0 {
		fmt.Fprintln(w, "\nThe following files have multiple entries in the catalog (path  filesize):")
		for _, k := range sortedKeys(r.CatalogDuplicates) {
			r.writeListing(w, k, r.CatalogDuplicates[k], r.Disk, "(disk match)")
		}
	}
}

// WriteAll writes both inventories side by side, marking equal keys with "=".
func (r *Result) WriteAll(w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "catalog path/name (size, checksum)\t\tdisk path/name (size, checksum)")

	equal := make(map[string]bool, len(r.Equal))
	for _, k := range r.Equal {
		equal[k] = true
	}

	keys := slices.Concat(r.CatalogOnly, r.DiskOnly, r.Both)
	slices.Sort(keys)
	for _, k := range keys {
		var catSide, diskSide string
		if c, ok := r.Catalog[k]; ok {
			catSide = fmt.Sprintf("%s/%s (%d, %s)", c.RelPath, k, c.Size, c.Checksum)
		}
		if d, ok := r.Disk[k]; ok {
			diskSide = fmt.Sprintf("%s/%s (%d, %s)", d.RelPath, k, d.Size, d.Checksum)
		}
		mark := "X"
		if equal[k] {
			mark = "="
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", catSide, mark, diskSide)
	}
	tw.Flush()
}

func (r *Result) dupMark(key, mark string) string {
	if _, ok := r.DiskDuplicates[key]; ok {
		return mark
	}
	return ""
}

// writeListing prints one duplicated key's paths, starring the first and
// noting the path the other side agrees with.
func (r *Result) writeListing(
	w io.Writer,
	key string,
	recs []inventory.FileRecord,
	other map[string]inventory.FileRecord,
	matchNote string,
) {
	sizes := make(map[string]int64, len(recs))
	for _, rec := range recs {
		sizes[rec.RelPath] = rec.Size
	}
	for i, p := range sortedKeys(sizes) {
		start := " "
		if i == 0 {
			start = "*"
		}
		note := ""
		if o, ok := other[key]; ok && o.RelPath == p {
			note = "  " + matchNote
		}
		fmt.Fprintf(w, "      %s %s/%s   %d%s\n", start, p, key, sizes[p], note)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Report is the machine-readable form of a Result.
type Report struct {
	Scope             string   `json:"scope"                        yaml:"scope"`
	Path              string   `json:"path"                         yaml:"path"`
	Archive           string   `json:"archive"                      yaml:"archive"`
	Clean             bool     `json:"clean"                        yaml:"clean"`
	CatalogFiles      int      `json:"catalog_files"                yaml:"catalog_files"`
	DiskFiles         int      `json:"disk_files"                   yaml:"disk_files"`
	Equal             int      `json:"equal"                        yaml:"equal"`
	CatalogOnly       []string `json:"catalog_only,omitempty"       yaml:"catalog_only,omitempty"`
	DiskOnly          []string `json:"disk_only,omitempty"          yaml:"disk_only,omitempty"`
	PathMismatch      []string `json:"path_mismatch,omitempty"      yaml:"path_mismatch,omitempty"`
	SizeMismatch      []string `json:"size_mismatch,omitempty"      yaml:"size_mismatch,omitempty"`
	ChecksumMismatch  []string `json:"checksum_mismatch,omitempty"  yaml:"checksum_mismatch,omitempty"`
	DuplicateResolved []string `json:"duplicate_resolved,omitempty" yaml:"duplicate_resolved,omitempty"`
	DiskDuplicates    []string `json:"disk_duplicates,omitempty"    yaml:"disk_duplicates,omitempty"`
	CatalogDuplicates []string `json:"catalog_duplicates,omitempty" yaml:"catalog_duplicates,omitempty"`
}

// Report summarizes r for encoding.
func (r *Result) Report(scope, relPath, archive string) Report {
	return Report{
		Scope:             scope,
		Path:              relPath,
		Archive:           archive,
		Clean:             r.Clean(),
		CatalogFiles:      len(r.Catalog),
		DiskFiles:         len(r.Disk),
		Equal:             len(r.Equal),
		CatalogOnly:       r.CatalogOnly,
		DiskOnly:          r.DiskOnly,
		PathMismatch:      r.PathMismatch,
		SizeMismatch:      r.SizeMismatch,
		ChecksumMismatch:  r.ChecksumMismatch,
		DuplicateResolved: r.DuplicateResolved,
		DiskDuplicates:    sortedKeys(r.DiskDuplicates),
		CatalogDuplicates: sortedKeys(r.CatalogDuplicates),
	}
}

// Encode writes reports in format ("json" or "yaml").
func Encode(w io.Writer, format string, reports []Report) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format %q (want text, json or yaml)", format)
	}
}
