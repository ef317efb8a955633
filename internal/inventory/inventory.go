// Package inventory builds filename-keyed file inventories from disk and
// from the catalog.
package inventory

import (
	"slices"
	"strings"

	"github.com/bamsammich/arcmgr/internal/catalog"
)

// compressionSuffixes are the extensions that mark a stored-compressed file.
var compressionSuffixes = []string{".fz", ".gz", ".bz2", ".xz", ".zst"}

// ParseCompression splits a stored filename into its logical name and
// compression suffix. Names without a known suffix return an empty compression.
func ParseCompression(name string) (filename, compression string) {
	for _, suffix := range compressionSuffixes {
		if len(name) > len(suffix) && strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix), suffix
		}
	}
	return name, ""
}

// FileRecord is one file as seen by the catalog or on disk. Disk records
// have no ID and carry FullPath; catalog records carry ID and FileType.
type FileRecord struct {
	ID          int64
	Filename    string
	Compression string
	RelPath     string
	Size        int64
	Checksum    string
	FileType    string
	FullPath    string
}

// Key is the filename+compression union key shared by both inventories.
func (r FileRecord) Key() string { return r.Filename + r.Compression }

// Name is the stored filename including any compression suffix.
func (r FileRecord) Name() string { return r.Filename + r.Compression }

// FromCatalog converts a catalog row into a FileRecord.
func FromCatalog(f catalog.File) FileRecord {
	return FileRecord{
		ID:          f.ID,
		Filename:    f.Filename,
		Compression: f.Compression,
		RelPath:     f.Path,
		Size:        f.Size,
		Checksum:    f.Checksum,
		FileType:    f.FileType,
	}
}

// Inventory is a filename-keyed record set. A key seen more than once keeps
// its first record in Files, and every sighting is listed in Duplicates.
type Inventory struct {
	Files      map[string]FileRecord
	Duplicates map[string][]FileRecord
}

// New returns an empty Inventory.
func New() *Inventory {
	return &Inventory{
		Files:      make(map[string]FileRecord),
		Duplicates: make(map[string][]FileRecord),
	}
}

// Add records r, moving a repeated key's records into Duplicates.
func (inv *Inventory) Add(r FileRecord) {
	k := r.Key()
	first, ok := inv.Files[k]
	if !ok {
		inv.Files[k] = r
		return
	}
	if _, dup := inv.Duplicates[k]; !dup {
		inv.Duplicates[k] = []FileRecord{first}
	}
	inv.Duplicates[k] = append(inv.Duplicates[k], r)
}

// Len returns the number of distinct keys.
func (inv *Inventory) Len() int { return len(inv.Files) }

// Keys returns the sorted keys.
func (inv *Inventory) Keys() []string {
	keys := make([]string, 0, len(inv.Files))
	for k := range inv.Files {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// TotalSize sums the sizes of the first-seen records.
func (inv *Inventory) TotalSize() int64 {
	var total int64
	for _, r := range inv.Files {
		total += r.Size
	}
	return total
}
