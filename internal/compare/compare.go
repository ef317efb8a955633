// Package compare classifies every file of a scope by comparing its disk
// and catalog inventories.
package compare

import (
	"maps"
	"slices"

	"github.com/bamsammich/arcmgr/internal/inventory"
)

// Options controls a comparison.
type Options struct {
	// Checksum enables checksum comparison after size.
	Checksum bool

	// Root is the archive root used to re-read a disk file at the path the
	// catalog claims for it.
	Root      string
	Algorithm inventory.Algorithm
	Cache     *inventory.Cache
}

// Result is the classification of one scope. Every key of the union is in
// exactly one of CatalogOnly, DiskOnly or Both. The mismatch, Duplicate and
// DuplicateResolved sets annotate keys in Both; PathDup annotates DiskOnly.
type Result struct {
	Equal             []string
	CatalogOnly       []string
	DiskOnly          []string
	Both              []string
	PathMismatch      []string
	SizeMismatch      []string
	ChecksumMismatch  []string
	Duplicate         []string
	DuplicateResolved []string
	PathDup           []string

	// Disk holds the disk records after duplicate re-resolution.
	Disk              map[string]inventory.FileRecord
	Catalog           map[string]inventory.FileRecord
	DiskDuplicates    map[string][]inventory.FileRecord
	CatalogDuplicates map[string][]inventory.FileRecord

	Checksum bool
}

// Clean reports whether the scope has no discrepancy.
func (r *Result) Clean() bool {
	return len(r.CatalogOnly) == 0 &&
		len(r.DiskOnly) == 0 &&
		len(r.PathMismatch) == 0 &&
		len(r.SizeMismatch) == 0 &&
		len(r.ChecksumMismatch) == 0
}

// Compare classifies the union of disk and cat. Path agreement is checked
// before size, and size before checksum.
func Compare(disk, cat *inventory.Inventory, opts Options) *Result {
	r := &Result{
		Disk:              maps.Clone(disk.Files),
		Catalog:           maps.Clone(cat.Files),
		DiskDuplicates:    disk.Duplicates,
		CatalogDuplicates: cat.Duplicates,
		Checksum:          opts.Checksum,
	}

	union := make([]string, 0, len(disk.Files)+len(cat.Files))
	for k := range disk.Files {
		union = append(union, k)
	}
	for k := range cat.Files {
		if _, ok := disk.Files[k]; !ok {
			union = append(union, k)
		}
	}
	slices.Sort(union)

	for _, key := range union {
		c, inCat := r.Catalog[key]
		d, onDisk := r.Disk[key]
		_, diskDup := disk.Duplicates[key]

		switch {
		case !onDisk:
			r.CatalogOnly = append(r.CatalogOnly, key)
			continue
		case !inCat:
			r.DiskOnly = append(r.DiskOnly, key)
			if diskDup {
				r.PathDup = append(r.PathDup, key)
			}
			continue
		}

		r.Both = append(r.Both, key)
		if diskDup {
			r.Duplicate = append(r.Duplicate, key)
		}

		if d.RelPath != c.RelPath {
			var ok bool
			d, c, ok = resolve(d, c, cat.Duplicates[key], opts)
			if !ok {
				r.PathMismatch = append(r.PathMismatch, key)
				continue
			}
			r.Disk[key] = d
			r.Catalog[key] = c
			r.DuplicateResolved = append(r.DuplicateResolved, key)
		}

		switch {
		case d.Size != c.Size:
			r.SizeMismatch = append(r.SizeMismatch, key)
		case opts.Checksum && d.Checksum != c.Checksum:
			r.ChecksumMismatch = append(r.ChecksumMismatch, key)
		default:
			r.Equal = append(r.Equal, key)
		}
	}
	return r
}

// resolve finds a disk and catalog record of one key that agree on path. A
// catalog duplicate at the disk record's path wins; otherwise each catalog
// candidate in turn has its claimed path read from disk.
func resolve(d, c inventory.FileRecord, catDups []inventory.FileRecord, opts Options) (inventory.FileRecord, inventory.FileRecord, bool) {
	for _, dup := range catDups {
		if dup.RelPath == d.RelPath {
			return d, dup, true
		}
	}
	candidates := catDups
	if len(candidates) == 0 {
		candidates = []inventory.FileRecord{c}
	}
	for _, cand := range candidates {
		resolved, err := inventory.DiskInfo(opts.Root, cand.RelPath, cand.Name(), opts.Checksum, opts.Algorithm, opts.Cache)
		if err == nil {
			return resolved, cand, true
		}
	}
	return d, c, false
}
