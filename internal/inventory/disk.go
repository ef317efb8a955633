package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// ScanConfig controls a disk inventory scan.
type ScanConfig struct {
	Root      string
	RelPath   string
	Checksum  bool
	Algorithm Algorithm
	Cache     *Cache

	// OnFile, when set, is called after each regular file is recorded.
	OnFile func(FileRecord)
}

// ScanDisk walks Root/RelPath and returns an inventory of every regular file
// below it. Symlinks and special files are skipped. Records are keyed by
// logical name; Size and Checksum describe the stored bytes.
func ScanDisk(ctx context.Context, cfg ScanConfig) (*Inventory, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = DefaultAlgorithm
	}
	start := filepath.Join(cfg.Root, cfg.RelPath)
	info, err := os.Stat(start)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", start, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan %s: not a directory", start)
	}

	s := &diskScanner{cfg: cfg, inv: New()}
	if err := s.scanDir(ctx, start); err != nil {
		return nil, err
	}
	return s.inv, nil
}

// DiskInfo stats (and optionally checksums) the single stored file
// root/relPath/name.
func DiskInfo(root, relPath, name string, checksum bool, algo Algorithm, cache *Cache) (FileRecord, error) {
	fullPath := filepath.Join(root, relPath, name)
	info, err := os.Lstat(fullPath)
	if err != nil {
		return FileRecord{}, fmt.Errorf("lstat %s: %w", fullPath, err)
	}
	if !info.Mode().IsRegular() {
		return FileRecord{}, fmt.Errorf("%s is not a regular file", fullPath)
	}
	if algo == "" {
		algo = DefaultAlgorithm
	}
	s := &diskScanner{cfg: ScanConfig{Root: root, Checksum: checksum, Algorithm: algo, Cache: cache}}
	return s.record(fullPath, info)
}

type diskScanner struct {
	cfg ScanConfig
	inv *Inventory
}

func (s *diskScanner) scanDir(ctx context.Context, dirPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("readdir %s: %w", dirPath, err)
	}

	for _, entry := range entries {
		entryPath := filepath.Join(dirPath, entry.Name())
		info, err := os.Lstat(entryPath)
		if err != nil {
			return fmt.Errorf("lstat %s: %w", entryPath, err)
		}

		switch mode := info.Mode(); {
		case mode.IsDir():
			if err := s.scanDir(ctx, entryPath); err != nil {
				return err
			}
		case mode.IsRegular():
			rec, err := s.record(entryPath, info)
			if err != nil {
				return err
			}
			s.inv.Add(rec)
			if s.cfg.OnFile != nil {
				s.cfg.OnFile(rec)
			}
		}
	}
	return nil
}

func (s *diskScanner) record(fullPath string, info os.FileInfo) (FileRecord, error) {
	dir, err := filepath.Rel(s.cfg.Root, filepath.Dir(fullPath))
	if err != nil {
		return FileRecord{}, fmt.Errorf("rel path for %s: %w", fullPath, err)
	}
	if dir == "." {
		dir = ""
	}

	filename, compression := ParseCompression(info.Name())
	rec := FileRecord{
		Filename:    filename,
		Compression: compression,
		RelPath:     strings.TrimRight(filepath.ToSlash(dir), "/"),
		Size:        info.Size(),
		FullPath:    fullPath,
	}

	if s.cfg.Checksum {
		rec.Checksum, err = s.checksum(fullPath, info)
		if err != nil {
			return FileRecord{}, err
		}
	}
	return rec, nil
}

func (s *diskScanner) checksum(fullPath string, info os.FileInfo) (string, error) {
	key := CacheKey{
		Path:      fullPath,
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		Algorithm: s.cfg.Algorithm,
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		key.Ino = stat.Ino
	}

	if sum, ok, err := s.cfg.Cache.Lookup(key); err == nil && ok {
		return sum, nil
	}

	sum, err := HashFile(fullPath, s.cfg.Algorithm)
	if err != nil {
		return "", err
	}
	if err := s.cfg.Cache.Store(key, sum); err != nil {
		return "", err
	}
	return sum, nil
}
