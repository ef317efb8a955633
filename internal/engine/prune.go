package engine

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PruneEmptyDirs removes root/relPath's empty subdirectories bottom-up, then
// relPath itself and its ancestors while they are empty. root is never removed.
func PruneEmptyDirs(root, relPath string) error {
	start := filepath.Join(root, relPath)
	if err := removeEmptyTree(start); err != nil {
		return err
	}

	root = filepath.Clean(root)
	for dir := filepath.Dir(start); dir != root && strings.HasPrefix(dir, root+string(filepath.Separator)); dir = filepath.Dir(dir) {
		if !removeIfEmpty(dir) {
			break
		}
	}
	return nil
}

// removeEmptyTree removes every empty directory at or below dir.
func removeEmptyTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := removeEmptyTree(filepath.Join(dir, e.Name())); err != nil {
				return err
			}
		}
	}
	removeIfEmpty(dir)
	return nil
}

func removeIfEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(dir) == nil
}
