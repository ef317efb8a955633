package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Side file suffixes.
const (
	BadPermSuffix = ".badperm"
	UndelSuffix   = ".undel"
	ErrSuffix     = ".err"
)

// SideFiles writes per-scope diagnostic listings into Dir (cwd when empty).
type SideFiles struct {
	Dir string
}

// BadPerm lists files failing the permission probe.
func (s SideFiles) BadPerm(scope string, paths []string) (string, error) {
	return s.write(SideFileKey(scope)+BadPermSuffix, strings.Join(paths, "\n")+"\n")
}

// Undeletable lists files that could not be removed.
func (s SideFiles) Undeletable(scope string, paths []string) (string, error) {
	return s.write(SideFileKey(scope)+UndelSuffix, strings.Join(paths, "\n")+"\n")
}

// Error records a scope's fatal error, with the goroutine stack for panics.
func (s SideFiles) Error(scope string, err error, stack []byte) (string, error) {
	content := err.Error() + "\n"
	if len(stack) > 0 {
		content += "\n" + string(stack)
	}
	return s.write(SideFileKey(scope)+ErrSuffix, content)
}

func (s SideFiles) write(name, content string) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// SideFileKey turns a scope id or relative path into a flat file name.
func SideFileKey(scope string) string {
	return strings.ReplaceAll(strings.Trim(scope, "/"), "/", "_")
}
