package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPruneEmptyDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a/b/c/d/e"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a/keep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a/keep/f"), nil, 0o644))

	require.NoError(t, PruneEmptyDirs(root, "a/b/c"))

	assert.NoDirExists(t, filepath.Join(root, "a/b"))
	assert.DirExists(t, filepath.Join(root, "a/keep"))
	assert.DirExists(t, root)
}

func TestPruneEmptyDirsStopsAtRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x/y"), 0o755))

	require.NoError(t, PruneEmptyDirs(root, "x/y"))
	assert.NoDirExists(t, filepath.Join(root, "x"))
	assert.DirExists(t, root)
}

func TestPruneEmptyDirsKeepsFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "x/y/empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x/y/file"), nil, 0o644))

	require.NoError(t, PruneEmptyDirs(root, "x/y"))
	assert.NoDirExists(t, filepath.Join(root, "x/y/empty"))
	assert.FileExists(t, filepath.Join(root, "x/y/file"))
}

func TestPruneMissingPath(t *testing.T) {
	assert.NoError(t, PruneEmptyDirs(t.TempDir(), "not/there"))
}
