package engine

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bamsammich/arcmgr/internal/catalog"
	"github.com/bamsammich/arcmgr/internal/inventory"
)

const testArchive = "home"

// fixture is an archive root with a catalog describing it.
type fixture struct {
	t       *testing.T
	root    string
	dbPath  string
	store   *catalog.Store
	reports string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		t:       t,
		root:    filepath.Join(dir, "archive"),
		dbPath:  filepath.Join(dir, "catalog.db"),
		reports: filepath.Join(dir, "reports"),
	}
	require.NoError(t, os.MkdirAll(f.root, 0o755))

	store, err := catalog.Open(context.Background(), f.dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.AddArchive(context.Background(), testArchive, f.root))
	f.store = store
	return f
}

func (f *fixture) addScope(relPath, dataState string) int64 {
	f.t.Helper()
	id, err := f.store.AddScope(context.Background(), catalog.Scope{
		ReqNum:    1,
		UnitName:  "u" + filepath.Base(relPath),
		AttNum:    1,
		RelPath:   relPath,
		Operator:  "tester",
		DataState: dataState,
	})
	require.NoError(f.t, err)
	return id
}

// addFile writes root/relPath/name and registers it under scope id with its
// real size and blake3 checksum.
func (f *fixture) addFile(id int64, relPath, name, content, fileType string) {
	f.t.Helper()
	full := f.writeFile(relPath, name, content)
	sum, err := inventory.HashFile(full, inventory.BLAKE3)
	require.NoError(f.t, err)
	f.register(id, relPath, name, fileType, int64(len(content)), sum)
}

func (f *fixture) writeFile(relPath, name, content string) string {
	f.t.Helper()
	dir := filepath.Join(f.root, relPath)
	require.NoError(f.t, os.MkdirAll(dir, 0o755))
	full := filepath.Join(dir, name)
	require.NoError(f.t, os.WriteFile(full, []byte(content), 0o644))
	return full
}

func (f *fixture) register(id int64, relPath, name, fileType string, size int64, sum string) {
	f.t.Helper()
	filename, compression := inventory.ParseCompression(name)
	_, err := f.store.AddFile(context.Background(), testArchive, catalog.File{
		ScopeID:     id,
		Filename:    filename,
		Compression: compression,
		FileType:    fileType,
		Size:        size,
		Checksum:    sum,
		Path:        relPath,
	})
	require.NoError(f.t, err)
}

func (f *fixture) open(ctx context.Context) (*catalog.Store, error) {
	return catalog.Open(ctx, f.dbPath)
}

func (f *fixture) catalogPaths(id int64) map[string]string {
	f.t.Helper()
	files, err := f.store.FilesByScope(context.Background(), testArchive, id, "")
	require.NoError(f.t, err)
	out := make(map[string]string, len(files))
	for _, file := range files {
		out[file.Filename+file.Compression] = file.Path
	}
	return out
}

// snapshotTree maps every path below root to its content; directories map
// to "/".
func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		if d.IsDir() {
			out[rel] = "/"
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func skipIfRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
}
