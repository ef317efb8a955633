package inventory

import (
	"context"
	"crypto/md5" //nolint:gosec // test fixture
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"github.com/bamsammich/arcmgr/internal/catalog"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in, name, comp string
	}{
		{"img.fits.fz", "img.fits", ".fz"},
		{"cat.csv.gz", "cat.csv", ".gz"},
		{"a.tar.bz2", "a.tar", ".bz2"},
		{"b.xz", "b", ".xz"},
		{"c.zst", "c", ".zst"},
		{"plain.fits", "plain.fits", ""},
		{".gz", ".gz", ""},
		{"gz", "gz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, comp := ParseCompression(tt.in)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.comp, comp)
		})
	}
}

func TestInventoryAddKeepsDuplicates(t *testing.T) {
	inv := New()
	a := FileRecord{Filename: "f", RelPath: "x", Size: 1}
	b := FileRecord{Filename: "f", RelPath: "y", Size: 2}
	c := FileRecord{Filename: "f", RelPath: "z", Size: 3}
	inv.Add(a)
	inv.Add(b)
	inv.Add(c)
	inv.Add(FileRecord{Filename: "f", Compression: ".fz", RelPath: "x"})

	assert.Equal(t, a, inv.Files["f"], "first sighting wins")
	assert.Equal(t, []FileRecord{a, b, c}, inv.Duplicates["f"])
	assert.NotContains(t, inv.Duplicates, "f.fz")
	assert.Equal(t, []string{"f", "f.fz"}, inv.Keys())
	assert.Equal(t, 2, inv.Len())
	assert.Equal(t, int64(1), inv.TotalSize())
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.txt")
	writeFile(t, path, "hello")

	sum, err := HashFile(path, MD5)
	require.NoError(t, err)
	md := md5.Sum([]byte("hello")) //nolint:gosec // test fixture
	assert.Equal(t, hex.EncodeToString(md[:]), sum)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)

	sum, err = HashFile(path, BLAKE3)
	require.NoError(t, err)
	b3 := blake3.Sum256([]byte("hello"))
	assert.Equal(t, hex.EncodeToString(b3[:]), sum)

	sum, err = HashFile(path, XXHash)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64String("hello")), sum)

	_, err = HashFile(filepath.Join(t.TempDir(), "missing"), MD5)
	require.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	for _, a := range Algorithms {
		got, err := ParseAlgorithm(string(a))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	_, err := ParseAlgorithm("sha1")
	require.Error(t, err)
}

func TestCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "checksums.db")
	c, err := OpenCache(path)
	require.NoError(t, err)

	key := CacheKey{Path: "/a/f", Size: 10, Ino: 7, ModTime: 100, Algorithm: MD5}
	_, ok, err := c.Lookup(key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Store(key, "abc"))
	sum, ok, err := c.Lookup(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", sum)

	changed := key
	changed.ModTime = 101
	_, ok, err = c.Lookup(changed)
	require.NoError(t, err)
	assert.False(t, ok, "mtime change is a miss")

	other := key
	other.Algorithm = BLAKE3
	_, ok, err = c.Lookup(other)
	require.NoError(t, err)
	assert.False(t, ok, "algorithm is part of the key")

	require.NoError(t, c.Close())

	c, err = OpenCache(path)
	require.NoError(t, err)
	defer c.Close()
	sum, ok, err = c.Lookup(key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", sum)
}

func TestNilCacheIsDisabled(t *testing.T) {
	c, err := OpenCache("")
	require.NoError(t, err)
	assert.Nil(t, c)

	require.NoError(t, c.Store(CacheKey{Path: "x"}, "sum"))
	_, ok, err := c.Lookup(CacheKey{Path: "x"})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, c.Close())
}

func TestScanDisk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a/b/c/raw/img1.fits.fz"), "compressed")
	writeFile(t, filepath.Join(root, "a/b/c/raw/img1.fits"), "plain")
	writeFile(t, filepath.Join(root, "a/b/c/log/run.log"), "log")
	writeFile(t, filepath.Join(root, "a/b/c/log/old/run.log"), "older log")
	writeFile(t, filepath.Join(root, "a/b/other/skip.txt"), "outside")
	require.NoError(t, os.Symlink("run.log", filepath.Join(root, "a/b/c/log/link.log")))

	var seen int
	inv, err := ScanDisk(context.Background(), ScanConfig{
		Root:     root,
		RelPath:  "a/b/c",
		Checksum: true,
		OnFile:   func(FileRecord) { seen++ },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"img1.fits", "img1.fits.fz", "run.log"}, inv.Keys())
	assert.Equal(t, 4, seen)

	fz := inv.Files["img1.fits.fz"]
	assert.Equal(t, "img1.fits", fz.Filename)
	assert.Equal(t, ".fz", fz.Compression)
	assert.Equal(t, "a/b/c/raw", fz.RelPath)
	assert.Equal(t, int64(len("compressed")), fz.Size)
	assert.Equal(t, filepath.Join(root, "a/b/c/raw/img1.fits.fz"), fz.FullPath)

	want := blake3.Sum256([]byte("compressed"))
	assert.Equal(t, hex.EncodeToString(want[:]), fz.Checksum)

	require.Len(t, inv.Duplicates["run.log"], 2)
	paths := []string{inv.Duplicates["run.log"][0].RelPath, inv.Duplicates["run.log"][1].RelPath}
	assert.ElementsMatch(t, []string{"a/b/c/log", "a/b/c/log/old"}, paths)
}

func TestScanDiskNoChecksum(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "d/f.txt"), "x")

	inv, err := ScanDisk(context.Background(), ScanConfig{Root: root, RelPath: "d"})
	require.NoError(t, err)
	assert.Empty(t, inv.Files["f.txt"].Checksum)
}

func TestScanDiskUsesCache(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "d/f.txt")
	writeFile(t, path, "content")

	cache, err := OpenCache(filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	defer cache.Close()

	cfg := ScanConfig{Root: root, RelPath: "d", Checksum: true, Algorithm: MD5, Cache: cache}
	inv, err := ScanDisk(context.Background(), cfg)
	require.NoError(t, err)
	first := inv.Files["f.txt"].Checksum

	info, err := os.Stat(path)
	require.NoError(t, err)
	key := CacheKey{Path: path, Size: info.Size(), ModTime: info.ModTime().UnixNano(), Algorithm: MD5}
	key.Ino = inodeOf(t, info)
	require.NoError(t, cache.Store(key, "cached-sum"))

	inv, err = ScanDisk(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first, inv.Files["f.txt"].Checksum)
	assert.Equal(t, "cached-sum", inv.Files["f.txt"].Checksum)
}

func TestScanDiskMissingRoot(t *testing.T) {
	_, err := ScanDisk(context.Background(), ScanConfig{Root: t.TempDir(), RelPath: "nope"})
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestScanDiskCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "d/f"), "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ScanDisk(ctx, ScanConfig{Root: root, RelPath: "d"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiskInfo(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x/y/f.fits.gz"), "gz")

	rec, err := DiskInfo(root, "x/y", "f.fits.gz", true, MD5, nil)
	require.NoError(t, err)
	assert.Equal(t, "f.fits", rec.Filename)
	assert.Equal(t, ".gz", rec.Compression)
	assert.Equal(t, "x/y", rec.RelPath)
	assert.Equal(t, int64(2), rec.Size)
	assert.NotEmpty(t, rec.Checksum)

	_, err = DiskInfo(root, "x", "f.fits.gz", false, MD5, nil)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func newCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	ctx := context.Background()
	s, err := catalog.Open(ctx, filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.AddArchive(ctx, "home", "/archive"))
	return s
}

func TestFetchCatalog(t *testing.T) {
	ctx := context.Background()
	s := newCatalog(t)
	id, err := s.AddScope(ctx, catalog.Scope{ReqNum: 1, UnitName: "u", AttNum: 1, RelPath: "a/b/c"})
	require.NoError(t, err)
	other, err := s.AddScope(ctx, catalog.Scope{ReqNum: 2, UnitName: "u", AttNum: 1, RelPath: "q/r/s"})
	require.NoError(t, err)

	mustAdd := func(f catalog.File) int64 {
		fid, err := s.AddFile(ctx, "home", f)
		require.NoError(t, err)
		return fid
	}
	mustAdd(catalog.File{ScopeID: id, Filename: "img.fits", Compression: ".fz", FileType: "raw", Size: 3, Path: "a/b/c/raw/"})
	mustAdd(catalog.File{ScopeID: id, Filename: "run.log", FileType: "log", Size: 4, Path: "a/b/c/log"})
	elsewhere := mustAdd(catalog.File{ScopeID: other, Filename: "run.log", FileType: "log", Size: 4, Path: "q/r/s"})

	inv, err := FetchCatalog(ctx, s, FetchConfig{Archive: "home", ScopeID: id})
	require.NoError(t, err)
	assert.Equal(t, []string{"img.fits.fz", "run.log"}, inv.Keys())
	assert.Equal(t, "a/b/c/raw", inv.Files["img.fits.fz"].RelPath)

	require.Len(t, inv.Duplicates["run.log"], 2, "row in another scope is a catalog duplicate")
	assert.Equal(t, elsewhere, inv.Duplicates["run.log"][1].ID)
	assert.NotContains(t, inv.Duplicates, "img.fits.fz")

	inv, err = FetchCatalog(ctx, s, FetchConfig{Archive: "home", ScopeID: id, FileType: "raw"})
	require.NoError(t, err)
	assert.Equal(t, []string{"img.fits.fz"}, inv.Keys())

	inv, err = FetchCatalog(ctx, s, FetchConfig{Archive: "home", RelPath: "a/b/c/raw/"})
	require.NoError(t, err)
	assert.Equal(t, []string{"img.fits.fz"}, inv.Keys())

	_, err = FetchCatalog(ctx, s, FetchConfig{Archive: "home", RelPath: "a/b/c", FileType: "raw"})
	require.Error(t, err, "file type without a scope")

	_, err = FetchCatalog(ctx, s, FetchConfig{Archive: "home"})
	require.Error(t, err)
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	s := newCatalog(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a/b/c/f.txt"), "x")

	id, err := s.AddScope(ctx, catalog.Scope{ReqNum: 1, UnitName: "u", AttNum: 1, RelPath: "a/b/c"})
	require.NoError(t, err)
	_, err = s.AddFile(ctx, "home", catalog.File{ScopeID: id, Filename: "f.txt", Size: 1, Path: "a/b/c"})
	require.NoError(t, err)

	disk, cat, err := Collect(ctx, s,
		ScanConfig{Root: root, RelPath: "a/b/c"},
		FetchConfig{Archive: "home", ScopeID: id})
	require.NoError(t, err)
	assert.Equal(t, []string{"f.txt"}, disk.Keys())
	assert.Equal(t, []string{"f.txt"}, cat.Keys())

	_, _, err = Collect(ctx, s,
		ScanConfig{Root: root, RelPath: "missing"},
		FetchConfig{Archive: "home", ScopeID: id})
	require.ErrorIs(t, err, fs.ErrNotExist)
}

type recordingHandler struct {
	ingested []string
}

func (h *recordingHandler) HasContentsIngested(_ context.Context, paths []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (h *recordingHandler) IngestContents(_ context.Context, paths []string) error {
	h.ingested = append(h.ingested, paths...)
	return nil
}

func (h *recordingHandler) CheckValid(_ context.Context, paths []string) (map[string]bool, error) {
	return allTrue(paths), nil
}

func TestHandlerRegistry(t *testing.T) {
	ctx := context.Background()

	h := Handler("unregistered")
	ok, err := h.HasContentsIngested(ctx, []string{"/a"})
	require.NoError(t, err)
	assert.True(t, ok["/a"])
	require.NoError(t, h.IngestContents(ctx, []string{"/a"}))

	rh := &recordingHandler{}
	RegisterHandler("cat_test", rh)
	require.NoError(t, Handler("cat_test").IngestContents(ctx, []string{"/b"}))
	assert.Equal(t, []string{"/b"}, rh.ingested)
}
