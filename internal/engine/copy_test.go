package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopierPreservesContentAndMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.fits")
	dst := filepath.Join(dir, "dst.fits")
	data := bytes.Repeat([]byte("ARCHIVE!"), 64*1024)
	require.NoError(t, os.WriteFile(src, data, 0o640))
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	c := &Copier{}
	n, err := c.Copy(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime))
	assert.Zero(t, PendingTmp())
}

func TestCopierEmptyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(src, nil, 0o644))

	n, err := (&Copier{}).Copy(context.Background(), src, filepath.Join(dir, "copy"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, filepath.Join(dir, "copy"))
}

func TestCopierRefusesExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	_, err := (&Copier{}).Copy(context.Background(), src, dst)
	require.Error(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
}

func TestCopierRateLimited(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	data := bytes.Repeat([]byte("z"), 8*1024)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	c := &Copier{Limiter: NewBWLimiter(1 << 20)}
	n, err := c.Copy(context.Background(), src, filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no tmp file left behind")
}

func TestParseXattrNames(t *testing.T) {
	assert.Equal(t, []string{"user.a", "user.bb"}, parseXattrNames([]byte("user.a\x00user.bb\x00")))
	assert.Nil(t, parseXattrNames(nil))
}

func TestCleanupTmpFiles(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, ".x.arcmgr-tmp")
	require.NoError(t, os.WriteFile(tmp, nil, 0o644))
	RegisterTmp(tmp)

	assert.GreaterOrEqual(t, CleanupTmpFiles(), 1)
	assert.NoFileExists(t, tmp)
}
