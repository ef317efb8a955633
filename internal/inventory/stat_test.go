package inventory

import (
	"os"
	"syscall"
	"testing"
)

func inodeOf(t *testing.T, info os.FileInfo) uint64 {
	t.Helper()
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		t.Skip("no inode on this platform")
	}
	return stat.Ino
}
