package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/bamsammich/arcmgr/internal/platform"
)

const copyBufSize = 1 << 20

// Copier copies archive files, preserving mode, times, xattrs and (when
// permitted) ownership. Data lands in a hidden tmp file that is renamed into
// place once complete, so dst either does not exist or is whole.
type Copier struct {
	Limiter *rate.Limiter // nil means unlimited
}

// Copy copies src to dst and returns the bytes written. dst's parent must
// exist. An existing dst is an error.
func (c *Copier) Copy(ctx context.Context, src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, err
	}
	if _, err := os.Lstat(dst); err == nil {
		return 0, fmt.Errorf("copy %s: destination %s already exists", src, dst)
	}

	dir := filepath.Dir(dst)
	tmpName := fmt.Sprintf(".%s.%s.arcmgr-tmp", filepath.Base(dst), uuid.New().String()[:8])
	tmpPath := filepath.Join(dir, tmpName)

	RegisterTmp(tmpPath)
	defer func() {
		DeregisterTmp(tmpPath)
		_ = os.Remove(tmpPath) // no-op after rename
	}()

	tmpFd, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return 0, fmt.Errorf("create tmp %s: %w", tmpPath, err)
	}

	var n int64
	if info.Size() > 0 {
		n, err = c.copyData(ctx, src, tmpFd, info.Size())
		if err != nil {
			tmpFd.Close()
			return 0, fmt.Errorf("copy data %s: %w", src, err)
		}
	}

	if err := setMetadata(src, info, tmpFd); err != nil {
		tmpFd.Close()
		return 0, fmt.Errorf("set metadata %s: %w", dst, err)
	}
	if err := tmpFd.Close(); err != nil {
		return 0, fmt.Errorf("close tmp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return 0, fmt.Errorf("rename %s -> %s: %w", tmpPath, dst, err)
	}
	return n, nil
}

func (c *Copier) copyData(ctx context.Context, src string, dst *os.File, size int64) (int64, error) {
	if c.Limiter == nil {
		n, method, err := platform.CopyFile(ctx, dst, src, size)
		if err == nil {
			slog.Debug("copied", "src", src, "bytes", n, "method", method)
		}
		return n, err
	}

	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.CopyBuffer(dst, newRateLimitedReader(ctx, f, c.Limiter), make([]byte, copyBufSize))
}

func setMetadata(src string, info os.FileInfo, fd *os.File) error {
	rawFd := int(fd.Fd())

	if err := unix.Fchmod(rawFd, uint32(info.Mode().Perm())); err != nil {
		return fmt.Errorf("fchmod: %w", err)
	}

	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if err := setTimes(rawFd, fd.Name(), st); err != nil {
		return err
	}

	copyXattrs(src, rawFd)

	// Ownership last; may fail without CAP_CHOWN.
	_ = unix.Fchown(rawFd, int(st.Uid), int(st.Gid))
	return nil
}

func copyXattrs(srcPath string, dstFd int) {
	sz, err := unix.Listxattr(srcPath, nil)
	if err != nil || sz == 0 {
		return
	}
	buf := make([]byte, sz)
	sz, err = unix.Listxattr(srcPath, buf)
	if err != nil {
		return
	}
	for _, name := range parseXattrNames(buf[:sz]) {
		val, err := getXattr(srcPath, name)
		if err != nil {
			continue
		}
		_ = unix.Fsetxattr(dstFd, name, val, 0)
	}
}

func getXattr(path, name string) ([]byte, error) {
	sz, err := unix.Getxattr(path, name, nil)
	if err != nil || sz == 0 {
		return nil, err
	}
	buf := make([]byte, sz)
	_, err = unix.Getxattr(path, name, buf)
	return buf, err
}

// parseXattrNames splits a NUL-separated listxattr buffer.
func parseXattrNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}
