//go:build linux

package platform

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func rangeCopy(ctx context.Context, in, out *os.File, size int64) (int64, error) {
	var roff, woff int64
	for roff < size {
		if err := ctx.Err(); err != nil {
			return roff, err
		}
		n, err := unix.CopyFileRange(int(in.Fd()), &roff, int(out.Fd()), &woff, int(min(size-roff, chunkSize)), 0)
		if err != nil {
			if roff == 0 && fallback(err) {
				return 0, errNoRange
			}
			return roff, fmt.Errorf("copy_file_range %s: %w", in.Name(), err)
		}
		if n == 0 {
			return roff, fmt.Errorf("copy %s: short file, %d of %d bytes", in.Name(), roff, size)
		}
	}
	return roff, nil
}

func fallback(err error) bool {
	for _, errno := range []error{unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP, unix.EOPNOTSUPP} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// preallocate reserves size bytes for out. Filesystems without fallocate
// are left alone.
func preallocate(out *os.File, size int64) {
	if size > 0 {
		_ = unix.Fallocate(int(out.Fd()), 0, 0, size)
	}
}
