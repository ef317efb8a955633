// Package platform holds the low-level whole-file copy used when moving
// archive files.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Method is the strategy a copy ended up using.
type Method int

const (
	ReadWrite Method = iota
	CopyFileRange
)

func (m Method) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	default:
		return "unknown"
	}
}

// chunkSize bounds how much is copied between context checks.
const chunkSize = 8 << 20

// errNoRange marks a kernel copy that is unavailable for this pair of files.
var errNoRange = errors.New("copy_file_range unavailable")

// CopyFile copies the first size bytes of src into dst at offset 0. The
// kernel copy is tried first; the read/write path takes over when it is
// unsupported before any byte moved. ctx is checked between chunks.
func CopyFile(ctx context.Context, dst *os.File, src string, size int64) (int64, Method, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, ReadWrite, err
	}
	defer in.Close()

	preallocate(dst, size)

	n, err := rangeCopy(ctx, in, dst, size)
	if !errors.Is(err, errNoRange) {
		return n, CopyFileRange, err
	}
	n, err = readWriteCopy(ctx, in, dst, size)
	return n, ReadWrite, err
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 1<<20)
		return &b
	},
}

func readWriteCopy(ctx context.Context, in, out *os.File, size int64) (int64, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	var off int64
	for off < size {
		if err := ctx.Err(); err != nil {
			return off, err
		}
		n, err := unix.Pread(int(in.Fd()), buf[:min(size-off, int64(len(buf)))], off)
		if err != nil {
			return off, fmt.Errorf("read %s: %w", in.Name(), err)
		}
		if n == 0 {
			return off, fmt.Errorf("read %s: short file, %d of %d bytes", in.Name(), off, size)
		}
		for w := 0; w < n; {
			m, err := unix.Pwrite(int(out.Fd()), buf[w:n], off+int64(w))
			if err != nil {
				return off + int64(w), fmt.Errorf("write %s: %w", out.Name(), err)
			}
			w += m
		}
		off += int64(n)
	}
	return off, nil
}
