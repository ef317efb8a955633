//go:build linux

package engine

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setTimes copies atime and mtime from st onto the open file.
func setTimes(rawFd int, fdPath string, st *syscall.Stat_t) error {
	times := []unix.Timespec{
		unix.NsecToTimespec(syscall.TimespecToNsec(st.Atim)),
		unix.NsecToTimespec(syscall.TimespecToNsec(st.Mtim)),
	}
	if err := unix.UtimesNanoAt(rawFd, "", times, unix.AT_EMPTY_PATH); err != nil {
		// Older kernels reject AT_EMPTY_PATH.
		if err2 := unix.UtimesNanoAt(unix.AT_FDCWD, fdPath, times, 0); err2 != nil {
			return fmt.Errorf("utimensat: %w", err)
		}
	}
	return nil
}
