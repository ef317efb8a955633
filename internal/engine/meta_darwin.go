//go:build darwin

package engine

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setTimes copies atime and mtime from st by path; darwin has no AT_EMPTY_PATH.
func setTimes(_ int, fdPath string, st *syscall.Stat_t) error {
	times := []unix.Timespec{
		unix.NsecToTimespec(syscall.TimespecToNsec(st.Atimespec)),
		unix.NsecToTimespec(syscall.TimespecToNsec(st.Mtimespec)),
	}
	if err := unix.UtimesNanoAt(unix.AT_FDCWD, fdPath, times, 0); err != nil {
		return fmt.Errorf("utimensat: %w", err)
	}
	return nil
}
