package engine

import "golang.org/x/sys/unix"

// CheckAccess returns the paths the current user cannot both read and write.
func CheckAccess(paths []string) []string {
	var bad []string
	for _, p := range paths {
		if err := unix.Access(p, unix.R_OK|unix.W_OK); err != nil {
			bad = append(bad, p)
		}
	}
	return bad
}
