// Package fsutil provides small filesystem helpers not covered by the
// standard library, namely directory birth time.
package fsutil

import (
	"time"

	"golang.org/x/sys/unix"
)

// BirthTime returns the directory's creation time via statx, when the
// filesystem and kernel support it. ok is false if birth time could not
// be determined, in which case the caller should fall back to mtime.
func BirthTime(path string) (t time.Time, ok bool) {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err != nil {
		return time.Time{}, false
	}
	if stx.Mask&unix.STATX_BTIME == 0 {
		return time.Time{}, false
	}
	return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)), true
}
