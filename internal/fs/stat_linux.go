package fs

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// fileTimes returns the birth and access times of path. Birth time is zero
// when the filesystem does not record it.
func fileTimes(path string, info fs.FileInfo) (created, accessed time.Time) {
	var stx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME|unix.STATX_ATIME, &stx)
	if err == nil {
		if stx.Mask&unix.STATX_BTIME != 0 {
			created = time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
		}
		if stx.Mask&unix.STATX_ATIME != 0 {
			accessed = time.Unix(stx.Atime.Sec, int64(stx.Atime.Nsec))
		}
		return created, accessed
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		accessed = time.Unix(st.Atim.Unix())
	}
	return created, accessed
}
