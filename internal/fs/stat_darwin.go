package fs

import (
	"io/fs"
	"syscall"
	"time"
)

func fileTimes(path string, info fs.FileInfo) (created, accessed time.Time) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return time.Time{}, time.Time{}
	}
	return time.Unix(st.Birthtimespec.Unix()), time.Unix(st.Atimespec.Unix())
}
