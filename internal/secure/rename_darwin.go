package secure

import (
	"golang.org/x/sys/unix"
)

// renameNoReplace renames src to dst and fails with EEXIST if dst exists.
func renameNoReplace(src, dst string) error {
	return unix.RenameatxNp(unix.AT_FDCWD, src, unix.AT_FDCWD, dst, unix.RENAME_EXCL)
}
