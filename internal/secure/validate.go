//go:build linux || darwin

// Package secure moves files without trusting the path between check and use.
//
// A source is opened once with O_NOFOLLOW and every check runs against that
// descriptor. The path is not stat'ed again before the rename.
package secure

import (
	"errors"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// SourceInfo describes a validated source file, taken from its descriptor.
type SourceInfo struct {
	Path    string
	Size    int64
	Mode    uint32
	ModTime time.Time
	Dev     uint64
	Ino     uint64
}

const openFlags = unix.O_RDONLY | unix.O_NOFOLLOW | unix.O_NONBLOCK | unix.O_CLOEXEC

// ValidateSource checks that path is a readable regular file that is not a symlink.
func ValidateSource(path string) (*SourceInfo, error) {
	fd, info, err := openSource(path)
	if err != nil {
		return nil, err
	}
	unix.Close(fd)
	return info, nil
}

// openSource opens and validates path. On success the caller owns fd.
func openSource(path string) (int, *SourceInfo, error) {
	fd, err := openNoFollow(path)
	if err != nil {
		return -1, nil, classifyOpenError(path, err)
	}

	info, err := checkDescriptor(fd, path)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, info, nil
}

func openNoFollow(path string) (int, error) {
	for {
		fd, err := unix.Open(path, openFlags, 0)
		if err == unix.EINTR {
			continue
		}
		return fd, err
	}
}

func checkDescriptor(fd int, path string) (*SourceInfo, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, &ValidationError{Kind: KindUnreadable, Path: path, Err: err}
	}

	mode := uint32(st.Mode)
	if fileType := typeName(mode); fileType != "" {
		kind := KindWrongType
		if mode&unix.S_IFMT == unix.S_IFLNK {
			kind = KindSymlinkRejected
		}
		return nil, &ValidationError{Kind: kind, Path: path, FileType: fileType}
	}

	if mode&unix.S_IRUSR == 0 {
		return nil, &ValidationError{Kind: KindPermissionDenied, Path: path}
	}

	return &SourceInfo{
		Path:    path,
		Size:    st.Size,
		Mode:    mode,
		ModTime: time.Unix(st.Mtim.Unix()),
		Dev:     uint64(st.Dev),
		Ino:     uint64(st.Ino),
	}, nil
}

// typeName returns "" for regular files and a display name for everything else.
func typeName(mode uint32) string {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return ""
	case unix.S_IFDIR:
		return "directory"
	case unix.S_IFCHR:
		return "character device"
	case unix.S_IFBLK:
		return "block device"
	case unix.S_IFIFO:
		return "fifo"
	case unix.S_IFSOCK:
		return "socket"
	case unix.S_IFLNK:
		return "symlink"
	default:
		return "unknown file type"
	}
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENOTDIR):
		return &ValidationError{Kind: KindNotFound, Path: path, Err: err}
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return &ValidationError{Kind: KindPermissionDenied, Path: path, Err: err}
	case errors.Is(err, unix.ELOOP), errors.Is(err, unix.EMLINK):
		return &ValidationError{Kind: KindSymlinkRejected, Path: path, FileType: "symlink", Err: err}
	case errors.Is(err, unix.ENXIO), errors.Is(err, unix.EOPNOTSUPP):
		// Sockets cannot be opened. The type is read from the path for the
		// report only; nothing is done with the path afterwards.
		fileType := "socket"
		if fi, lerr := os.Lstat(path); lerr == nil && fi.Mode()&os.ModeSocket == 0 {
			fileType = "special file"
		}
		return &ValidationError{Kind: KindWrongType, Path: path, FileType: fileType, Err: err}
	default:
		return &ValidationError{Kind: KindUnreadable, Path: path, Err: err}
	}
}
