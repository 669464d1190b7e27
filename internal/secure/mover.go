//go:build linux || darwin

package secure

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"tidy-go/internal/tidy"
)

// maxCollisions bounds the "name (n).ext" search.
const maxCollisions = 1000

// Resolver turns a destination reference into a validated directory.
type Resolver interface {
	Resolve(ctx context.Context, dest tidy.DestinationRef) (string, error)
}

// Mover validates sources and moves them into boundary-checked destinations.
type Mover struct {
	resolver Resolver
	logger   tidy.Logger
}

func NewMover(resolver Resolver, logger tidy.Logger) *Mover {
	return &Mover{resolver: resolver, logger: logger}
}

// Move validates sourcePath and renames it into the folder behind dest.
// It returns the new path.
func (m *Mover) Move(ctx context.Context, sourcePath string, dest tidy.DestinationRef) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir, err := m.resolver.Resolve(ctx, dest)
	if err != nil {
		return "", fmt.Errorf("resolving destination %s: %w", dest.Key, err)
	}

	newPath, err := m.MoveInto(sourcePath, dir)
	if err != nil {
		return "", err
	}

	m.logger.Info("file moved", "from", sourcePath, "to", newPath, "destination", dest.Key)
	return newPath, nil
}

// MoveInto validates sourcePath through a single descriptor and renames it
// into dir under a name that does not collide with an existing entry.
// A file already in dir is left where it is.
func (m *Mover) MoveInto(sourcePath, dir string) (string, error) {
	fd, info, err := openSource(sourcePath)
	if err != nil {
		return "", err
	}
	// The descriptor is held across the rename so the validated inode stays pinned.
	defer unix.Close(fd)

	if sameDir(filepath.Dir(sourcePath), dir) {
		return sourcePath, nil
	}

	base := filepath.Base(sourcePath)
	for i := 0; i < maxCollisions; i++ {
		target := filepath.Join(dir, candidateName(base, i))
		err := renameNoReplace(sourcePath, target)
		switch {
		case err == nil:
			if err := m.verifyMoved(info, target); err != nil {
				return "", err
			}
			return target, nil
		case errors.Is(err, unix.EEXIST), errors.Is(err, unix.ENOTEMPTY):
			continue
		case errors.Is(err, unix.EXDEV):
			return "", fmt.Errorf("%w: %s -> %s", ErrCrossDevice, sourcePath, dir)
		default:
			return "", fmt.Errorf("moving %s to %s: %w", sourcePath, target, err)
		}
	}
	return "", fmt.Errorf("%w: %s in %s", ErrDestinationExists, base, dir)
}

// verifyMoved checks that the entry now at target is the inode validated
// through the pinned descriptor. If the source path was swapped between open
// and rename, the entry is renamed back and the move is rejected.
func (m *Mover) verifyMoved(info *SourceInfo, target string) error {
	verr := checkIdentity(info, target)
	if verr == nil {
		return nil
	}
	if err := renameNoReplace(target, info.Path); err != nil {
		m.logger.Error("rolling back swapped source", "from", target, "to", info.Path, "error", err)
		return fmt.Errorf("%w (left at %s: %v)", verr, target, err)
	}
	m.logger.Warn("source swapped during move", "path", info.Path)
	return verr
}

// checkIdentity reports a ValidationError unless path is the same regular
// file info was taken from.
func checkIdentity(info *SourceInfo, path string) error {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return &ValidationError{Kind: KindUnreadable, Path: info.Path, Err: err}
	}
	if uint64(st.Dev) == info.Dev && uint64(st.Ino) == info.Ino {
		return nil
	}

	mode := uint32(st.Mode)
	if mode&unix.S_IFMT == unix.S_IFLNK {
		return &ValidationError{Kind: KindSymlinkRejected, Path: info.Path, FileType: "symlink"}
	}
	fileType := typeName(mode)
	if fileType == "" {
		fileType = "different file"
	}
	return &ValidationError{Kind: KindWrongType, Path: info.Path, FileType: fileType}
}

func sameDir(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// candidateName returns base for n == 0 and "stem (n).ext" otherwise.
func candidateName(base string, n int) string {
	if n == 0 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		// Dotfiles like ".env" have no extension.
		stem, ext = base, ""
	}
	return fmt.Sprintf("%s (%d)%s", stem, n, ext)
}
