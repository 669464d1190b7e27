//go:build !linux && !darwin

package secure

import (
	"context"
	"errors"
	"time"

	"tidy-go/internal/tidy"
)

// SourceInfo describes a validated source file.
type SourceInfo struct {
	Path    string
	Size    int64
	Mode    uint32
	ModTime time.Time
	Dev     uint64
	Ino     uint64
}

// Resolver turns a destination reference into a validated directory.
type Resolver interface {
	Resolve(ctx context.Context, dest tidy.DestinationRef) (string, error)
}

// Mover refuses every move on platforms without descriptor-based validation.
type Mover struct{}

func NewMover(resolver Resolver, logger tidy.Logger) *Mover { return &Mover{} }

func ValidateSource(path string) (*SourceInfo, error) {
	return nil, errors.ErrUnsupported
}

func (m *Mover) Move(ctx context.Context, sourcePath string, dest tidy.DestinationRef) (string, error) {
	return "", errors.ErrUnsupported
}

func (m *Mover) MoveInto(sourcePath, dir string) (string, error) {
	return "", errors.ErrUnsupported
}
