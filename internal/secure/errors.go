package secure

import (
	"errors"
	"fmt"
)

// Kind classifies why a source path was rejected.
type Kind string

const (
	KindNotFound         Kind = "not-found"
	KindPermissionDenied Kind = "permission-denied"
	KindSymlinkRejected  Kind = "symlink-rejected"
	KindWrongType        Kind = "wrong-type"
	KindUnreadable       Kind = "unreadable"
)

var (
	ErrNotFound         = errors.New("source not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrSymlinkRejected  = errors.New("symbolic links are not moved")
	ErrWrongType        = errors.New("not a regular file")
	ErrUnreadable       = errors.New("source is unreadable")

	ErrCrossDevice       = errors.New("destination is on a different device")
	ErrDestinationExists = errors.New("no free name in destination")
)

var kindSentinels = map[Kind]error{
	KindNotFound:         ErrNotFound,
	KindPermissionDenied: ErrPermissionDenied,
	KindSymlinkRejected:  ErrSymlinkRejected,
	KindWrongType:        ErrWrongType,
	KindUnreadable:       ErrUnreadable,
}

// ValidationError rejects a single move. It is never retried with relaxed checks.
type ValidationError struct {
	Kind Kind
	Path string

	// FileType names the offending type for KindWrongType, e.g. "fifo".
	FileType string

	// Err is the underlying errno, if any.
	Err error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Path)
	if e.FileType != "" {
		msg += " is a " + e.FileType
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *ValidationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}
