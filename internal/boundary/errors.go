package boundary

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenNotFound means no token is stored under the key.
	ErrTokenNotFound = errors.New("access token not found")

	// ErrDestinationMissing means the token's folder no longer exists.
	// The token is kept; the folder may come back (e.g. a remounted drive).
	ErrDestinationMissing = errors.New("destination folder is missing")

	// ErrNotDirectory means the token resolves to something other than a folder.
	ErrNotDirectory = errors.New("destination is not a directory")
)

// BoundaryError reports a token whose resolved path left the permitted root.
// The token has been removed and must be granted again.
type BoundaryError struct {
	Key      string
	Path     string
	Resolved string
	Root     string
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("access token %q resolves to %s, outside %s", e.Key, e.Resolved, e.Root)
}
