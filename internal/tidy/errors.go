package tidy

import (
	"errors"
	"fmt"
)

// ScanError is a folder-level failure. It is collected per location and
// never aborts the rest of a scan.
type ScanError struct {
	LocationKey string
	Path        string
	Err         error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scanning %s (%s): %v", e.LocationKey, e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// ErrorKind classifies failures surfaced by automation.
type ErrorKind string

const (
	ErrorScanFailed              ErrorKind = "scanFailed"
	ErrorBookmarkInvalid         ErrorKind = "bookmarkInvalid"
	ErrorDestinationInaccessible ErrorKind = "destinationInaccessible"
	ErrorPermissionDenied        ErrorKind = "permissionDenied"
)

// Title is the display title for notifications of this kind.
func (k ErrorKind) Title() string {
	switch k {
	case ErrorScanFailed:
		return "Scan Failed"
	case ErrorBookmarkInvalid:
		return "Folder Access Lost"
	case ErrorDestinationInaccessible:
		return "Destination Unavailable"
	case ErrorPermissionDenied:
		return "Permission Denied"
	default:
		return "Automation Error"
	}
}

// NotificationID is the stable identifier used for cooldown bucketing.
func (k ErrorKind) NotificationID() string {
	return string(k)
}

// AutomationError is a failure that drives backoff and user notification.
type AutomationError struct {
	Kind ErrorKind
	Err  error
}

// NewAutomationError wraps err with a kind.
func NewAutomationError(kind ErrorKind, err error) *AutomationError {
	return &AutomationError{Kind: kind, Err: err}
}

func (e *AutomationError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *AutomationError) Unwrap() error { return e.Err }

// KindOf extracts the automation error kind from err, defaulting to scanFailed.
func KindOf(err error) ErrorKind {
	var ae *AutomationError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ErrorScanFailed
}
