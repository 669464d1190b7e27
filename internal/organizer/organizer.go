// Package organizer moves matched records into their destinations.
package organizer

import (
	"context"
	"errors"
	"fmt"

	"tidy-go/internal/boundary"
	"tidy-go/internal/secure"
	"tidy-go/internal/tidy"
)

// Mover performs one validated move and returns the new path.
type Mover interface {
	Move(ctx context.Context, sourcePath string, dest tidy.DestinationRef) (string, error)
}

// Result summarizes an organize run.
type Result struct {
	Moved []*tidy.FileRecord

	// Failures maps a source path to the reason its move was refused.
	Failures map[string]error

	// Issues holds one automation error per failed move that the user
	// should hear about.
	Issues []*tidy.AutomationError

	// Skipped counts ready records below the confidence floor.
	Skipped int
}

// Organizer moves ready records and updates the store.
type Organizer struct {
	records tidy.RecordStore
	mover   Mover
	logger  tidy.Logger
}

func New(records tidy.RecordStore, mover Mover, logger tidy.Logger) *Organizer {
	return &Organizer{records: records, mover: mover, logger: logger}
}

// OrganizeReady moves every ready record whose confidence is at least minConfidence.
func (o *Organizer) OrganizeReady(ctx context.Context, minConfidence float64) (*Result, error) {
	ready, err := o.records.ListRecords(ctx, tidy.RecordFilter{Status: tidy.StatusReady})
	if err != nil {
		return nil, fmt.Errorf("listing ready records: %w", err)
	}
	return o.Organize(ctx, ready, minConfidence)
}

// Organize moves the given records. A failed move never stops the others;
// it is reported in the result.
func (o *Organizer) Organize(ctx context.Context, records []*tidy.FileRecord, minConfidence float64) (*Result, error) {
	res := &Result{Failures: make(map[string]error)}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if rec.Status != tidy.StatusReady || rec.Destination == nil || rec.Confidence == nil || *rec.Confidence < minConfidence {
			res.Skipped++
			continue
		}

		moved, err := o.OrganizeRecord(ctx, rec)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.Failures[rec.Path] = err
			if kind, notify := Classify(err); notify {
				res.Issues = append(res.Issues, tidy.NewAutomationError(kind, err))
			}
			continue
		}
		res.Moved = append(res.Moved, moved)
	}

	o.logger.Info("organize finished", "moved", len(res.Moved), "failed", len(res.Failures), "skipped", res.Skipped)
	return res, nil
}

// OrganizeRecord moves a single record to its suggested destination and
// marks it organized. A record whose file has vanished is deleted.
func (o *Organizer) OrganizeRecord(ctx context.Context, rec *tidy.FileRecord) (*tidy.FileRecord, error) {
	if rec.Destination == nil {
		return nil, fmt.Errorf("record has no destination: %s", rec.Path)
	}

	newPath, err := o.mover.Move(ctx, rec.Path, *rec.Destination)
	if err != nil {
		o.logger.Warn("move refused", "path", rec.Path, "destination", rec.Destination.Key, "error", err)
		if errors.Is(err, secure.ErrNotFound) {
			if delErr := o.records.DeleteRecord(ctx, rec.Path); delErr != nil {
				return nil, fmt.Errorf("removing record of vanished file: %w", delErr)
			}
		}
		return nil, err
	}

	updated := *rec
	updated.MarkOrganized(newPath)
	if err := o.records.UpdateRecord(ctx, &updated); err != nil {
		return nil, fmt.Errorf("recording move of %s: %w", rec.Path, err)
	}
	return &updated, nil
}

// Classify maps a move error to the automation error kind shown to the user.
// It returns false for failures that need no notification, such as a file
// that was deleted before it could be moved.
func Classify(err error) (tidy.ErrorKind, bool) {
	var be *boundary.BoundaryError
	var ae *tidy.AutomationError
	switch {
	case errors.As(err, &ae):
		return ae.Kind, true
	case errors.Is(err, secure.ErrNotFound):
		return "", false
	case errors.As(err, &be):
		return tidy.ErrorBookmarkInvalid, true
	case errors.Is(err, boundary.ErrTokenNotFound),
		errors.Is(err, boundary.ErrDestinationMissing),
		errors.Is(err, boundary.ErrNotDirectory),
		errors.Is(err, secure.ErrCrossDevice),
		errors.Is(err, secure.ErrDestinationExists):
		return tidy.ErrorDestinationInaccessible, true
	case errors.Is(err, secure.ErrPermissionDenied):
		return tidy.ErrorPermissionDenied, true
	default:
		return tidy.ErrorScanFailed, true
	}
}
