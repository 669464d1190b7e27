package app

import (
	"context"
	"fmt"
	"time"

	"tidy-go/internal/pipeline"
	"tidy-go/internal/tidy"
)

// Scan run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// ScanOperation tracks one scan. Operations are created in memory with
// ID=0 and get an auto-increment ID when persisted as a scan run.
type ScanOperation struct {
	ID      int64
	Trigger tidy.Trigger
	Status  string
	run     *tidy.ScanRun
}

// NewScanOperation creates a new in-memory scan operation.
func NewScanOperation(trigger tidy.Trigger) *ScanOperation {
	return &ScanOperation{
		Trigger: trigger,
		Status:  StatusRunning,
	}
}

// Persisted returns true if this operation has been saved to the database.
func (op *ScanOperation) Persisted() bool {
	return op.ID != 0
}

// Start records the operation as a running scan.
func (op *ScanOperation) Start(ctx context.Context, history tidy.ScanHistory, now time.Time) error {
	if op.Persisted() {
		return nil
	}
	run, err := history.CreateScanRun(ctx, op.Trigger, now)
	if err != nil {
		return fmt.Errorf("persisting scan run: %w", err)
	}
	op.ID = run.ID
	op.run = run
	return nil
}

// Finish stores the outcome. A nil outcome with a nil error records an empty success.
func (op *ScanOperation) Finish(ctx context.Context, history tidy.ScanHistory, now time.Time, outcome *pipeline.ScanOutcome, scanErr error) error {
	if !op.Persisted() {
		return fmt.Errorf("scan operation was never started")
	}

	op.Status = StatusSuccess
	if scanErr != nil {
		op.Status = StatusError
	}

	op.run.Status = op.Status
	op.run.FinishedAt = &now
	if outcome != nil {
		op.run.Scanned = len(outcome.Records)
		op.run.Matched = outcome.Matched()
		op.run.FailedFolders = outcome.Failed()
	}
	if err := history.FinishScanRun(ctx, op.run); err != nil {
		return fmt.Errorf("finishing scan run: %w", err)
	}
	return nil
}
