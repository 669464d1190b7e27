package tidy

import (
	"context"
	"time"
)

// ScanRun records one pipeline execution.
type ScanRun struct {
	ID            int64
	Trigger       Trigger
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        string // "running", "success" or "error"
	Scanned       int
	Matched       int
	FailedFolders int
}

// ScanHistory persists scan runs.
type ScanHistory interface {
	CreateScanRun(ctx context.Context, trigger Trigger, startedAt time.Time) (*ScanRun, error)
	FinishScanRun(ctx context.Context, run *ScanRun) error

	// ListScanRuns returns the most recent runs, newest first.
	ListScanRuns(ctx context.Context, limit int) ([]*ScanRun, error)
}
