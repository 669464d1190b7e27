package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tidy-go/internal/tidy"
)

func (s *SQLiteDatabase) CreateScanRun(ctx context.Context, trigger tidy.Trigger, startedAt time.Time) (*tidy.ScanRun, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_runs (trigger_kind, started_at, status) VALUES (?, ?, 'running')`,
		string(trigger), startedAt)
	if err != nil {
		return nil, fmt.Errorf("creating scan run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating scan run: %w", err)
	}
	return &tidy.ScanRun{ID: id, Trigger: trigger, StartedAt: startedAt, Status: "running"}, nil
}

func (s *SQLiteDatabase) FinishScanRun(ctx context.Context, run *tidy.ScanRun) error {
	var finished sql.NullTime
	if run.FinishedAt != nil {
		finished = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_runs SET finished_at = ?, status = ?, scanned = ?, matched = ?, failed_folders = ?
		WHERE id = ?`,
		finished, run.Status, run.Scanned, run.Matched, run.FailedFolders, run.ID)
	if err != nil {
		return fmt.Errorf("finishing scan run %d: %w", run.ID, err)
	}
	return nil
}

// ListScanRuns returns the most recent runs, newest first.
func (s *SQLiteDatabase) ListScanRuns(ctx context.Context, limit int) ([]*tidy.ScanRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, started_at, finished_at, status, scanned, matched, failed_folders
		FROM scan_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scan runs: %w", err)
	}
	defer rows.Close()

	var out []*tidy.ScanRun
	for rows.Next() {
		var (
			run      tidy.ScanRun
			trigger  string
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &trigger, &run.StartedAt, &finished, &run.Status,
			&run.Scanned, &run.Matched, &run.FailedFolders); err != nil {
			return nil, fmt.Errorf("scanning scan run: %w", err)
		}
		run.Trigger = tidy.Trigger(trigger)
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

// MaxScanRunID returns the highest scan run id, or 0 if there are none.
func (s *SQLiteDatabase) MaxScanRunID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM scan_runs`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("reading max scan run id: %w", err)
	}
	return id, nil
}
