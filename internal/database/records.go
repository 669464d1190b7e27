package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"tidy-go/internal/tidy"
)

const recordColumns = `id, path, name, extension, size, created_at, modified_at, accessed_at,
	location, location_key, status, destination_key, destination_name, confidence,
	match_reason, matched_rule_id, rejected_destination_name, rejection_count, organized_path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*tidy.FileRecord, error) {
	var (
		r                           tidy.FileRecord
		location, status            string
		created, modified, accessed sql.NullTime
		destKey, destName           sql.NullString
		confidence                  sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.Path, &r.Name, &r.Extension, &r.Size, &created, &modified, &accessed,
		&location, &r.LocationKey, &status, &destKey, &destName, &confidence,
		&r.MatchReason, &r.MatchedRuleID, &r.RejectedDestinationName, &r.RejectionCount, &r.OrganizedPath)
	if err != nil {
		return nil, err
	}

	r.CreatedAt = timeOrZero(created)
	r.ModifiedAt = timeOrZero(modified)
	r.AccessedAt = timeOrZero(accessed)
	r.Location = tidy.SourceLocation(location)
	r.Status = tidy.Status(status)
	if destKey.Valid {
		r.Destination = &tidy.DestinationRef{Key: destKey.String, DisplayName: destName.String}
	}
	if confidence.Valid {
		c := confidence.Float64
		r.Confidence = &c
	}
	return &r, nil
}

func recordArgs(r *tidy.FileRecord) []any {
	var destKey, destName sql.NullString
	if r.Destination != nil {
		destKey = sql.NullString{String: r.Destination.Key, Valid: true}
		destName = sql.NullString{String: r.Destination.DisplayName, Valid: true}
	}
	var confidence sql.NullFloat64
	if r.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *r.Confidence, Valid: true}
	}
	return []any{
		r.ID, r.Path, r.Name, r.Extension, r.Size,
		nullTime(r.CreatedAt), nullTime(r.ModifiedAt), nullTime(r.AccessedAt),
		string(r.Location), r.LocationKey, string(r.Status), destKey, destName, confidence,
		r.MatchReason, r.MatchedRuleID, r.RejectedDestinationName, r.RejectionCount, r.OrganizedPath,
	}
}

func upsertRecord(ctx context.Context, q queryer, r *tidy.FileRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO file_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			id = excluded.id,
			name = excluded.name,
			extension = excluded.extension,
			size = excluded.size,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			accessed_at = excluded.accessed_at,
			location = excluded.location,
			location_key = excluded.location_key,
			status = excluded.status,
			destination_key = excluded.destination_key,
			destination_name = excluded.destination_name,
			confidence = excluded.confidence,
			match_reason = excluded.match_reason,
			matched_rule_id = excluded.matched_rule_id,
			rejected_destination_name = excluded.rejected_destination_name,
			rejection_count = excluded.rejection_count,
			organized_path = excluded.organized_path`,
		recordArgs(r)...)
	if err != nil {
		return fmt.Errorf("upserting record %s: %w", r.Path, err)
	}
	return nil
}

// ApplyScan upserts the batch and prunes vanished records in one transaction.
func (s *SQLiteDatabase) ApplyScan(ctx context.Context, batch tidy.ScanBatch) ([]*tidy.FileRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	seen := make(map[string]bool, len(batch.Records))
	for _, r := range batch.Records {
		if err := upsertRecord(ctx, tx, r); err != nil {
			return nil, err
		}
		seen[r.Path] = true
	}

	for _, key := range batch.PruneLocationKeys {
		if err := pruneLocation(ctx, tx, key, seen); err != nil {
			return nil, err
		}
	}

	persisted := make([]*tidy.FileRecord, 0, len(batch.Records))
	for _, r := range batch.Records {
		got, err := findRecordByPath(ctx, tx, r.Path)
		if err != nil {
			return nil, err
		}
		if got != nil {
			persisted = append(persisted, got)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing scan: %w", err)
	}

	sortRecords(persisted)
	return persisted, nil
}

func pruneLocation(ctx context.Context, tx *sql.Tx, key string, keep map[string]bool) error {
	rows, err := tx.QueryContext(ctx,
		`SELECT path FROM file_records WHERE location_key = ? AND status != ?`,
		key, string(tidy.StatusOrganized))
	if err != nil {
		return fmt.Errorf("listing records for %s: %w", key, err)
	}

	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return fmt.Errorf("scanning record path: %w", err)
		}
		if !keep[path] {
			stale = append(stale, path)
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("listing records for %s: %w", key, err)
	}

	for _, path := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM file_records WHERE path = ?`, path); err != nil {
			return fmt.Errorf("pruning %s: %w", path, err)
		}
	}
	return nil
}

// ListRecords returns records matching filter, ordered by path.
func (s *SQLiteDatabase) ListRecords(ctx context.Context, filter tidy.RecordFilter) ([]*tidy.FileRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if len(filter.LocationKeys) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(filter.LocationKeys)), ", ")
		where = append(where, "location_key IN ("+marks+")")
		for _, k := range filter.LocationKeys {
			args = append(args, k)
		}
	}

	query := `SELECT ` + recordColumns + ` FROM file_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []*tidy.FileRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return out, nil
}

func (s *SQLiteDatabase) FindRecordByPath(ctx context.Context, path string) (*tidy.FileRecord, error) {
	return findRecordByPath(ctx, s.db, path)
}

func findRecordByPath(ctx context.Context, q queryer, path string) (*tidy.FileRecord, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM file_records WHERE path = ?`, path)
	r, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding record by path: %w", err)
	}
	return r, nil
}

// UpdateRecord overwrites the record with the same ID.
func (s *SQLiteDatabase) UpdateRecord(ctx context.Context, r *tidy.FileRecord) error {
	args := recordArgs(r)
	// Move id from the front to the WHERE clause.
	args = append(args[1:], r.ID)

	res, err := s.db.ExecContext(ctx, `
		UPDATE file_records SET
			path = ?, name = ?, extension = ?, size = ?, created_at = ?, modified_at = ?, accessed_at = ?,
			location = ?, location_key = ?, status = ?, destination_key = ?, destination_name = ?,
			confidence = ?, match_reason = ?, matched_rule_id = ?, rejected_destination_name = ?,
			rejection_count = ?, organized_path = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("updating record %s: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating record %s: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("record not found: %s", r.ID)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteRecord(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM file_records WHERE path = ?`, path); err != nil {
		return fmt.Errorf("deleting record %s: %w", path, err)
	}
	return nil
}

func sortRecords(records []*tidy.FileRecord) {
	slices.SortFunc(records, func(a, b *tidy.FileRecord) int {
		return strings.Compare(a.Path, b.Path)
	})
}
