package tidy

import (
	"context"
	"fmt"
	"time"
)

// Status is the lifecycle state of a FileRecord.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReady     Status = "ready"
	StatusOrganized Status = "organized"
	StatusSkipped   Status = "skipped"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusReady, StatusOrganized, StatusSkipped:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status: %q", s)
	}
}

// Terminal reports whether the status was set by a user or the organizer
// and must survive a re-scan.
func (s Status) Terminal() bool {
	return s == StatusOrganized || s == StatusSkipped
}

// DestinationRef points at a destination folder through its access token key.
// The path itself is only known after the boundary guard resolves the token.
type DestinationRef struct {
	Key         string
	DisplayName string
}

// FileRecord is the persisted state of a scanned file.
// Path is the identity within a scan; ID is stable across scans.
type FileRecord struct {
	ID          string
	Path        string
	Name        string
	Extension   string
	Size        int64
	CreatedAt   time.Time
	ModifiedAt  time.Time
	AccessedAt  time.Time
	Location    SourceLocation
	LocationKey string
	Status      Status

	// Set by rule evaluation. All empty when nothing matched.
	Destination   *DestinationRef
	Confidence    *float64
	MatchReason   string
	MatchedRuleID string

	// Set by user review.
	RejectedDestinationName string
	RejectionCount          int

	OrganizedPath string
}

// NewFileRecord creates a pending record from provider metadata.
func NewFileRecord(id string, m FileMetadata) *FileRecord {
	r := &FileRecord{ID: id, Status: StatusPending}
	r.UpdateMetadata(m)
	return r
}

// UpdateMetadata refreshes the file attributes from a newer provider entry.
func (r *FileRecord) UpdateMetadata(m FileMetadata) {
	r.Path = m.Path
	r.Name = m.Name
	r.Extension = m.Extension
	r.Size = m.Size
	r.CreatedAt = m.CreatedAt
	r.ModifiedAt = m.ModifiedAt
	r.AccessedAt = m.AccessedAt
	r.Location = m.Location
	r.LocationKey = m.LocationKey
}

// ApplyMatch records a rule match on the record.
func (r *FileRecord) ApplyMatch(m *MatchResult) {
	dest := m.Destination
	conf := m.Confidence
	r.Destination = &dest
	r.Confidence = &conf
	r.MatchReason = m.Reason
	r.MatchedRuleID = m.RuleID
}

// ClearMatch removes any match fields.
func (r *FileRecord) ClearMatch() {
	r.Destination = nil
	r.Confidence = nil
	r.MatchReason = ""
	r.MatchedRuleID = ""
}

// Reject records that the user declined the suggested destination.
// The record returns to pending and the same destination is not suggested again.
func (r *FileRecord) Reject() error {
	if r.Destination == nil {
		return fmt.Errorf("record has no suggested destination: %s", r.Path)
	}
	r.RejectedDestinationName = r.Destination.DisplayName
	r.RejectionCount++
	r.ClearMatch()
	r.Status = StatusPending
	return nil
}

// Skip excludes the record from organizing until the user changes it.
func (r *FileRecord) Skip() {
	r.Status = StatusSkipped
}

// MarkOrganized records a successful move.
func (r *FileRecord) MarkOrganized(newPath string) {
	r.Status = StatusOrganized
	r.OrganizedPath = newPath
}

func (r *FileRecord) FilePath() string             { return r.Path }
func (r *FileRecord) FileName() string             { return r.Name }
func (r *FileRecord) FileExtension() string        { return r.Extension }
func (r *FileRecord) FileSize() int64              { return r.Size }
func (r *FileRecord) FileCreatedAt() time.Time     { return r.CreatedAt }
func (r *FileRecord) FileModifiedAt() time.Time    { return r.ModifiedAt }
func (r *FileRecord) FileLocation() SourceLocation { return r.Location }

// RecordFilter narrows ListRecords. Zero values mean "any".
type RecordFilter struct {
	Status       Status
	LocationKeys []string
}

// ScanBatch is the unit of work the pipeline hands to the record store.
type ScanBatch struct {
	// Records are upserted by path.
	Records []*FileRecord

	// PruneLocationKeys lists locations that were scanned successfully.
	// Records under these keys that are not in Records, and are not organized, are deleted.
	PruneLocationKeys []string
}

// RecordStore persists FileRecords.
type RecordStore interface {
	// ApplyScan upserts and prunes a scan batch in a single transaction
	// and returns the persisted records of the batch, ordered by path.
	ApplyScan(ctx context.Context, batch ScanBatch) ([]*FileRecord, error)

	// ListRecords returns records matching the filter, ordered by path.
	ListRecords(ctx context.Context, filter RecordFilter) ([]*FileRecord, error)

	// FindRecordByPath returns nil, nil when no record exists.
	FindRecordByPath(ctx context.Context, path string) (*FileRecord, error)

	// UpdateRecord overwrites a record identified by its ID.
	UpdateRecord(ctx context.Context, record *FileRecord) error

	// DeleteRecord removes the record for path. Missing records are not an error.
	DeleteRecord(ctx context.Context, path string) error
}
