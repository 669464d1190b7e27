package tidy

import (
	"context"
	"path/filepath"
	"strings"
	"time"
)

// SourceLocation identifies which monitored root a file was found under.
type SourceLocation string

const (
	LocationDesktop   SourceLocation = "desktop"
	LocationDownloads SourceLocation = "downloads"
	LocationDocuments SourceLocation = "documents"
	LocationPictures  SourceLocation = "pictures"
	LocationMusic     SourceLocation = "music"
	LocationVideos    SourceLocation = "videos"
	LocationUnknown   SourceLocation = "unknown"
)

// BuiltinLocations maps each monitored root to its directory name under the home folder.
var BuiltinLocations = map[SourceLocation]string{
	LocationDesktop:   "Desktop",
	LocationDownloads: "Downloads",
	LocationDocuments: "Documents",
	LocationPictures:  "Pictures",
	LocationMusic:     "Music",
	LocationVideos:    "Videos",
}

// ParseSourceLocation converts a config or CLI string into a SourceLocation.
// Unrecognized values map to LocationUnknown.
func ParseSourceLocation(s string) SourceLocation {
	loc := SourceLocation(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := BuiltinLocations[loc]; ok {
		return loc
	}
	return LocationUnknown
}

// File is the read-only view of a file that rules are evaluated against.
// Both FileMetadata (straight from a provider) and *FileRecord (persisted) satisfy it.
type File interface {
	FilePath() string
	FileName() string
	FileExtension() string
	FileSize() int64
	FileCreatedAt() time.Time
	FileModifiedAt() time.Time
	FileLocation() SourceLocation
}

// FileMetadata is a single entry produced by a MetadataProvider.
type FileMetadata struct {
	Path        string
	Name        string
	Extension   string // lowercase, without the leading dot
	Size        int64
	CreatedAt   time.Time
	ModifiedAt  time.Time
	AccessedAt  time.Time
	Location    SourceLocation
	LocationKey string // key of the ScanLocation this entry was found under
}

// NewFileMetadata builds metadata for path, deriving the display name and extension.
func NewFileMetadata(path string, size int64, createdAt, modifiedAt, accessedAt time.Time, loc ScanLocation) FileMetadata {
	name := filepath.Base(path)
	return FileMetadata{
		Path:        path,
		Name:        name,
		Extension:   ExtensionOf(name),
		Size:        size,
		CreatedAt:   createdAt,
		ModifiedAt:  modifiedAt,
		AccessedAt:  accessedAt,
		Location:    loc.Location,
		LocationKey: loc.Key,
	}
}

// ExtensionOf returns the lowercase extension of name without the leading dot.
func ExtensionOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func (m FileMetadata) FilePath() string             { return m.Path }
func (m FileMetadata) FileName() string             { return m.Name }
func (m FileMetadata) FileExtension() string        { return m.Extension }
func (m FileMetadata) FileSize() int64              { return m.Size }
func (m FileMetadata) FileCreatedAt() time.Time     { return m.CreatedAt }
func (m FileMetadata) FileModifiedAt() time.Time    { return m.ModifiedAt }
func (m FileMetadata) FileLocation() SourceLocation { return m.Location }

// ScanLocation is a folder the pipeline asks the provider to list.
// Key is stable across runs: the location name for built-in roots,
// the absolute path for custom folders.
type ScanLocation struct {
	Key      string
	Path     string
	Location SourceLocation
}

// BuiltinScanLocation returns the ScanLocation for a built-in root under homeDir.
func BuiltinScanLocation(homeDir string, loc SourceLocation) ScanLocation {
	return ScanLocation{
		Key:      string(loc),
		Path:     filepath.Join(homeDir, BuiltinLocations[loc]),
		Location: loc,
	}
}

// CustomScanLocation returns the ScanLocation for a user-added folder.
func CustomScanLocation(path string) ScanLocation {
	return ScanLocation{Key: path, Path: path, Location: LocationUnknown}
}

// MetadataBatch is the result of a provider scan: entries plus per-location failures.
type MetadataBatch struct {
	Records []FileMetadata
	Errors  map[string]error // keyed by ScanLocation.Key
}

// MetadataProvider lists file metadata for a set of folders.
type MetadataProvider interface {
	// Scan lists the files in each location. A failing location is reported
	// in MetadataBatch.Errors and does not abort the others.
	Scan(ctx context.Context, locations []ScanLocation) (*MetadataBatch, error)

	// HasAccess reports whether the location can currently be read.
	HasAccess(loc ScanLocation) bool

	// RequestAccess asks for access to the location. It may prompt.
	RequestAccess(ctx context.Context, loc ScanLocation) bool
}
