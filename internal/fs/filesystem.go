// Package fs lists file metadata from the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"tidy-go/internal/config"
	"tidy-go/internal/tidy"
)

// OSMetadataProvider implements tidy.MetadataProvider on the real filesystem.
type OSMetadataProvider struct {
	ignore        []string
	includeHidden bool
	recursive     bool
	logger        tidy.Logger
}

var _ tidy.MetadataProvider = (*OSMetadataProvider)(nil)

// NewOSMetadataProvider creates a provider using the scan settings in cfg.
func NewOSMetadataProvider(cfg config.ScanConfig, logger tidy.Logger) *OSMetadataProvider {
	return &OSMetadataProvider{
		ignore:        cfg.Ignore,
		includeHidden: cfg.IncludeHidden,
		recursive:     cfg.Recursive,
		logger:        logger,
	}
}

// Scan lists each location in turn. A failing location is reported in the
// batch and the remaining locations are still listed.
func (p *OSMetadataProvider) Scan(ctx context.Context, locations []tidy.ScanLocation) (*tidy.MetadataBatch, error) {
	batch := &tidy.MetadataBatch{Errors: make(map[string]error)}
	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		files, err := p.FindFiles(ctx, loc)
		if err != nil {
			batch.Errors[loc.Key] = err
			continue
		}
		batch.Records = append(batch.Records, files...)
	}
	return batch, nil
}

// FindFiles discovers regular files under loc. Symlinks, devices and other
// special files are never listed.
func (p *OSMetadataProvider) FindFiles(ctx context.Context, loc tidy.ScanLocation) ([]tidy.FileMetadata, error) {
	info, err := os.Stat(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", loc.Path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", loc.Path)
	}

	local, err := ParseIgnoreFile(filepath.Join(loc.Path, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(DefaultIgnorePatterns, p.ignore, local)

	var files []tidy.FileMetadata
	err = filepath.WalkDir(loc.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == loc.Path {
				return err
			}
			p.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == loc.Path {
			return nil
		}

		rel, err := filepath.Rel(loc.Path, path)
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".") && !p.includeHidden

		if d.IsDir() {
			if !p.recursive || hidden || matcher.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || hidden || matcher.Match(rel) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			// Removed between listing and stat.
			return nil
		}
		created, accessed := fileTimes(path, fi)
		files = append(files, tidy.NewFileMetadata(path, fi.Size(), created, fi.ModTime(), accessed, loc))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", loc.Path, err)
	}
	return files, nil
}

// HasAccess reports whether the folder can be listed. Only permission
// failures count as missing access; a folder that is gone or not a
// directory is left for Scan to report.
func (p *OSMetadataProvider) HasAccess(loc tidy.ScanLocation) bool {
	f, err := os.Open(loc.Path)
	if err != nil {
		return !errors.Is(err, fs.ErrPermission)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.IsDir() {
		return true
	}
	_, err = f.ReadDir(1)
	return !errors.Is(err, fs.ErrPermission)
}

// RequestAccess cannot prompt on this platform; folder permissions are
// managed outside the process. It reports the current access.
func (p *OSMetadataProvider) RequestAccess(ctx context.Context, loc tidy.ScanLocation) bool {
	ok := p.HasAccess(loc)
	if !ok {
		p.logger.Debug("no access to folder", "location", loc.Key, "path", loc.Path)
	}
	return ok
}
