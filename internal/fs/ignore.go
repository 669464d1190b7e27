package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is read from the root of every scanned folder.
const IgnoreFileName = ".tidyignore"

// DefaultIgnorePatterns skip files that are still being written or belong to the OS.
var DefaultIgnorePatterns = []string{
	IgnoreFileName,
	"*.crdownload",
	"*.part",
	"*.partial",
	"*.download",
	"*.tmp",
	".DS_Store",
	"desktop.ini",
	"Thumbs.db",
}

type ignorePattern struct {
	pattern   string
	matchPath bool // match the relative path instead of the basename
}

// IgnoreMatcher checks paths relative to a scan root against glob patterns.
// Patterns containing '/' match the whole relative path; others match the basename.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher builds a matcher from pattern lists. Blank lines,
// comments and malformed globs are dropped.
func NewIgnoreMatcher(lists ...[]string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, list := range lists {
		for _, raw := range list {
			raw = strings.TrimSpace(raw)
			if raw == "" || strings.HasPrefix(raw, "#") {
				continue
			}
			if _, err := filepath.Match(raw, ""); err != nil {
				continue
			}
			m.patterns = append(m.patterns, ignorePattern{
				pattern:   raw,
				matchPath: strings.Contains(raw, "/"),
			})
		}
	}
	return m
}

// Match reports whether relativePath should be skipped.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" {
		return false
	}
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		target := basename
		if p.matchPath {
			target = normalized
		}
		if ok, _ := filepath.Match(p.pattern, target); ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads raw pattern lines. A missing file yields nil, nil.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
