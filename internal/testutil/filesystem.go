package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tidy-go/internal/tidy"
)

// MockFile represents a file in the mock provider.
type MockFile struct {
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// MockMetadataProvider is an in-memory tidy.MetadataProvider for testing.
// Files are keyed by location key; locations can be made to fail or deny access.
type MockMetadataProvider struct {
	mu       sync.Mutex
	files    map[string]map[string]*MockFile // location key -> path -> file
	failures map[string]error
	denied   map[string]bool
	granted  map[string]bool // RequestAccess answer for denied locations

	ScanCalls int
}

var _ tidy.MetadataProvider = (*MockMetadataProvider)(nil)

// NewMockMetadataProvider creates an empty provider.
func NewMockMetadataProvider() *MockMetadataProvider {
	return &MockMetadataProvider{
		files:    make(map[string]map[string]*MockFile),
		failures: make(map[string]error),
		denied:   make(map[string]bool),
		granted:  make(map[string]bool),
	}
}

// AddFile adds a file under loc. The file path is loc.Path joined with name.
func (m *MockMetadataProvider) AddFile(loc tidy.ScanLocation, name string, size int64, created time.Time) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(loc.Path, name)
	if m.files[loc.Key] == nil {
		m.files[loc.Key] = make(map[string]*MockFile)
	}
	m.files[loc.Key][path] = &MockFile{Size: size, CreatedAt: created, ModifiedAt: created}
	return path
}

// RemoveFile drops a file from loc.
func (m *MockMetadataProvider) RemoveFile(loc tidy.ScanLocation, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files[loc.Key], filepath.Join(loc.Path, name))
}

// FailLocation makes every scan of key fail with err. A nil err clears the failure.
func (m *MockMetadataProvider) FailLocation(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, key)
		return
	}
	m.failures[key] = err
}

// DenyAccess makes HasAccess report false for key. RequestAccess returns grant.
func (m *MockMetadataProvider) DenyAccess(key string, grant bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[key] = true
	m.granted[key] = grant
}

func (m *MockMetadataProvider) Scan(ctx context.Context, locations []tidy.ScanLocation) (*tidy.MetadataBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScanCalls++

	batch := &tidy.MetadataBatch{Errors: make(map[string]error)}
	for _, loc := range locations {
		if err, ok := m.failures[loc.Key]; ok {
			batch.Errors[loc.Key] = err
			continue
		}
		paths := make([]string, 0, len(m.files[loc.Key]))
		for p := range m.files[loc.Key] {
			paths = append(paths, p)
		}
		sort.Strings(paths)
		for _, p := range paths {
			f := m.files[loc.Key][p]
			batch.Records = append(batch.Records, tidy.NewFileMetadata(p, f.Size, f.CreatedAt, f.ModifiedAt, time.Time{}, loc))
		}
	}
	return batch, nil
}

func (m *MockMetadataProvider) HasAccess(loc tidy.ScanLocation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.denied[loc.Key]
}

func (m *MockMetadataProvider) RequestAccess(ctx context.Context, loc tidy.ScanLocation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.denied[loc.Key] {
		return true
	}
	if m.granted[loc.Key] {
		delete(m.denied, loc.Key)
		return true
	}
	return false
}

// ErrMockScan is a convenience error for failing locations.
var ErrMockScan = errors.New("mock scan failure")
