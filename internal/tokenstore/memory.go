package tokenstore

import (
	"context"
	"sort"
	"sync"

	"tidy-go/internal/tidy"
)

// MemoryStore is an in-process TokenStore for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string][]byte
}

var _ tidy.TokenStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string][]byte)}
}

func (s *MemoryStore) Save(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.tokens[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, key)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.tokens))
	for k := range s.tokens {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
