package assets

import (
	"context"
	"sync"
)

// MemoryStore keeps objects in a map. Only good for tests.
type MemoryStore struct {
	mu      sync.Mutex
	Objects map[string][]byte
	Types   map[string]string
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Objects: make(map[string][]byte),
		Types:   make(map[string]string),
	}
}

func (s *MemoryStore) Put(ctx context.Context, key, contentType string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Objects[key] = append([]byte(nil), content...)
	s.Types[key] = contentType
	return nil
}

func (s *MemoryStore) URL(key string) string {
	return "/memory/" + key
}
