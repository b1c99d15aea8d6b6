package flowstore

import (
	"context"
	"sync"
)

// MemoryStore keeps documents in process memory.
type MemoryStore struct {
	documents
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{data: make(map[string][]byte)}
	s.documents = documents{component: "MemoryStore", get: s.get, put: s.put}
	return s
}

func (s *MemoryStore) get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	s.data[key] = append([]byte(nil), value...)
	s.mu.Unlock()
	return nil
}
