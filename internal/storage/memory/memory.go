package memory

import (
	"context"
	"sync"
)

// Storage is an in-process substrate. Values live until the process exits.
type Storage struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// New creates an empty in-memory substrate
func New() *Storage {
	return &Storage{values: make(map[string][]byte)}
}

// Get implements storage.KV interface
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Set implements storage.KV interface
func (s *Storage) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = append([]byte(nil), value...)
	return nil
}

// Close implements storage.KV interface
func (s *Storage) Close() error {
	return nil
}
