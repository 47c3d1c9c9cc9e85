// Package store provides the key-value storage backends injected into the
// session manager: an in-process scratch store for handshake state and
// durable stores backed by the filesystem, PostgreSQL, or S3-compatible
// object storage for issued tokens.
package store

import "sync"

// MemoryStore is an in-process key-value store. It backs the scratch scope
// (handshake values live only as long as the process, mirroring
// session-scoped browser storage) and test doubles for the durable scope.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	return value, ok
}

// Set stores value under key, overwriting any previous value.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
