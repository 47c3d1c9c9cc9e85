package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FileStore persists session entries as a single JSON document on disk. The
// file and its directory are created on first write with owner-only
// permissions since the document holds bearer credentials.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a file-backed store at path. The file does not need
// to exist yet.
func NewFileStore(path string) (*FileStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("token filestore: path is required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("token filestore: resolve path: %w", err)
	}
	return &FileStore{path: abs}, nil
}

// Path returns the resolved document location.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the value stored under key. A missing or unreadable document
// is reported as absence, not an error, so a wiped store simply reads as an
// unauthenticated session.
func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("token filestore: read %s failed: %v", s.path, err)
		}
		return "", false
	}

	result := gjson.GetBytes(data, key)
	if !result.Exists() {
		return "", false
	}
	return result.String(), true
}

// Set writes value under key, updating the key in place within the JSON
// document.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}

	updated, err := sjson.SetBytes(data, key, value)
	if err != nil {
		return fmt.Errorf("token filestore: set %s failed: %w", key, err)
	}
	return s.writeLocked(updated)
}

// Remove deletes key from the document. Removing an absent key is not an
// error.
func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked()
	if err != nil {
		return err
	}
	if !gjson.GetBytes(data, key).Exists() {
		return nil
	}

	updated, err := sjson.DeleteBytes(data, key)
	if err != nil {
		return fmt.Errorf("token filestore: remove %s failed: %w", key, err)
	}
	return s.writeLocked(updated)
}

func (s *FileStore) readLocked() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("token filestore: read %s failed: %w", s.path, err)
	}
	if len(data) == 0 || !gjson.ValidBytes(data) {
		log.Warnf("token filestore: %s is not valid JSON, starting fresh", s.path)
		return []byte("{}"), nil
	}
	return data, nil
}

func (s *FileStore) writeLocked(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("token filestore: create directory failed: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("token filestore: write %s failed: %w", s.path, err)
	}
	return nil
}
