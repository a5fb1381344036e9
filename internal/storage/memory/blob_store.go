package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// BlobStore keeps content snapshots in memory for development and tests.
type BlobStore struct {
	mu          sync.RWMutex
	data        map[string][]byte
	contentType map[string]string
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data:        make(map[string][]byte),
		contentType: make(map[string]string),
	}
}

// PutObject implements monitor.BlobStore and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, contentType string, r io.Reader) (string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = body
	s.contentType[path] = contentType
	return "memory://" + path, nil
}

// Object returns a stored snapshot and its content type.
func (s *BlobStore) Object(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	body, ok := s.data[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), body...), s.contentType[path], true
}

// Len returns the number of stored snapshots.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
