// Package memory holds in-process implementations of the corpus store, the
// run repository, and the payload blob store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
)

// BlobStore keeps archived payloads in-memory and returns pseudo URIs.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	meta map[string]string
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
		meta: make(map[string]string),
	}
}

// PutObject stores a copy of data under path.
func (s *BlobStore) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = append([]byte(nil), data...)
	s.meta[path] = contentType
	return uri(path), nil
}

// Exists reports whether path was stored.
func (s *BlobStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[path]
	return ok, nil
}

// Object returns a copy of the stored bytes and content type.
func (s *BlobStore) Object(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), data...), s.meta[path], true
}

// Len is the number of stored objects.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func uri(path string) string {
	return fmt.Sprintf("memory://%s", path)
}
