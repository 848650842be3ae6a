package blobstore

import (
	"context"
	"sync"
)

type MemoryStore struct {
	baseURL string

	mu      sync.Mutex
	objects map[string]Object
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: baseURL,
		objects: make(map[string]Object),
	}
}

func (s *MemoryStore) Put(_ context.Context, path, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[path] = Object{
		Path:        path,
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return PublicURL(s.baseURL, path), nil
}

func (s *MemoryStore) Get(_ context.Context, path string) (*Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[path]
	if !ok {
		return nil, nil
	}
	return &obj, nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, path)
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
