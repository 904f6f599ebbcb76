package store

import (
	"sort"
	"sync"

	"gravitext/internal/models"
)

// Store is the in-memory repository used when no sqlite path is configured.
type Store struct {
	mu   sync.RWMutex
	libs map[string]*models.Library
}

func New() *Store {
	return &Store{libs: make(map[string]*models.Library)}
}

func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.libs[name]
	return ok
}

func (s *Store) Get(name string) (*models.Library, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lib, ok := s.libs[name]
	return lib, ok
}

func (s *Store) Save(lib *models.Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libs[lib.Name] = lib
	return nil
}

func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.libs[name]
	delete(s.libs, name)
	return ok
}

func (s *Store) List() []*models.Library {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Library, 0, len(s.libs))
	for _, lib := range s.libs {
		out = append(out, lib)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := 0
	for _, lib := range s.libs {
		chunks += len(lib.Chunks)
	}
	return map[string]int{
		"libraries": len(s.libs),
		"chunks":    chunks,
	}
}
