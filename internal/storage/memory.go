package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/views"
)

// MemoryStorage keeps thread documents in process memory. Documents are
// stored encoded so callers cannot mutate them after insert.
type MemoryStorage struct {
	mu      sync.RWMutex
	threads map[string][]byte
	indexes map[string]views.Index
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		threads: make(map[string][]byte),
		indexes: make(map[string]views.Index),
	}
}

func (s *MemoryStorage) InsertThread(ctx context.Context, thread *models.Thread) error {
	data, err := encodeThread(thread)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[thread.ID]; exists {
		return fmt.Errorf("insert thread %s: %w", thread.ID, ErrDuplicateKey)
	}
	s.threads[thread.ID] = data
	return nil
}

func (s *MemoryStorage) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.threads[id]
	if !exists {
		return nil, fmt.Errorf("get thread %s: %w", id, ErrNotFound)
	}
	return decodeThread(data)
}

func (s *MemoryStorage) ThreadIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStorage) EnsureIndexes(ctx context.Context, indexes []views.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ix := range indexes {
		if err := ix.Validate(); err != nil {
			return err
		}
		s.indexes[ix.Name] = ix
	}
	return nil
}

// Lookup scans all documents; the memory store keeps no index structures.
func (s *MemoryStorage) Lookup(ctx context.Context, index, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ix, ok := s.indexes[index]
	if !ok {
		return nil, fmt.Errorf("lookup %s: %w", index, ErrUnknownIndex)
	}

	ids := []string{}
	for id, data := range s.threads {
		thread, err := decodeThread(data)
		if err != nil {
			return nil, err
		}
		if k, ok := ix.Key(thread); ok && k == key {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
