package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/views"
)

// Key layout:
//
//	thread:<id>                 thread document
//	idx:<name>:<key>\x00<id>    index entry
//	meta:index:<name>           index definition
const (
	threadPrefix   = "thread:"
	indexPrefix    = "idx:"
	indexDefPrefix = "meta:index:"
)

func threadKey(id string) []byte {
	return []byte(threadPrefix + id)
}

func indexKeyPrefix(name string) []byte {
	return []byte(indexPrefix + name + ":")
}

func indexDefKey(name string) []byte {
	return []byte(indexDefPrefix + name)
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// PebbleStorage keeps threads and index entries in one pebble keyspace.
type PebbleStorage struct {
	db     *pebble.DB
	logger *zap.Logger

	// mu serializes writers so the duplicate check and the batch commit
	// happen as one step.
	mu      sync.Mutex
	indexes map[string]views.Index
}

func OpenPebbleStorage(path string, logger *zap.Logger) (*PebbleStorage, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", path, err)
	}

	s := &PebbleStorage{db: db, logger: logger, indexes: make(map[string]views.Index)}
	err = s.scan([]byte(indexDefPrefix), func(_, v []byte) error {
		ix, err := decodeIndex(v)
		if err != nil {
			return err
		}
		s.indexes[ix.Name] = ix
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pebble: load views: %w", err)
	}

	logger.Info("Opened pebble store", zap.String("path", path), zap.Int("indexes", len(s.indexes)))
	return s, nil
}

// scan calls fn for every key with prefix, in key order. Slices passed to fn
// are only valid for the duration of the call.
func (s *PebbleStorage) scan(prefix []byte, fn func(k, v []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			iter.Close()
			return err
		}
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return err
	}
	return iter.Close()
}

func (s *PebbleStorage) exists(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (s *PebbleStorage) InsertThread(ctx context.Context, thread *models.Thread) error {
	data, err := encodeThread(thread)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := threadKey(thread.ID)
	found, err := s.exists(key)
	if err != nil {
		return fmt.Errorf("pebble: insert thread %s: %w", thread.ID, err)
	}
	if found {
		return fmt.Errorf("pebble: insert thread %s: %w", thread.ID, ErrDuplicateKey)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(key, data, nil); err != nil {
		return err
	}
	for _, ix := range s.indexes {
		if k, ok := ix.Key(thread); ok {
			entry := append(indexKeyPrefix(ix.Name), indexEntry(k, thread.ID)...)
			if err := batch.Set(entry, nil, nil); err != nil {
				return err
			}
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble: insert thread %s: %w", thread.ID, err)
	}
	return nil
}

func (s *PebbleStorage) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	val, closer, err := s.db.Get(threadKey(id))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("pebble: get thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("pebble: get thread %s: %w", id, err)
	}
	defer closer.Close()
	return decodeThread(val)
}

func (s *PebbleStorage) ThreadIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.scan([]byte(threadPrefix), func(k, _ []byte) error {
		ids = append(ids, string(k[len(threadPrefix):]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: list threads: %w", err)
	}
	return ids, nil
}

// EnsureIndexes stores the definitions, drops any previous entries and
// backfills each index from the stored threads.
func (s *PebbleStorage) EnsureIndexes(ctx context.Context, indexes []views.Index) error {
	for _, ix := range indexes {
		if err := ix.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, ix := range indexes {
		def, err := encodeIndex(ix)
		if err != nil {
			return err
		}
		if err := batch.Set(indexDefKey(ix.Name), def, nil); err != nil {
			return err
		}
		prefix := indexKeyPrefix(ix.Name)
		if err := batch.DeleteRange(prefix, prefixUpperBound(prefix), nil); err != nil {
			return err
		}
	}

	err := s.scan([]byte(threadPrefix), func(_, v []byte) error {
		thread, err := decodeThread(v)
		if err != nil {
			return err
		}
		for _, ix := range indexes {
			if k, ok := ix.Key(thread); ok {
				entry := append(indexKeyPrefix(ix.Name), indexEntry(k, thread.ID)...)
				if err := batch.Set(entry, nil, nil); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("pebble: build indexes: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("pebble: commit indexes: %w", err)
	}

	for _, ix := range indexes {
		s.indexes[ix.Name] = ix
		s.logger.Info("Ensured index", zap.String("index", ix.Name), zap.String("field", ix.Field))
	}
	return nil
}

func (s *PebbleStorage) Lookup(ctx context.Context, index, key string) ([]string, error) {
	s.mu.Lock()
	_, ok := s.indexes[index]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("pebble: lookup %s: %w", index, ErrUnknownIndex)
	}

	prefix := append(indexKeyPrefix(index), entryPrefix(key)...)
	ids := []string{}
	err := s.scan(prefix, func(k, _ []byte) error {
		ids = append(ids, string(k[len(prefix):]))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: lookup %s: %w", index, err)
	}
	return ids, nil
}

func (s *PebbleStorage) Close() error {
	return s.db.Close()
}
