package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bbolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/views"
)

var (
	bucketThreads = []byte("threads")
	bucketMeta    = []byte("meta")
)

const indexBucketPrefix = "idx:"

func indexBucket(name string) []byte {
	return []byte(indexBucketPrefix + name)
}

// BoltStorage keeps threads in a single bbolt file. Every index lives in its
// own bucket of "<key>\x00<id>" entries and is maintained on insert.
type BoltStorage struct {
	db     *bbolt.DB
	logger *zap.Logger

	mu      sync.RWMutex
	indexes map[string]views.Index
}

// OpenBoltStorage opens or creates the database file at path and loads the
// index definitions stored in it.
func OpenBoltStorage(path string, logger *zap.Logger) (*BoltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketThreads, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: create buckets: %w", err)
	}

	s := &BoltStorage{db: db, logger: logger, indexes: make(map[string]views.Index)}
	err = db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(k, v []byte) error {
			ix, err := decodeIndex(v)
			if err != nil {
				return err
			}
			s.indexes[ix.Name] = ix
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: load views: %w", err)
	}

	logger.Info("Opened bolt store", zap.String("path", path), zap.Int("indexes", len(s.indexes)))
	return s, nil
}

func (s *BoltStorage) InsertThread(ctx context.Context, thread *models.Thread) error {
	data, err := encodeThread(thread)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		threads := tx.Bucket(bucketThreads)
		id := []byte(thread.ID)
		if threads.Get(id) != nil {
			return fmt.Errorf("bolt: insert thread %s: %w", thread.ID, ErrDuplicateKey)
		}
		if err := threads.Put(id, data); err != nil {
			return err
		}
		for _, ix := range s.indexes {
			if err := putIndexEntry(tx, ix, thread); err != nil {
				return err
			}
		}
		return nil
	})
}

func putIndexEntry(tx *bbolt.Tx, ix views.Index, thread *models.Thread) error {
	key, ok := ix.Key(thread)
	if !ok {
		return nil
	}
	b := tx.Bucket(indexBucket(ix.Name))
	if b == nil {
		return fmt.Errorf("bolt: missing bucket for index %s", ix.Name)
	}
	return b.Put(indexEntry(key, thread.ID), []byte{})
}

func (s *BoltStorage) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	var thread *models.Thread
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketThreads).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("bolt: get thread %s: %w", id, ErrNotFound)
		}
		var err error
		thread, err = decodeThread(data)
		return err
	})
	return thread, err
}

func (s *BoltStorage) ThreadIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketThreads).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

// EnsureIndexes stores the definitions and rebuilds each index bucket from
// the threads already present.
func (s *BoltStorage) EnsureIndexes(ctx context.Context, indexes []views.Index) error {
	for _, ix := range indexes {
		if err := ix.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, ix := range indexes {
			def, err := encodeIndex(ix)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketMeta).Put([]byte(ix.Name), def); err != nil {
				return err
			}

			name := indexBucket(ix.Name)
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}

			err = tx.Bucket(bucketThreads).ForEach(func(_, v []byte) error {
				thread, err := decodeThread(v)
				if err != nil {
					return err
				}
				return putIndexEntry(tx, ix, thread)
			})
			if err != nil {
				return fmt.Errorf("bolt: build index %s: %w", ix.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, ix := range indexes {
		s.indexes[ix.Name] = ix
		s.logger.Info("Ensured index", zap.String("index", ix.Name), zap.String("field", ix.Field))
	}
	return nil
}

func (s *BoltStorage) Lookup(ctx context.Context, index, key string) ([]string, error) {
	ids := []string{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(indexBucket(index))
		if b == nil {
			return fmt.Errorf("bolt: lookup %s: %w", index, ErrUnknownIndex)
		}
		prefix := entryPrefix(key)
		c := b.Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *BoltStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
