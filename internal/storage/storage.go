package storage

import (
	"context"
	"errors"

	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/views"
)

var (
	// ErrDuplicateKey is returned when a thread with the same id exists.
	ErrDuplicateKey = errors.New("duplicate thread id")
	// ErrNotFound is returned when no thread has the requested id.
	ErrNotFound = errors.New("thread not found")
	// ErrUnknownIndex is returned for lookups on an index that was never created.
	ErrUnknownIndex = errors.New("unknown index")
)

// Storage is a document store for imported threads.
type Storage interface {
	ThreadStorage
	IndexStorage
	Close() error
}

// ThreadStorage stores thread documents keyed by their assigned id.
type ThreadStorage interface {
	InsertThread(ctx context.Context, thread *models.Thread) error
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	ThreadIDs(ctx context.Context) ([]string, error)
}

// IndexStorage provisions and queries secondary indexes over threads.
type IndexStorage interface {
	EnsureIndexes(ctx context.Context, indexes []views.Index) error
	Lookup(ctx context.Context, index, key string) ([]string, error)
}
