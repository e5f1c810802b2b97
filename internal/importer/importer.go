// Package importer drives one migration run: it walks an archive directory,
// parses every thread file, gives each thread its permanent id and hands it
// to the store.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/cforum-migrate/internal/archive"
	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/threadid"
	"github.com/xaenox/cforum-migrate/internal/viewhelpers"
)

// Sink receives finished threads.
type Sink interface {
	InsertThread(ctx context.Context, thread *models.Thread) error
}

// WriteError reports a thread the sink refused.
type WriteError struct {
	Path     string
	ThreadID string
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write thread %s from %s: %v", e.ThreadID, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Stats summarizes a run.
type Stats struct {
	Files         int
	Imported      int
	ParseFailures int
	WriteFailures int
	WalkFailures  int
	Bytes         int64
	Duration      time.Duration
}

// Failures is the number of files or directories that were skipped.
func (s Stats) Failures() int {
	return s.ParseFailures + s.WriteFailures + s.WalkFailures
}

type Importer struct {
	walker   *archive.Walker
	parser   *archive.Parser
	registry *threadid.Registry
	sink     Sink
	baseURL  string
	runID    string
	logger   *zap.Logger
}

// New creates an importer. A nil registry starts from an empty one.
func New(walker *archive.Walker, parser *archive.Parser, registry *threadid.Registry, sink Sink, baseURL string, logger *zap.Logger) *Importer {
	if registry == nil {
		registry = threadid.NewRegistry()
	}
	runID := uuid.New().String()
	return &Importer{
		walker:   walker,
		parser:   parser,
		registry: registry,
		sink:     sink,
		baseURL:  baseURL,
		runID:    runID,
		logger:   logger.With(zap.String("run_id", runID)),
	}
}

// RunID identifies this importer's log lines.
func (i *Importer) RunID() string {
	return i.runID
}

// Run imports every thread file below the walker's root. Files that fail to
// parse or store are logged, counted and skipped. The returned error is
// non-nil only if the walk itself could not proceed: an unreadable root or a
// cancelled context.
func (i *Importer) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	start := time.Now()

	i.logger.Info("Starting import")

	err := i.walker.WalkWithErrors(ctx, func(f archive.ThreadFile) error {
		stats.Files++
		i.importFile(ctx, f, &stats)
		return nil
	}, func(*archive.WalkError) {
		stats.WalkFailures++
	})

	stats.Duration = time.Since(start)

	fields := []zap.Field{
		zap.Int("files", stats.Files),
		zap.Int("imported", stats.Imported),
		zap.Int("parse_failures", stats.ParseFailures),
		zap.Int("write_failures", stats.WriteFailures),
		zap.Int("walk_failures", stats.WalkFailures),
		zap.String("read", humanize.Bytes(uint64(stats.Bytes))),
		zap.Duration("duration", stats.Duration),
	}
	if err != nil {
		i.logger.Error("Import aborted", append(fields, zap.Error(err))...)
		return stats, err
	}
	i.logger.Info("Import finished", fields...)
	return stats, nil
}

func (i *Importer) importFile(ctx context.Context, f archive.ThreadFile, stats *Stats) {
	i.logger.Debug("Handling file", zap.String("path", f.Path))

	thread, size, err := i.load(f)
	stats.Bytes += size
	if err != nil {
		stats.ParseFailures++
		fields := []zap.Field{zap.String("path", f.Path), zap.Error(err)}
		var verr *archive.ValidationError
		if errors.As(err, &verr) {
			fields = append(fields, zap.String("message_id", verr.MessageID))
		}
		i.logger.Warn("Failed to parse thread file", fields...)
		return
	}

	thread.Archived = f.Archived()
	id, err := threadid.Assign(thread, i.registry)
	if err != nil {
		stats.ParseFailures++
		i.logger.Warn("Failed to assign thread id", zap.String("path", f.Path), zap.Error(err))
		return
	}

	if err := i.sink.InsertThread(ctx, thread); err != nil {
		stats.WriteFailures++
		werr := &WriteError{Path: f.Path, ThreadID: id, Err: err}
		i.logger.Error("Failed to save thread", zap.String("path", f.Path), zap.String("id", id), zap.Error(werr))
		return
	}

	stats.Imported++
	i.logger.Info("Saved thread",
		zap.String("id", id),
		zap.String("tid", thread.TID),
		zap.Bool("archived", thread.Archived),
		zap.Int("messages", thread.CountMessages()),
		zap.String("url", viewhelpers.AbsURL(i.baseURL, id, "", "", "")))
}

// load reads and parses one file. Any error is a *archive.ParseError
// carrying the file's path.
func (i *Importer) load(f archive.ThreadFile) (*models.Thread, int64, error) {
	data, err := fs.ReadFile(i.walker.FS(), f.Rel)
	if err != nil {
		return nil, 0, &archive.ParseError{Path: f.Path, Err: err}
	}

	thread, err := i.parser.Parse(data)
	if err != nil {
		var perr *archive.ParseError
		if errors.As(err, &perr) {
			perr.Path = f.Path
		}
		return nil, int64(len(data)), err
	}
	return thread, int64(len(data)), nil
}

// IDLister lists the ids already present in a store.
type IDLister interface {
	ThreadIDs(ctx context.Context) ([]string, error)
}

// SeedRegistry returns a registry holding every id src already has, so a
// second run into the same store never reuses an id.
func SeedRegistry(ctx context.Context, src IDLister) (*threadid.Registry, error) {
	ids, err := src.ThreadIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list existing thread ids: %w", err)
	}
	return threadid.NewRegistry(ids...), nil
}
