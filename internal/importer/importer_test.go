package importer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xaenox/cforum-migrate/internal/archive"
	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/storage"
)

// 2011-05-03 11:50:00 UTC
const may3 = 1304423400

func threadXML(tid, subject string, longSec int64) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Forum>
  <Thread id="%s">
    <Message id="m%s">
      <Header>
        <Author><Name>Bob</Name></Author>
        <Subject>%s</Subject>
        <Date longSec="%d"/>
      </Header>
      <MessageContent>Body of %s</MessageContent>
    </Message>
  </Thread>
</Forum>`, tid, tid, subject, longSec, tid)
}

func newImporter(t *testing.T, fsys fstest.MapFS, sink Sink, logger *zap.Logger) *Importer {
	t.Helper()
	walker := archive.NewWalker(fsys, "/srv/archive", logger)
	return New(walker, archive.NewParser(time.UTC), nil, sink, "https://forum.example.org", logger)
}

func TestRun(t *testing.T) {
	fsys := fstest.MapFS{
		"2010/t2.xml":     {Data: []byte(threadXML("2", "Hello", may3))},
		"2010/t3.xml":     {Data: []byte("<Forum><Thread")},
		"2010/notes.txt":  {Data: []byte("not a thread")},
		"messages/t1.xml": {Data: []byte(threadXML("1", "Hello", may3))},
	}
	store := storage.NewMemoryStorage()
	imp := newImporter(t, fsys, store, zap.NewNop())

	stats, err := imp.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Files)
	assert.Equal(t, 2, stats.Imported)
	assert.Equal(t, 1, stats.ParseFailures)
	assert.Equal(t, 0, stats.WriteFailures)
	assert.Equal(t, 1, stats.Failures())
	assert.Positive(t, stats.Bytes)

	ctx := context.Background()
	ids, err := store.ThreadIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/2011/05/03/1-hello", "/2011/05/03/hello"}, ids)

	// Walk order decides who gets the plain id.
	archived, err := store.GetThread(ctx, "/2011/05/03/hello")
	require.NoError(t, err)
	assert.Equal(t, "2", archived.TID)
	assert.True(t, archived.Archived)

	active, err := store.GetThread(ctx, "/2011/05/03/1-hello")
	require.NoError(t, err)
	assert.Equal(t, "1", active.TID)
	assert.False(t, active.Archived)
	assert.Equal(t, "Body of 1", active.Messages[0].Content)
}

type failingSink struct {
	err error
}

func (s failingSink) InsertThread(context.Context, *models.Thread) error {
	return s.err
}

func TestRunCountsWriteFailures(t *testing.T) {
	fsys := fstest.MapFS{
		"t1.xml": {Data: []byte(threadXML("1", "Hello", may3))},
	}
	core, logs := observer.New(zapcore.InfoLevel)
	imp := newImporter(t, fsys, failingSink{err: storage.ErrDuplicateKey}, zap.New(core))

	stats, err := imp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.WriteFailures)
	assert.Equal(t, 0, stats.Imported)

	failed := logs.FilterMessage("Failed to save thread").All()
	require.Len(t, failed, 1)
	fields := failed[0].ContextMap()
	assert.Equal(t, "/2011/05/03/hello", fields["id"])
	assert.Equal(t, "/srv/archive/t1.xml", fields["path"])
	assert.Equal(t, imp.RunID(), fields["run_id"])
}

func TestWriteErrorUnwraps(t *testing.T) {
	err := error(&WriteError{Path: "/a/t1.xml", ThreadID: "/2011/05/03/x", Err: storage.ErrDuplicateKey})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
	assert.Contains(t, err.Error(), "/2011/05/03/x")
	assert.Contains(t, err.Error(), "/a/t1.xml")
}

func TestRunLogsParseFailurePath(t *testing.T) {
	fsys := fstest.MapFS{
		// No Subject: rejected by validation.
		"t5.xml": {Data: []byte(`<Forum><Thread id="5"><Message id="m5"><Header>
			<Author><Name>Bob</Name></Author><Date longSec="1"/></Header>
			<MessageContent>x</MessageContent></Message></Thread></Forum>`)},
	}
	core, logs := observer.New(zapcore.WarnLevel)
	imp := newImporter(t, fsys, storage.NewMemoryStorage(), zap.New(core))

	stats, err := imp.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ParseFailures)

	entries := logs.FilterMessage("Failed to parse thread file").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/srv/archive/t5.xml", fields["path"])
	assert.Equal(t, "m5", fields["message_id"])
}

func TestSeedRegistry(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.InsertThread(ctx, &models.Thread{ID: "/2011/05/03/hello", TID: "9"}))

	reg, err := SeedRegistry(ctx, store)
	require.NoError(t, err)

	fsys := fstest.MapFS{
		"t1.xml": {Data: []byte(threadXML("1", "Hello", may3))},
	}
	walker := archive.NewWalker(fsys, "/srv/archive", zap.NewNop())
	imp := New(walker, archive.NewParser(time.UTC), reg, store, "", zap.NewNop())

	stats, err := imp.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Imported)

	ids, err := store.ThreadIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/2011/05/03/1-hello", "/2011/05/03/hello"}, ids)
}

type brokenLister struct{}

func (brokenLister) ThreadIDs(context.Context) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestSeedRegistryError(t *testing.T) {
	_, err := SeedRegistry(context.Background(), brokenLister{})
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunMissingRoot(t *testing.T) {
	walker, err := archive.NewDirWalker(filepath.Join(t.TempDir(), "missing"), zap.NewNop())
	require.NoError(t, err)
	imp := New(walker, archive.NewParser(time.UTC), nil, storage.NewMemoryStorage(), "", zap.NewNop())

	_, err = imp.Run(context.Background())
	var werr *archive.WalkError
	assert.ErrorAs(t, err, &werr)
}

func TestRunCancelled(t *testing.T) {
	fsys := fstest.MapFS{
		"t1.xml": {Data: []byte(threadXML("1", "Hello", may3))},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := storage.NewMemoryStorage()
	stats, err := newImporter(t, fsys, store, zap.NewNop()).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, stats.Imported)
}
