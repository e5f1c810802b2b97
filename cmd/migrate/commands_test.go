package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/cforum-migrate/internal/storage"
	"github.com/xaenox/cforum-migrate/pkg/config"
)

const threadFile = `<?xml version="1.0" encoding="UTF-8"?>
<Forum>
  <Thread id="7">
    <Message id="m70">
      <Header>
        <Author><Name>Bob</Name></Author>
        <Subject>Tabellen mit CSS</Subject>
        <Date longSec="1304423400"/>
      </Header>
      <MessageContent>Frage</MessageContent>
    </Message>
  </Thread>
</Forum>`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestImportViewsLookup(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("IMPORT_TIMEZONE", "UTC")
	t.Setenv("LOG_LEVEL", "error")

	input := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(input, "messages"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(input, "messages", "t7.xml"), []byte(threadFile), 0o644))
	dest := "bolt:" + filepath.Join(t.TempDir(), "threads.db")

	out, err := execute(t, "import", input, dest)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 of 1 thread files")

	out, err = execute(t, "views", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "by_tid")
	assert.Contains(t, out, "by_date_active")

	out, err = execute(t, "lookup", "by_tid", "7", dest)
	require.NoError(t, err)
	assert.Equal(t, "/2011/05/03/tabellen-mit-css\n", out)

	out, err = execute(t, "lookup", "by_date_active", "2011-05-03T11:50:00Z", dest)
	require.NoError(t, err)
	assert.Equal(t, "/2011/05/03/tabellen-mit-css\n", out)
}

func TestImportSeedsRegistryFromStore(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("IMPORT_TIMEZONE", "UTC")
	t.Setenv("IMPORT_SEED_REGISTRY", "true")
	t.Setenv("LOG_LEVEL", "error")

	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "t7.xml"), []byte(threadFile), 0o644))
	dest := "pebble:" + filepath.Join(t.TempDir(), "threads")

	_, err := execute(t, "import", input, dest)
	require.NoError(t, err)
	_, err = execute(t, "import", input, dest)
	require.NoError(t, err)

	_, err = execute(t, "views", dest)
	require.NoError(t, err)
	out, err := execute(t, "lookup", "by_tid", "7", dest)
	require.NoError(t, err)
	assert.Equal(t, "/2011/05/03/1-tabellen-mit-css\n/2011/05/03/tabellen-mit-css\n", out)
}

func TestImportRequiresInput(t *testing.T) {
	_, err := execute(t, "import")
	assert.Error(t, err)
}

func TestUnknownDestination(t *testing.T) {
	_, err := execute(t, "views", "couchdb://localhost:5984/forum")
	assert.ErrorContains(t, err, "unrecognized destination")
}

func TestStorageOptions(t *testing.T) {
	cfg := &config.Config{
		Storage:  config.StorageConfig{Driver: config.DriverPostgres},
		Database: config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "cforum", SSLMode: "disable"},
		Bolt:     config.BoltConfig{Path: "a.db"},
		Pebble:   config.PebbleConfig{Path: "dir"},
	}

	opts := storageOptions(cfg)
	assert.Equal(t, storage.DriverPostgres, opts.Driver)
	assert.Equal(t, "cforum", opts.Database.DBName)
	assert.Equal(t, "a.db", opts.BoltPath)
	assert.Equal(t, "dir", opts.PebblePath)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LogConfig{Level: "debug", Development: true})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newLogger(config.LogConfig{Level: "chatty"})
	assert.Error(t, err)
}
