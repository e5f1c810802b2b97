package views

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaenox/cforum-migrate/internal/models"
)

func thread(tid string, archived bool, date time.Time) *models.Thread {
	return &models.Thread{
		ID:       "/x",
		TID:      tid,
		Archived: archived,
		Messages: []models.Message{{Subject: "s", Date: date}},
	}
}

func TestDefault(t *testing.T) {
	indexes, err := Default()
	require.NoError(t, err)

	var names []string
	for _, ix := range indexes {
		names = append(names, ix.Name)
	}
	assert.Equal(t, []string{"by_tid", "by_month", "by_date_active", "by_archived"}, names)

	active, ok := Find(indexes, "by_date_active")
	require.True(t, ok)
	assert.True(t, active.ActiveOnly)
	assert.Equal(t, FieldFirstMessageDate, active.Field)
}

func TestIndexKey(t *testing.T) {
	indexes, err := Default()
	require.NoError(t, err)

	berlin := time.FixedZone("CEST", 2*3600)
	live := thread("42", false, time.Date(2011, 6, 1, 1, 30, 0, 0, berlin))
	old := thread("43", true, time.Date(2011, 5, 3, 12, 0, 0, 0, time.UTC))

	tests := []struct {
		index  string
		thread *models.Thread
		key    string
		ok     bool
	}{
		{"by_tid", live, "42", true},
		{"by_month", live, "2011-05", true},
		{"by_month", old, "2011-05", true},
		{"by_date_active", live, "2011-05-31T23:30:00Z", true},
		{"by_date_active", old, "", false},
		{"by_archived", live, "false", true},
		{"by_archived", old, "true", true},
	}

	for _, tt := range tests {
		ix, found := Find(indexes, tt.index)
		require.True(t, found, tt.index)

		key, ok := ix.Key(tt.thread)
		assert.Equal(t, tt.ok, ok, "%s/%s", tt.index, tt.thread.TID)
		assert.Equal(t, tt.key, key, "%s/%s", tt.index, tt.thread.TID)
	}
}

func TestIndexKeyWithoutMessages(t *testing.T) {
	ix := Index{Name: "d", Field: FieldFirstMessageDate}

	_, ok := ix.Key(&models.Thread{TID: "1"})

	assert.False(t, ok)
}

func TestIndexRange(t *testing.T) {
	month := Index{Name: "m", Field: FieldFirstMessageDate, Granularity: GranularityMonth}
	from, to, err := month.Range("2011-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2011, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2012, 1, 1, 0, 0, 0, 0, time.UTC), to)

	exact := Index{Name: "d", Field: FieldFirstMessageDate}
	from, to, err = exact.Range("2011-05-03T11:50:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2011, 5, 3, 11, 50, 0, 0, time.UTC), from)
	assert.Equal(t, time.Second, to.Sub(from))

	_, _, err = month.Range("May 2011")
	assert.Error(t, err)

	_, _, err = Index{Name: "t", Field: FieldTID}.Range("1")
	assert.Error(t, err)
}

func TestParseRejectsBadDefinitions(t *testing.T) {
	tests := map[string]string{
		"empty":             "indexes: []\n",
		"unknown field":     "indexes:\n  - name: x\n    field: subject\n",
		"unknown key":       "indexes:\n  - name: x\n    field: tid\n    reduce: sum\n",
		"missing name":      "indexes:\n  - field: tid\n",
		"bad granularity":   "indexes:\n  - name: x\n    field: messages[0].date\n    granularity: week\n",
		"granularity on id": "indexes:\n  - name: x\n    field: tid\n    granularity: month\n",
		"duplicate":         "indexes:\n  - name: x\n    field: tid\n  - name: x\n    field: archived\n",
		"not yaml":          "indexes: [",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexes:\n  - name: only_tid\n    field: tid\n"), 0o600))

	indexes, err := Load(path)
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.Equal(t, "only_tid", indexes[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
