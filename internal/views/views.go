// Package views holds the static secondary-index ("view") definitions that
// are provisioned on the thread store.
package views

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xaenox/cforum-migrate/internal/models"
)

//go:embed views.yaml
var defaultDefinitions []byte

// Document fields an index can be built on.
const (
	FieldTID              = "tid"
	FieldFirstMessageDate = "messages[0].date"
	FieldArchived         = "archived"
)

// GranularityMonth keys date indexes by "YYYY-MM".
const GranularityMonth = "month"

// KeyTimeLayout is the layout of full-timestamp date keys. Keys are UTC so
// they sort chronologically as plain strings.
const KeyTimeLayout = "2006-01-02T15:04:05Z"

// Index describes one secondary index.
type Index struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Field       string `yaml:"field" json:"field"`
	Granularity string `yaml:"granularity,omitempty" json:"granularity,omitempty"`
	ActiveOnly  bool   `yaml:"active_only,omitempty" json:"active_only,omitempty"`
}

type definitionFile struct {
	Indexes []Index `yaml:"indexes"`
}

// Default returns the built-in index definitions.
func Default() ([]Index, error) {
	return Parse(defaultDefinitions)
}

// Load reads index definitions from path, or the built-in ones when path is
// empty.
func Load(path string) ([]Index, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read view definitions: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML index definitions.
func Parse(data []byte) ([]Index, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file definitionFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse view definitions: %w", err)
	}
	if len(file.Indexes) == 0 {
		return nil, errors.New("view definitions contain no indexes")
	}

	seen := make(map[string]bool, len(file.Indexes))
	for _, ix := range file.Indexes {
		if err := ix.Validate(); err != nil {
			return nil, err
		}
		if seen[ix.Name] {
			return nil, fmt.Errorf("index %q defined twice", ix.Name)
		}
		seen[ix.Name] = true
	}
	return file.Indexes, nil
}

// Find returns the index called name.
func Find(indexes []Index, name string) (Index, bool) {
	for _, ix := range indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return Index{}, false
}

// Validate checks that the definition can be evaluated.
func (ix Index) Validate() error {
	if ix.Name == "" {
		return errors.New("index without name")
	}
	switch ix.Field {
	case FieldTID, FieldArchived:
		if ix.Granularity != "" {
			return fmt.Errorf("index %q: granularity only applies to %s", ix.Name, FieldFirstMessageDate)
		}
	case FieldFirstMessageDate:
		if ix.Granularity != "" && ix.Granularity != GranularityMonth {
			return fmt.Errorf("index %q: unknown granularity %q", ix.Name, ix.Granularity)
		}
	default:
		return fmt.Errorf("index %q: unsupported field %q", ix.Name, ix.Field)
	}
	return nil
}

// Key returns the index key for t, and false if t is not part of the index.
func (ix Index) Key(t *models.Thread) (string, bool) {
	if ix.ActiveOnly && t.Archived {
		return "", false
	}

	switch ix.Field {
	case FieldTID:
		return t.TID, true
	case FieldArchived:
		return strconv.FormatBool(t.Archived), true
	case FieldFirstMessageDate:
		first, ok := t.FirstMessage()
		if !ok {
			return "", false
		}
		return ix.DateKey(first.Date.UTC().Format(KeyTimeLayout)), true
	}
	return "", false
}

// DateKey cuts a full timestamp key down to the index granularity.
func (ix Index) DateKey(full string) string {
	if ix.Granularity == GranularityMonth && len(full) >= len(monthLayout) {
		return full[:len(monthLayout)]
	}
	return full
}

const monthLayout = "2006-01"

// Range returns the half-open UTC interval [from, to) a date index key
// covers.
func (ix Index) Range(key string) (from, to time.Time, err error) {
	if ix.Field != FieldFirstMessageDate {
		return time.Time{}, time.Time{}, fmt.Errorf("index %q is not a date index", ix.Name)
	}
	if ix.Granularity == GranularityMonth {
		from, err = time.Parse(monthLayout, key)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("index %q: bad month key %q: %w", ix.Name, key, err)
		}
		return from, from.AddDate(0, 1, 0), nil
	}
	from, err = time.Parse(KeyTimeLayout, key)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("index %q: bad date key %q: %w", ix.Name, key, err)
	}
	return from, from.Add(time.Second), nil
}
