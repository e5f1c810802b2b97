package storage

import (
	"encoding/json"
	"fmt"

	"github.com/xaenox/cforum-migrate/internal/models"
	"github.com/xaenox/cforum-migrate/internal/views"
)

// indexKeySep separates the index key from the thread id in composite keys.
const indexKeySep = 0x00

func encodeThread(t *models.Thread) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode thread %s: %w", t.ID, err)
	}
	return data, nil
}

func decodeThread(data []byte) (*models.Thread, error) {
	var t models.Thread
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode thread: %w", err)
	}
	return &t, nil
}

func encodeIndex(ix views.Index) ([]byte, error) {
	return json.Marshal(ix)
}

func decodeIndex(data []byte) (views.Index, error) {
	var ix views.Index
	if err := json.Unmarshal(data, &ix); err != nil {
		return views.Index{}, fmt.Errorf("decode index definition: %w", err)
	}
	return ix, nil
}

// indexEntry builds "<key>\x00<id>".
func indexEntry(key, id string) []byte {
	buf := make([]byte, 0, len(key)+1+len(id))
	buf = append(buf, key...)
	buf = append(buf, indexKeySep)
	return append(buf, id...)
}

// entryPrefix is the common prefix of all entries for key.
func entryPrefix(key string) []byte {
	buf := make([]byte, 0, len(key)+1)
	buf = append(buf, key...)
	return append(buf, indexKeySep)
}
