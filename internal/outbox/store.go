package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store persists the queued items. The queue loads once at open and
// flushes after every mutation, so the on-disk state is always the
// source of truth across restarts.
type Store interface {
	Load() ([]Item, error)
	Save(items []Item) error
}

// FileStore keeps the queue as a JSON file, written atomically via a
// temp file and rename.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() ([]Item, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read outbox file: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode outbox file: %w", err)
	}
	return items, nil
}

func (s *FileStore) Save(items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode outbox: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".outbox-*")
	if err != nil {
		return fmt.Errorf("create temp outbox file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write outbox file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close outbox file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace outbox file: %w", err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests.
type MemoryStore struct {
	items []Item
}

func NewMemoryStore(items ...Item) *MemoryStore {
	return &MemoryStore{items: append([]Item(nil), items...)}
}

func (s *MemoryStore) Load() ([]Item, error) {
	return append([]Item(nil), s.items...), nil
}

func (s *MemoryStore) Save(items []Item) error {
	s.items = append([]Item(nil), items...)
	return nil
}

// Items returns the last saved snapshot.
func (s *MemoryStore) Items() []Item {
	return append([]Item(nil), s.items...)
}
