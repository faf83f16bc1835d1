package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound reports that the store holds no retained record yet.
var ErrNotFound = errors.New("state: not found")

// Store persists the serialized retained record between resets.
type Store interface {
	Load() ([]byte, error)
	Save(data []byte) error
}

// FileStore keeps the retained record in a single file, written
// atomically via a rename.
type FileStore struct {
	Path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *FileStore) Save(data []byte) error {
	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, ".trackerd-state-*")
	if err != nil {
		return fmt.Errorf("state: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: close: %w", err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: rename: %w", err)
	}
	return nil
}

// MemoryStore keeps the record in process memory. Used by tests and the
// simulator, where "deep sleep" does not cross a process boundary.
type MemoryStore struct {
	data []byte
	has  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() ([]byte, error) {
	if !s.has {
		return nil, ErrNotFound
	}
	out := make([]byte, len(s.data))
	copy(out, s.data)
	return out, nil
}

func (s *MemoryStore) Save(data []byte) error {
	s.data = make([]byte, len(data))
	copy(s.data, data)
	s.has = true
	return nil
}
