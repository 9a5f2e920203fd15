package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"parking-lot/internal/parking"
)

// FileStore keeps the whole history as one JSON array. Every Record
// rewrites the file through a temp file and a rename, so readers never
// see a half-written array.
type FileStore struct {
	mu      sync.Mutex
	path    string
	entries []parking.HistoryEntry
}

func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.entries); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", path, err)
		}
	}
	return s, nil
}

func (s *FileStore) Record(_ context.Context, entry parking.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := append(s.entries, entry)
	if err := s.write(entries); err != nil {
		return err
	}
	s.entries = entries
	return nil
}

func (s *FileStore) write(entries []parking.HistoryEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace history %s: %w", s.path, err)
	}
	return nil
}

// List returns entries newest first.
func (s *FileStore) List(_ context.Context, limit, offset int) ([]parking.HistoryEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []parking.HistoryEntry
	for i := len(s.entries) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *FileStore) Close() error {
	return nil
}
