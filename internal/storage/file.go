package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists keys as a single JSON object on disk. Writes rewrite the
// whole file through a temp-file rename so a concurrent reader never observes
// a partially written object.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileStore creates a FileStore and ensures the parent directory exists.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: mkdir %s: %w", filepath.Dir(path), err)
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, fmt.Errorf("file store: read %s: %w", f.path, err)
	}
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("file store: unmarshal %s: %w", f.path, err)
	}
	return obj, nil
}

func (f *FileStore) save(obj map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("file store: marshal: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("file store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file store: rename: %w", err)
	}
	return nil
}

func (f *FileStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	obj, err := f.load()
	if err != nil {
		return nil, err
	}
	raw, ok := obj[key]
	if !ok {
		return nil, ErrNotFound
	}
	return raw, nil
}

func (f *FileStore) Set(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("file store: marshal %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	obj, err := f.load()
	if err != nil {
		return err
	}
	obj[key] = raw
	return f.save(obj)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	obj, err := f.load()
	if err != nil {
		return err
	}
	delete(obj, key)
	return f.save(obj)
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(map[string]json.RawMessage{})
}
