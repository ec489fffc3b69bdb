package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the document FileStore keeps inside its directory.
const FileName = "storage.json"

// FileStore keeps every entry in a single JSON document. Each mutation
// rewrites the document through a temp file and rename, so a crash leaves
// either the old or the new document on disk.
type FileStore struct {
	path    string
	mu      sync.Mutex
	entries map[string]string
}

// OpenFileStore loads (or creates) the store document inside dir.
func OpenFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	fs := &FileStore{
		path:    filepath.Join(dir, FileName),
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.entries); err != nil {
		return nil, fmt.Errorf("failed to parse storage file %s: %w", fs.path, err)
	}
	return fs, nil
}

// Path returns the location of the backing document.
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Get(key string) (string, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.entries[key]
	return v, ok, nil
}

func (fs *FileStore) Set(key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prev, had := fs.entries[key]
	fs.entries[key] = value
	if err := fs.flushLocked(); err != nil {
		if had {
			fs.entries[key] = prev
		} else {
			delete(fs.entries, key)
		}
		return err
	}
	return nil
}

func (fs *FileStore) Remove(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	prev, had := fs.entries[key]
	if !had {
		return nil
	}
	delete(fs.entries, key)
	if err := fs.flushLocked(); err != nil {
		fs.entries[key] = prev
		return err
	}
	return nil
}

func (fs *FileStore) flushLocked() error {
	data, err := json.MarshalIndent(fs.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".storage-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write storage: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set storage permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		return fmt.Errorf("failed to replace storage file: %w", err)
	}
	return nil
}
