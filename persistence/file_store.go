package persistence

/*
Copyright (C) 2017 Jan Kasiak

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore is a Store backed by one file per key under
// baseDir/<homeId>/, generalizing the teacher's per-node
// "%d.json"-in-a-directory scheme (cache.NodeCache.LoadNodes) to
// opaque string keys and per-network partitioning (spec.md §6).
type FileStore struct {
	logger *zap.Logger
	dir    string

	mu    sync.Mutex
	cache map[string][]byte
	dirty map[string]bool
}

// NewFileStore returns a Store rooted at baseDir/<homeId as 8 hex
// digits>, creating the directory if it does not exist and eagerly
// loading any files already present.
func NewFileStore(baseDir string, homeID uint32, logger *zap.Logger) (*FileStore, error) {
	dir := filepath.Join(baseDir, fmt.Sprintf("%08x", homeID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persistence: create store directory: %w", err)
	}

	fs := &FileStore{
		logger: logger,
		dir:    dir,
		cache:  map[string][]byte{},
		dirty:  map[string]bool{},
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("persistence: read store directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		key, ok := keyFromFilename(entry.Name())
		if !ok {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("persistence: load %q: %w", key, err)
		}
		fs.cache[key] = b
	}

	return fs, nil
}

// Get returns the value stored at key and whether it exists, either in
// memory from a prior Set or loaded from disk at construction.
func (fs *FileStore) Get(key string) ([]byte, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.cache[key]
	return v, ok
}

// Set records value at key in memory; it is not durable until Flush.
func (fs *FileStore) Set(key string, value []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.cache[key] = value
	fs.dirty[key] = true
}

// Flush writes every key changed since the last Flush to disk via a
// write-temp-then-rename, guaranteeing at-least-once durability: a
// crash mid-flush leaves either the old or the new file, never a
// partially written one.
func (fs *FileStore) Flush() error {
	fs.mu.Lock()
	dirty := fs.dirty
	fs.dirty = map[string]bool{}
	values := make(map[string][]byte, len(dirty))
	for key := range dirty {
		values[key] = fs.cache[key]
	}
	fs.mu.Unlock()

	for key, value := range values {
		if err := fs.writeFile(key, value); err != nil {
			fs.mu.Lock()
			fs.dirty[key] = true
			fs.mu.Unlock()
			return fmt.Errorf("persistence: flush %q: %w", key, err)
		}
	}
	return nil
}

func (fs *FileStore) writeFile(key string, value []byte) error {
	target := filepath.Join(fs.dir, filenameFromKey(key))
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		return err
	}
	fs.logger.Debug("persistence: flushed key", zap.String("key", key))
	return nil
}

func filenameFromKey(key string) string {
	return key + ".json"
}

func keyFromFilename(name string) (string, bool) {
	const suffix = ".json"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	return name[:len(name)-len(suffix)], true
}
