package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileStore keeps all keys in one JSON object on disk. Every mutation rewrites
// the file through a temp file + rename so readers never see a partial write.
type FileStore struct {
	mu     sync.Mutex
	path   string
	values map[string]string
	logger *zap.Logger
}

func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	f := &FileStore{path: path, values: make(map[string]string), logger: logger}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("storage file does not exist yet", zap.String("path", path))
		return f, nil
	case err != nil:
		return nil, fmt.Errorf("read storage file: %w", err)
	}
	if len(raw) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(raw, &f.values); err != nil {
		return nil, fmt.Errorf("decode storage file %s: %w", path, err)
	}
	return f, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FileStore) Set(ctx context.Context, key, value string) error {
	return f.SetAll(ctx, map[string]string{key: value})
}

func (f *FileStore) SetAll(_ context.Context, values map[string]string) error {
	if err := validateKeys(values); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	next := maps.Clone(f.values)
	maps.Copy(next, values)
	return f.commit(next)
}

func (f *FileStore) Remove(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := maps.Clone(f.values)
	for _, k := range keys {
		delete(next, k)
	}
	return f.commit(next)
}

func (f *FileStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commit(make(map[string]string))
}

// commit must be called with f.mu held.
func (f *FileStore) commit(next map[string]string) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".storefront-*")
	if err != nil {
		f.logger.Error("failed to create temp storage file", zap.String("dir", dir), zap.Error(err))
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		f.logger.Error("failed to replace storage file", zap.String("path", f.path), zap.Error(err))
		return err
	}
	f.values = next
	return nil
}
