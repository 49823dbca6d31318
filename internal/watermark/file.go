package watermark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// File keeps all watermarks in one JSON object on local disk. Each Set
// replaces the file atomically.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a Store backed by the JSON file at path. The file is
// created on first Set.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Get(_ context.Context, entity string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals, err := f.load()
	if err != nil {
		return "", false, err
	}
	ts, ok := vals[entity]
	return ts, ok, nil
}

func (f *File) Set(_ context.Context, entity, ts string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals, err := f.load()
	if err != nil {
		return err
	}
	if cur, ok := vals[entity]; ok && cur >= ts {
		return nil
	}
	vals[entity] = ts

	data, err := json.MarshalIndent(vals, "", "  ")
	if err != nil {
		return fmt.Errorf("watermark file: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("watermark file: mkdir: %w", err)
	}
	if err := atomic.WriteFile(f.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("watermark file: write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) load() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("watermark file: read %s: %w", f.path, err)
	}
	vals := make(map[string]string)
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, fmt.Errorf("watermark file: decode %s: %w", f.path, err)
	}
	return vals, nil
}
