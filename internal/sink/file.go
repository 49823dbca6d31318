package sink

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// File writes blobs as files below a root directory of an afero filesystem.
// Keys map to relative paths.
type File struct {
	fs   afero.Fs
	root string
}

// NewFile creates a File store rooted at root on fsys.
func NewFile(fsys afero.Fs, root string) *File {
	return &File{fs: fsys, root: root}
}

func (f *File) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// Put writes data to a temporary sibling and renames it over the target so
// readers never observe a partial blob.
func (f *File) Put(_ context.Context, key string, data []byte) error {
	p := f.path(key)
	if err := f.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("file sink: mkdir %s: %w", filepath.Dir(p), err)
	}
	tmp := p + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("file sink: write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, p); err != nil {
		f.fs.Remove(tmp)
		return fmt.Errorf("file sink: rename %s: %w", p, err)
	}
	return nil
}

func (f *File) List(_ context.Context, prefix string) ([]string, error) {
	if ok, err := afero.DirExists(f.fs, f.root); err != nil || !ok {
		return nil, err
	}
	var keys []string
	err := afero.Walk(f.fs, f.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("file sink: list %s: %w", path.Join(f.root, prefix), err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	data, err := afero.ReadFile(f.fs, f.path(key))
	if err != nil {
		return nil, fmt.Errorf("file sink: read %s: %w", key, err)
	}
	return data, nil
}
