package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pbosetti/mads-plugin/errors"
)

// FileBackend keeps each document in <dir>/<key><ext>.
type FileBackend struct {
	dir string
	ext string
}

// NewFileBackend creates the directory if needed. An empty dir means os.TempDir().
func NewFileBackend(dir string) (*FileBackend, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "FileBackend", "NewFileBackend", fmt.Sprintf("create directory %s", dir))
	}
	return &FileBackend{dir: dir, ext: ".json"}, nil
}

// Kind returns "file"
func (b *FileBackend) Kind() string { return "file" }

// Dir returns the directory holding the documents
func (b *FileBackend) Dir() string { return b.dir }

// Path returns the file backing key
func (b *FileBackend) Path(key string) string {
	return filepath.Join(b.dir, key+b.ext)
}

// Put writes to a temporary file and renames it over the target.
func (b *FileBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, "."+key+".*.tmp")
	if err != nil {
		return errors.WrapTransient(err, "FileBackend", "Put", "create temporary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.WrapTransient(err, "FileBackend", "Put", "write temporary file")
	}
	if err := tmp.Close(); err != nil {
		return errors.WrapTransient(err, "FileBackend", "Put", "close temporary file")
	}
	if err := os.Rename(tmp.Name(), b.Path(key)); err != nil {
		return errors.WrapTransient(err, "FileBackend", "Put", "replace document")
	}
	return nil
}

// Get reads the document file
func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.Path(key))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrap(errors.ErrKeyNotFound, "FileBackend", "Get", fmt.Sprintf("read %s", key))
		}
		return nil, errors.WrapTransient(err, "FileBackend", "Get", fmt.Sprintf("read %s", key))
	}
	return data, nil
}

// List returns the keys of the documents in the directory
func (b *FileBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, errors.WrapTransient(err, "FileBackend", "List", "read directory")
	}

	keys := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, b.ext) {
			continue
		}
		key := strings.TrimSuffix(name, b.ext)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete removes the document file
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(key); err != nil {
		return err
	}
	if err := os.Remove(b.Path(key)); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.WrapTransient(err, "FileBackend", "Delete", fmt.Sprintf("remove %s", key))
	}
	return nil
}

// Close is a no-op
func (b *FileBackend) Close() error { return nil }

// checkKey rejects names that would escape the backend's namespace
func checkKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return errors.WrapInvalid(fmt.Errorf("%w: invalid document name %q", errors.ErrInvalidInput, key),
			"store", "checkKey", "validate name")
	}
	return nil
}
