package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/metric"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/retry"
)

// Document is one named JSON object kept across runs. Reads and writes work on
// the in-memory copy; Save and Close write it back to the backend.
type Document struct {
	mu      sync.Mutex
	name    string
	backend Backend
	data    params.Params
	dirty   bool
	closed  bool

	// gen counts mutations so Save can tell whether it wrote the latest copy
	gen uint64

	retry   retry.Config
	metrics *metric.Metrics
	logger  *slog.Logger
	owned   bool
}

// Option configures a Document
type Option func(*Document)

// WithRetry sets the retry policy for backend writes
func WithRetry(cfg retry.Config) Option {
	return func(d *Document) {
		d.retry = cfg
	}
}

// WithMetrics records backend operations in the registry's core metrics
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(d *Document) {
		d.metrics = registry.CoreMetrics()
	}
}

// WithLogger sets the logger; nil keeps slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(d *Document) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithOwnedBackend makes Close also close the backend
func WithOwnedBackend() Option {
	return func(d *Document) {
		d.owned = true
	}
}

// Prepare opens the document name as a JSON file. Without a path the file is
// os.TempDir()/<name>.json; a directory path resolves to <dir>/<name>.json; any
// other path is used as is. An existing file is loaded.
func Prepare(name string, path ...string) (*Document, error) {
	file, err := resolvePath(name, path...)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(file)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapFatal(err, "store", "Prepare", fmt.Sprintf("create directory %s", dir))
	}
	ext := filepath.Ext(file)
	backend := &FileBackend{dir: dir, ext: ext}
	key := filepath.Base(file[:len(file)-len(ext)])

	return Open(context.Background(), backend, key, WithOwnedBackend())
}

func resolvePath(name string, path ...string) (string, error) {
	if err := checkKey(name); err != nil {
		return "", err
	}
	if len(path) == 0 || path[0] == "" {
		return filepath.Join(os.TempDir(), name+".json"), nil
	}
	if info, err := os.Stat(path[0]); err == nil && info.IsDir() {
		return filepath.Join(path[0], name+".json"), nil
	}
	return filepath.Clean(path[0]), nil
}

// Open loads the document name from backend. A missing document starts empty.
func Open(ctx context.Context, backend Backend, name string, opts ...Option) (*Document, error) {
	if backend == nil {
		return nil, errors.WrapInvalid(errors.ErrStorageUnavailable, "store", "Open", "backend cannot be nil")
	}
	if err := checkKey(name); err != nil {
		return nil, err
	}

	d := &Document{
		name:    name,
		backend: backend,
		data:    params.New(),
		retry:   retry.Quick(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "store", "document", name, "backend", backend.Kind())

	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload replaces the in-memory copy with the stored document
func (d *Document) Reload(ctx context.Context) error {
	data, err := retry.DoWithResult(ctx, d.retry, func() ([]byte, error) {
		data, err := d.backend.Get(ctx, d.name)
		if errors.Is(err, errors.ErrKeyNotFound) {
			return nil, retry.NonRetryable(err)
		}
		return data, err
	})
	d.metrics.RecordStoreOperation(d.backend.Kind(), "load", ignoreNotFound(err))

	doc := params.New()
	switch {
	case errors.Is(err, errors.ErrKeyNotFound):
		d.logger.Debug("Document not found, starting empty")
	case err != nil:
		return errors.Wrap(err, "Document", "Reload", "load document")
	case len(data) > 0:
		doc, err = params.FromJSON(data)
		if err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrDataCorrupted, err),
				"Document", "Reload", "decode document")
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = doc
	d.dirty = false
	d.gen++
	return nil
}

// Name returns the document name
func (d *Document) Name() string {
	return d.name
}

// Backend returns the storage behind the document
func (d *Document) Backend() Backend {
	return d.backend
}

// Get returns the value at key; dotted paths reach into nested objects
func (d *Document) Get(key string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.data.Lookup(key)
	if !ok {
		return nil, false
	}
	return copyValue(v), true
}

// Set stores a JSON-compatible value at key
func (d *Document) Set(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data[key] = copyValue(value)
	d.dirty = true
	d.gen++
}

// Merge merge-patches the document
func (d *Document) Merge(patch params.Params) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data.Patch(patch)
	d.dirty = true
	d.gen++
}

// Delete removes key
func (d *Document) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data[key]; ok {
		delete(d.data, key)
		d.dirty = true
		d.gen++
	}
}

// Keys returns the top-level keys, sorted
func (d *Document) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data.Keys()
}

// Snapshot returns a deep copy of the document
func (d *Document) Snapshot() params.Params {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.data.Clone()
}

// Dirty reports whether there are unsaved changes
func (d *Document) Dirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Save writes the document, pretty printed with two-space indentation.
// Transient backend failures are retried.
func (d *Document) Save(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyClosed, "Document", "Save", "document closed")
	}
	data, err := json.MarshalIndent(map[string]any(d.data), "", "  ")
	gen := d.gen
	d.mu.Unlock()
	if err != nil {
		return errors.WrapInvalid(err, "Document", "Save", "encode document")
	}
	data = append(data, '\n')

	start := time.Now()
	err = retry.Do(ctx, d.retry, func() error {
		return d.backend.Put(ctx, d.name, data)
	})
	d.metrics.RecordStoreOperation(d.backend.Kind(), "save", err)
	if err != nil {
		d.logger.Error("Save failed", "error", err)
		return errors.Wrap(err, "Document", "Save", "write document")
	}
	d.logger.Debug("Document saved", "bytes", len(data), "duration", time.Since(start))

	d.mu.Lock()
	if d.gen == gen {
		d.dirty = false
	}
	d.mu.Unlock()
	return nil
}

// Remove deletes the stored document and empties the in-memory copy
func (d *Document) Remove(ctx context.Context) error {
	err := d.backend.Delete(ctx, d.name)
	d.metrics.RecordStoreOperation(d.backend.Kind(), "delete", err)
	if err != nil {
		return errors.Wrap(err, "Document", "Remove", "delete document")
	}
	d.mu.Lock()
	d.data = params.New()
	d.dirty = false
	d.gen++
	d.mu.Unlock()
	return nil
}

// Close saves the document and releases an owned backend. Calling it twice is a no-op.
func (d *Document) Close() error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := d.Save(ctx)

	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	if d.owned {
		err = errors.Join(err, d.backend.Close())
	}
	return err
}

func copyValue(v any) any {
	return params.Params{"v": v}.Clone()["v"]
}

func ignoreNotFound(err error) error {
	if errors.Is(err, errors.ErrKeyNotFound) {
		return nil
	}
	return err
}
