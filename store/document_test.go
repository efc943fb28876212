package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/metric"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/retry"
)

func TestPrepare_DefaultPath(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	doc, err := Prepare("defaults")
	require.NoError(t, err)
	defer doc.Close()

	doc.Set("count", 3)
	require.NoError(t, doc.Save(context.Background()))

	_, err = os.Stat(filepath.Join(os.TempDir(), "defaults.json"))
	assert.NoError(t, err)
}

func TestPrepare_DirectoryPath(t *testing.T) {
	dir := t.TempDir()

	doc, err := Prepare("runavg", dir)
	require.NoError(t, err)
	doc.Set("window", []any{1.0, 2.0})
	require.NoError(t, doc.Close())

	data, err := os.ReadFile(filepath.Join(dir, "runavg.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"window\": [\n    1,\n    2\n  ]\n}\n", string(data))
}

func TestPrepare_FilePath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "state.dat")

	doc, err := Prepare("ignored", file)
	require.NoError(t, err)
	assert.Equal(t, "state", doc.Name())
	doc.Set("a", "b")
	require.NoError(t, doc.Close())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"b"}`, string(data))
}

func TestPrepare_LoadsExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cfg.json"),
		[]byte(`{"threshold": 2.5, "nested": {"on": true}}`), 0o644))

	doc, err := Prepare("cfg", dir)
	require.NoError(t, err)
	defer doc.Close()

	v, ok := doc.Get("threshold")
	require.True(t, ok)
	assert.Equal(t, 2.5, v)

	v, ok = doc.Get("nested.on")
	require.True(t, ok)
	assert.Equal(t, true, v)
	assert.False(t, doc.Dirty())
}

func TestPrepare_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{not json`), 0o644))

	_, err := Prepare("bad", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDataCorrupted)
	assert.True(t, errors.IsInvalid(err))
}

func TestPrepare_InvalidName(t *testing.T) {
	for _, name := range []string{"", "..", "a/b"} {
		_, err := Prepare(name, t.TempDir())
		assert.ErrorIs(t, err, errors.ErrInvalidInput, name)
	}
}

func TestDocument_Operations(t *testing.T) {
	doc, err := Prepare("ops", t.TempDir())
	require.NoError(t, err)
	defer doc.Close()

	assert.Empty(t, doc.Keys())

	doc.Set("b", 1)
	doc.Set("a", map[string]any{"x": 1})
	assert.Equal(t, []string{"a", "b"}, doc.Keys())
	assert.True(t, doc.Dirty())

	// values are copied in and out
	v, _ := doc.Get("a")
	v.(map[string]any)["x"] = 99
	again, _ := doc.Get("a.x")
	assert.Equal(t, 1, again)

	doc.Merge(params.Params{"a": map[string]any{"y": 2}, "b": nil})
	assert.Equal(t, params.Params{"a": map[string]any{"x": 1, "y": 2}}, doc.Snapshot())

	doc.Delete("a")
	doc.Delete("missing")
	assert.Empty(t, doc.Keys())

	_, ok := doc.Get("a")
	assert.False(t, ok)
}

func TestDocument_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	doc, err := Prepare("trip", dir)
	require.NoError(t, err)
	doc.Set("values", []any{1.5, 2.5})
	require.NoError(t, doc.Save(ctx))
	assert.False(t, doc.Dirty())
	require.NoError(t, doc.Close())

	reopened, err := Prepare("trip", dir)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok := reopened.Get("values")
	require.True(t, ok)
	assert.Equal(t, []any{1.5, 2.5}, v)
}

func TestDocument_CloseTwice(t *testing.T) {
	doc, err := Prepare("twice", t.TempDir())
	require.NoError(t, err)

	require.NoError(t, doc.Close())
	require.NoError(t, doc.Close())
	assert.ErrorIs(t, doc.Save(context.Background()), errors.ErrAlreadyClosed)
}

func TestDocument_Remove(t *testing.T) {
	dir := t.TempDir()
	doc, err := Prepare("gone", dir)
	require.NoError(t, err)
	doc.Set("k", "v")
	require.NoError(t, doc.Save(context.Background()))

	require.NoError(t, doc.Remove(context.Background()))
	assert.Empty(t, doc.Keys())
	_, err = os.Stat(filepath.Join(dir, "gone.json"))
	assert.True(t, os.IsNotExist(err))
}

// flakyBackend fails the first n writes with a transient error
type flakyBackend struct {
	mu       sync.Mutex
	failures int
	puts     int
	data     map[string][]byte
	closed   bool
	// onPut runs before each write, outside the lock
	onPut func()
}

func newFlakyBackend(failures int) *flakyBackend {
	return &flakyBackend{failures: failures, data: map[string][]byte{}}
}

func (b *flakyBackend) Put(_ context.Context, key string, data []byte) error {
	if b.onPut != nil {
		b.onPut()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	if b.failures > 0 {
		b.failures--
		return errors.WrapTransient(errors.ErrStorageUnavailable, "flaky", "Put", "write")
	}
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *flakyBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.data[key]
	if !ok {
		return nil, errors.ErrKeyNotFound
	}
	return data, nil
}

func (b *flakyBackend) List(context.Context, string) ([]string, error) { return nil, nil }
func (b *flakyBackend) Delete(context.Context, string) error           { return nil }
func (b *flakyBackend) Kind() string                                  { return "flaky" }

func (b *flakyBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestDocument_SaveRetriesTransient(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	backend := newFlakyBackend(2)

	doc, err := Open(context.Background(), backend, "flaky",
		WithRetry(fastRetry(3)), WithMetrics(registry))
	require.NoError(t, err)

	doc.Set("k", "v")
	require.NoError(t, doc.Save(context.Background()))
	assert.Equal(t, 3, backend.puts)
	assert.JSONEq(t, `{"k":"v"}`, string(backend.data["flaky"]))

	core := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(core.StoreOperations.WithLabelValues("flaky", "save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(core.StoreOperations.WithLabelValues("flaky", "load", "ok")))
}

func TestDocument_SetDuringSaveStaysDirty(t *testing.T) {
	backend := newFlakyBackend(0)
	doc, err := Open(context.Background(), backend, "racy")
	require.NoError(t, err)

	doc.Set("k", 1)
	backend.onPut = func() {
		backend.onPut = nil
		doc.Set("late", 2)
	}
	require.NoError(t, doc.Save(context.Background()))
	assert.True(t, doc.Dirty(), "a change made while writing is not saved yet")
	assert.JSONEq(t, `{"k":1}`, string(backend.data["racy"]))

	require.NoError(t, doc.Save(context.Background()))
	assert.False(t, doc.Dirty())
	assert.JSONEq(t, `{"k":1,"late":2}`, string(backend.data["racy"]))
}

func TestDocument_SaveGivesUp(t *testing.T) {
	backend := newFlakyBackend(10)

	doc, err := Open(context.Background(), backend, "flaky", WithRetry(fastRetry(2)))
	require.NoError(t, err)

	err = doc.Save(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.Equal(t, 2, backend.puts)
}

func TestDocument_OwnedBackendClosed(t *testing.T) {
	backend := newFlakyBackend(0)

	doc, err := Open(context.Background(), backend, "owned", WithOwnedBackend())
	require.NoError(t, err)
	require.NoError(t, doc.Close())
	assert.True(t, backend.closed)

	shared := newFlakyBackend(0)
	doc, err = Open(context.Background(), shared, "shared")
	require.NoError(t, err)
	require.NoError(t, doc.Close())
	assert.False(t, shared.closed)
}

func TestOpen_NilBackend(t *testing.T) {
	_, err := Open(context.Background(), nil, "x")
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
}
