package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

func readLines(t *testing.T, path string) []params.Params {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []params.Params
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var p params.Params
		require.NoError(t, json.Unmarshal([]byte(line), &p))
		out = append(out, p)
	}
	return out
}

func TestSink_JSONL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New().(*Sink)
	s.SetParams(params.Params{"directory": dir, "file_prefix": "run"})
	require.Equal(t, plugin.NoError, s.LastError())

	require.Equal(t, plugin.Success, s.LoadData(ctx, params.Params{"v": 1}, "sensors/a"))
	require.Equal(t, plugin.Success, s.LoadBlob(ctx, params.Params{"v": 2},
		plugin.Blob{Format: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}, ""))
	require.NoError(t, s.Close())

	records := readLines(t, filepath.Join(dir, "run.jsonl"))
	require.Len(t, records, 2)
	assert.Equal(t, params.Params{"v": 1.0, params.TopicKey: "sensors/a"}, records[0])
	assert.Equal(t, "run-000001.png", records[1][BlobKey])

	blob, err := os.ReadFile(filepath.Join(dir, "run-000001.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, blob)
	assert.Equal(t, "2", s.Info()["written"])
}

func TestSink_Buffered(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New().(*Sink)
	s.SetParams(params.Params{"directory": dir, "buffer_size": 3, "append": false})

	for i := range 4 {
		require.Equal(t, plugin.Success, s.LoadData(ctx, params.Params{"i": i}, ""))
	}
	assert.Len(t, readLines(t, s.Path()), 3, "the first batch is flushed")

	require.NoError(t, s.Close())
	assert.Len(t, readLines(t, s.Path()), 4, "Close flushes the rest")
}

func TestSink_PrettyJSON(t *testing.T) {
	dir := t.TempDir()
	s := New().(*Sink)
	s.SetParams(params.Params{"directory": dir, "format": "json"})
	require.Equal(t, plugin.Success, s.LoadData(context.Background(), params.Params{"a": "b"}, ""))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(filepath.Join(dir, "output.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"b\"\n}\n", string(data))
}

func TestSink_Append(t *testing.T) {
	dir := t.TempDir()
	for range 2 {
		s := New()
		s.SetParams(params.Params{"directory": dir})
		require.Equal(t, plugin.Success, s.LoadData(context.Background(), params.Params{"x": true}, ""))
		require.NoError(t, s.(*Sink).Close())
	}
	assert.Len(t, readLines(t, filepath.Join(dir, "output.jsonl")), 2)
}

func TestSink_DirectoryNotCreatable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := New()
	s.SetParams(params.Params{"directory": filepath.Join(blocker, "out")})
	assert.Equal(t, plugin.Critical, s.LoadData(context.Background(), params.Params{"x": 1}, ""))
	assert.Contains(t, s.LastError(), "create output directory")
}

func TestSink_InvalidConfig(t *testing.T) {
	s := New()
	s.SetParams(params.Params{"format": "xml"})
	assert.Contains(t, s.LastError(), "format must be one of")
	assert.Error(t, s.(*Sink).Params().Validate(Schema))
}

func TestSetParams_InvalidKeyKeepsOthers(t *testing.T) {
	dir := t.TempDir()
	s := New().(*Sink)
	s.SetParams(params.Params{"directory": dir, "file_prefix": "run", "append": "perhaps"})
	assert.Contains(t, s.LastError(), "append")
	assert.Equal(t, true, s.Params()["append"])

	require.Equal(t, plugin.Success, s.LoadData(context.Background(), params.Params{"v": 1}, ""))
	require.NoError(t, s.Close())
	assert.Len(t, readLines(t, filepath.Join(dir, "run.jsonl")), 1)
}
