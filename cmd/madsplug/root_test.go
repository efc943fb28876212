package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mads.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "madsplug version "+Version)
	assert.Contains(t, out, "SourceServer")
	assert.Contains(t, out, "protocol 4")
}

func TestDriversCommand(t *testing.T) {
	out, err := execute(t, "drivers", "--server", "filter")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5, out)
	assert.True(t, strings.HasPrefix(lines[0], "SERVER"))
	for _, line := range lines[1:] {
		assert.True(t, strings.HasPrefix(line, "FilterServer"), line)
		assert.Contains(t, line, "compatible")
		assert.Contains(t, line, "builtin")
	}
	assert.Contains(t, out, "runavg")
	assert.NotContains(t, out, "httppost")
}

func TestDriversCommand_NoBuiltins(t *testing.T) {
	out, err := execute(t, "drivers", "--no-builtins")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "\n"), "header only")
}

func TestDriversCommand_UnknownServer(t *testing.T) {
	_, err := execute(t, "drivers", "--server", "relay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown server")
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, `
pipelines:
  avg:
    source: {driver: clock}
    filters: [{driver: runavg, params: {field: unix_ms}}]
    sinks: [{driver: echo}]
`)
	out, err := execute(t, "validate", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 pipelines, 3 stages, configuration is valid")
}

func TestValidateCommand_UnknownDriver(t *testing.T) {
	path := writeConfig(t, `
pipelines:
  p:
    source: {driver: clock}
    sinks: [{driver: carrier-pigeon}]
`)
	_, err := execute(t, "validate", "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", "-c", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestDescribeCommand(t *testing.T) {
	out, err := execute(t, "describe", "filter", "runavg", "--params", `{"capacity": 5}`)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "FilterServer", doc["server"])
	assert.Equal(t, "runavg", doc["name"])
	assert.Equal(t, "No error", doc["last_error"])
	p, ok := doc["params"].(map[string]any)
	require.True(t, ok, out)
	assert.Equal(t, 5, p["capacity"])
	assert.NotContains(t, doc, "schema_error")
}

func TestDescribeCommand_NotFound(t *testing.T) {
	_, err := execute(t, "describe", "sink", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = execute(t, "describe", "sink", "echo", "--params", "{broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --params")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
log: {level: error}
pipelines:
  clock:
    interval: 1ms
    max_cycles: 3
    source: {driver: clock, params: {utc: true}}
    sinks: [{driver: file, params: {directory: `+dir+`, file_prefix: ticks}}]
`)
	_, err := execute(t, "run", "-c", path)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "ticks.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"))
}

func TestRunCommand_UnknownPipeline(t *testing.T) {
	path := writeConfig(t, `
pipelines:
  p:
    source: {driver: clock}
    sinks: [{driver: echo}]
`)
	_, err := execute(t, "run", "-c", path, "--pipeline", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline q")
}
