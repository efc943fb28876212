package echo

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
	"github.com/pbosetti/mads-plugin/testutil"
)

func TestLoadData(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithWriter(&buf)()
	s.SetParams(params.Params{"prefix": "> "})

	require.Equal(t, plugin.Success, s.LoadData(context.Background(), params.Params{"b": 2, "a": "x"}, ""))
	require.Equal(t, plugin.Success, s.LoadData(context.Background(), params.Params{"c": true}, "sensors/a"))
	assert.Equal(t, "> {\"a\":\"x\",\"b\":2}\n> [sensors/a] {\"c\":true}\n", buf.String())
}

func TestLoadData_Pretty(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithWriter(&buf)()
	s.SetParams(params.Params{"pretty": true})
	require.Equal(t, plugin.Success, s.LoadData(context.Background(), params.Params{"a": 1}, ""))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())
}

func TestLoadData_WriteFailure(t *testing.T) {
	w := testutil.NewResource("out")
	w.WriteFunc = func([]byte) error { return testutil.ErrMockFailed }
	s := NewWithWriter(w)()
	s.SetParams(nil)
	assert.Equal(t, plugin.Error, s.LoadData(context.Background(), params.Params{"a": 1}, ""))
	assert.Contains(t, s.LastError(), "write")
}

func TestSetParams_InvalidOutput(t *testing.T) {
	s := New()
	s.SetParams(params.Params{"output": "printer"})
	assert.Contains(t, s.LastError(), `invalid output "printer"`)
	assert.Equal(t, "stdout", s.(*Sink).Params()["output"])
}

func TestSetParams_InvalidKeyKeepsOthers(t *testing.T) {
	var buf bytes.Buffer
	s := NewWithWriter(&buf)()
	s.SetParams(params.Params{"prefix": "> ", "pretty": "very"})
	assert.Contains(t, s.LastError(), "pretty")
	assert.Equal(t, false, s.(*Sink).Params()["pretty"])

	require.Equal(t, plugin.Success, s.LoadData(context.Background(), params.Params{"a": 1}, ""))
	assert.Equal(t, "> {\"a\":1}\n", buf.String())
}
