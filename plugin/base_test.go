package plugin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
)

func TestBase_Defaults(t *testing.T) {
	var b Base
	b.Init("test")

	assert.Equal(t, "test", b.Kind())
	assert.Equal(t, NoError, b.LastError())
	assert.Equal(t, StateUninitialized, b.State())
	assert.Equal(t, "uninitialized", b.Info()["state"])
}

func TestBase_SetParamsSeedsAgentID(t *testing.T) {
	var b Base
	b.SetParams(nil)
	assert.Equal(t, params.Undefined, b.AgentID())
	assert.Equal(t, StateConfigured, b.State())

	b.SetParams(params.Params{params.AgentIDKey: "agent-1", "x": 1.0})
	assert.Equal(t, "agent-1", b.AgentID())
	assert.Equal(t, 1.0, b.Params()["x"])
}

func TestBase_ApplyParamsIsIdempotent(t *testing.T) {
	defaults := params.Params{"capacity": 10.0, "nested": map[string]any{"a": 1.0, "b": 2.0}}
	patch := params.Params{"capacity": 3.0, "nested": map[string]any{"b": nil}}

	var once, twice Base
	first := once.ApplyParams(defaults, patch)
	twice.ApplyParams(defaults, patch)
	second := twice.ApplyParams(defaults, patch)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("SetParams twice differs from once (-once +twice):\n%s", diff)
	}

	expected := params.Params{
		params.AgentIDKey: params.Undefined,
		"capacity":        3.0,
		"nested":          map[string]any{"a": 1.0},
	}
	if diff := cmp.Diff(expected, first); diff != "" {
		t.Fatalf("unexpected effective config (-want +got):\n%s", diff)
	}

	assert.Equal(t, 10.0, defaults["capacity"], "defaults must not be mutated")
	assert.Contains(t, defaults["nested"].(map[string]any), "b")
}

func TestBase_ErrorTracking(t *testing.T) {
	var b Base
	b.SetError("boom")
	assert.Equal(t, "boom", b.LastError())

	b.SetErrorf("bad %s", "field")
	assert.Equal(t, "bad field", b.LastError())

	b.ClearError()
	assert.Equal(t, NoError, b.LastError())
}

func TestBase_Fail(t *testing.T) {
	var b Base
	b.SetParams(nil)
	b.MarkReady()

	assert.Equal(t, Success, b.Fail(nil))
	assert.Equal(t, NoError, b.LastError())

	assert.Equal(t, Error, b.Fail(errors.ErrInvalidInput))
	assert.Equal(t, errors.ErrInvalidInput.Error(), b.LastError())
	assert.Equal(t, StateReady, b.State())

	assert.Equal(t, Critical, b.Fail(errors.ErrDeviceLost))
	assert.True(t, b.Terminated())

	b.MarkReady()
	assert.Equal(t, StateTerminated, b.State(), "terminated is final")
}

func TestBase_InfoIsCopy(t *testing.T) {
	var b Base
	b.SetInfo("blob_format", "image/png")

	info := b.Info()
	info["blob_format"] = "changed"

	assert.Equal(t, "image/png", b.Info()["blob_format"])
}

func TestBlob(t *testing.T) {
	var nilBlob *Blob
	assert.True(t, nilBlob.Empty())
	assert.Equal(t, Blob{}, nilBlob.Clone())

	var b Blob
	assert.True(t, b.Empty())

	src := []byte{1, 2, 3}
	b.Set("application/octet-stream", src)
	src[0] = 9
	assert.False(t, b.Empty())
	assert.Equal(t, []byte{1, 2, 3}, b.Data)

	c := b.Clone()
	b.Reset()
	assert.True(t, b.Empty())
	assert.Empty(t, b.Format)
	assert.Equal(t, []byte{1, 2, 3}, c.Data)
}
