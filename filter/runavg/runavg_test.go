package runavg

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
	"github.com/pbosetti/mads-plugin/testutil"
)

func load(t *testing.T, f plugin.Filter[params.Params, params.Params], values ...any) {
	t.Helper()
	for _, v := range values {
		require.Equal(t, plugin.Success, f.LoadData(context.Background(), params.Params{"value": v}, ""))
	}
}

func TestWindow_CapacityPatch(t *testing.T) {
	f := New().(*Filter)
	f.SetParams(params.Params{"capacity": 3})
	assert.Equal(t, 3, f.Params().Int("capacity", 0))
	assert.Equal(t, "value", f.Params().String("field", ""))

	load(t, f, 1, 2, 3, 4)
	assert.Equal(t, []float64{2, 3, 4}, f.Window())

	var out params.Params
	require.Equal(t, plugin.Success, f.Process(context.Background(), &out))
	assert.InDelta(t, 3.0, out["mean"], 1e-9)
	assert.Equal(t, 2.0, out["min"])
	assert.Equal(t, 4.0, out["max"])
	assert.InDelta(t, math.Sqrt(2.0/3.0), out["stdev"], 1e-9)
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, []any{2.0, 3.0, 4.0}, out["window"])
}

func TestProcess_Empty(t *testing.T) {
	f := New()
	f.SetParams(nil)

	out := params.Params{"stale": true}
	assert.Equal(t, plugin.Warning, f.Process(context.Background(), &out))
	assert.Nil(t, out)
	assert.Equal(t, "window is empty", f.LastError())
}

func TestLoadData_Invalid(t *testing.T) {
	ctx := context.Background()
	f := New().(*Filter)
	f.SetParams(params.Params{"field": "sensor.temp"})

	assert.Equal(t, plugin.Error, f.LoadData(ctx, params.Params{"value": 1}, ""))
	assert.Contains(t, f.LastError(), `"sensor.temp" missing`)

	assert.Equal(t, plugin.Error, f.LoadData(ctx, params.Params{"sensor": map[string]any{"temp": "hot"}}, ""))
	assert.Contains(t, f.LastError(), "not a number")
	assert.Empty(t, f.Window(), "rejected inputs leave the window untouched")

	assert.Equal(t, plugin.Success, f.LoadData(ctx, params.Params{"sensor": map[string]any{"temp": json.Number("21.5")}}, ""))
	assert.Equal(t, []float64{21.5}, f.Window())
}

func TestSetParams_Reconfigure(t *testing.T) {
	f := New().(*Filter)
	f.SetParams(nil)
	load(t, f, 1, 2, 3, 4, 5)

	f.SetParams(params.Params{"capacity": 2})
	assert.Equal(t, []float64{4, 5}, f.Window(), "the newest values survive a shrink")

	f.SetParams(params.Params{"capacity": 0})
	assert.Contains(t, f.LastError(), "invalid capacity")
	assert.Equal(t, 10, f.Params().Int("capacity", 0))
	require.NoError(t, f.Close())
}

func TestPersist(t *testing.T) {
	backend := testutil.NewMemoryBackend()
	factory := NewWithBackend(backend)
	p := params.Params{"persist": true, "store": "avg-test", "capacity": 3}

	first := factory().(*Filter)
	first.SetParams(p)
	require.Equal(t, plugin.NoError, first.LastError())
	assert.Equal(t, "true", first.Info()["persist"])
	load(t, first, 1, 2, 3, 4)
	require.NoError(t, first.Close())
	assert.Positive(t, backend.Puts())

	second := factory().(*Filter)
	second.SetParams(p)
	assert.Equal(t, []float64{2, 3, 4}, second.Window(), "the window is restored")

	load(t, second, 10)
	var out params.Params
	require.Equal(t, plugin.Success, second.Process(context.Background(), &out))
	assert.Equal(t, 3, out["count"])
	assert.Equal(t, []any{3.0, 4.0, 10.0}, out["window"], "restored values stay in the window")
	require.NoError(t, second.Close())
}

func TestSummarize(t *testing.T) {
	got := Summarize([]float64{5})
	assert.Equal(t, 5.0, got["mean"])
	assert.Equal(t, 0.0, got["stdev"])
	assert.Equal(t, 1, got["count"])
}

func TestSchema(t *testing.T) {
	assert.NoError(t, Defaults().Validate(Schema))
	assert.Error(t, params.Params{"capacity": 0}.Validate(Schema))
}

func TestSetParams_InvalidKeyKeepsOthers(t *testing.T) {
	f := New().(*Filter)
	f.SetParams(params.Params{"field": "temp", "capacity": 3, "persist": "sometimes"})
	assert.Contains(t, f.LastError(), "persist")
	assert.Equal(t, "temp", f.cfg.Field)
	assert.Equal(t, 3, f.cfg.Capacity)
	assert.False(t, f.cfg.Persist)
	assert.Equal(t, false, f.Params()["persist"])
}
