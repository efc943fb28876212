// Package runavg provides a Filter computing running statistics over a sliding
// window of a numeric field.
//
// With persist enabled the window survives restarts: it is read from the
// persistence service when the filter is configured and written back on Close.
package runavg

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/buffer"
	"github.com/pbosetti/mads-plugin/plugin"
	"github.com/pbosetti/mads-plugin/store"
)

// DriverName is the registered name of the filter
const DriverName = "runavg"

// windowKey is the document key holding the persisted window
const windowKey = "window"

// Config is the decoded configuration
type Config struct {
	Field    string `mapstructure:"field"`
	Capacity int    `mapstructure:"capacity"`
	Persist  bool   `mapstructure:"persist"`
	Store    string `mapstructure:"store"`
	StoreURI string `mapstructure:"store_uri"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "field": {"type": "string", "minLength": 1},
    "capacity": {"type": "integer", "minimum": 1},
    "persist": {"type": "boolean"},
    "store": {"type": "string", "minLength": 1},
    "store_uri": {"type": "string"}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"field":     "value",
		"capacity":  10,
		"persist":   false,
		"store":     DriverName,
		"store_uri": "",
	}
}

// Filter keeps the last Capacity values of Field
type Filter struct {
	plugin.Base
	cfg Config

	window  buffer.Buffer[float64]
	backend store.Backend
	doc     *store.Document
}

// New creates an unconfigured filter. Persisted windows go to the backend named by store_uri.
func New() plugin.Filter[params.Params, params.Params] {
	return NewWithBackend(nil)()
}

// NewWithBackend returns a factory whose instances persist to backend instead of
// dialing store_uri. The backend is shared and never closed by the filter.
func NewWithBackend(backend store.Backend) func() plugin.Filter[params.Params, params.Params] {
	return func() plugin.Filter[params.Params, params.Params] {
		f := &Filter{backend: backend}
		f.Init(DriverName)
		return f
	}
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewFilterDriver(DriverName,
		"running mean, min, max and standard deviation over a sliding window", New,
		plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults. Values already in the window are kept,
// newest first, up to the new capacity.
func (f *Filter) SetParams(p params.Params) {
	f.ClearError()
	eff := f.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		f.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Capacity < 1 {
		f.SetErrorf("invalid capacity %d, using 10", cfg.Capacity)
		cfg.Capacity = 10
		eff["capacity"] = 10
	}
	if cfg.Field == "" {
		cfg.Field = "value"
		eff["field"] = "value"
	}

	var previous []float64
	if f.window != nil {
		previous = f.window.Snapshot()
		_ = f.window.Close()
	}
	window, err := buffer.NewCircularBuffer(cfg.Capacity, buffer.WithOverflowPolicy[float64](buffer.DropOldest))
	if err != nil {
		f.SetErrorf("cannot allocate window: %v", err)
		return
	}
	f.window = window
	f.cfg = cfg

	if cfg.Persist {
		restored, err := f.openDocument()
		if err != nil {
			f.SetErrorf("persistence disabled: %v", err)
		} else if restored != nil {
			previous = restored
		}
	} else {
		f.closeDocument()
	}
	for _, v := range previous {
		_ = f.window.Write(v)
	}

	f.SetInfo("field", cfg.Field)
	f.SetInfo("capacity", strconv.Itoa(cfg.Capacity))
	f.SetInfo("persist", strconv.FormatBool(f.doc != nil))
	f.MarkReady()
}

// openDocument opens the persisted window and returns its values, nil when absent
func (f *Filter) openDocument() ([]float64, error) {
	if f.doc != nil && f.doc.Name() == f.cfg.Store {
		return nil, nil
	}
	f.closeDocument()

	ctx := context.Background()
	backend := f.backend
	var opts []store.Option
	if backend == nil {
		var err error
		if backend, err = store.Dial(ctx, f.cfg.StoreURI); err != nil {
			return nil, err
		}
		opts = append(opts, store.WithOwnedBackend())
	}
	doc, err := store.Open(ctx, backend, f.cfg.Store, opts...)
	if err != nil {
		if f.backend == nil {
			_ = backend.Close()
		}
		return nil, err
	}
	f.doc = doc

	stored, ok := doc.Get(windowKey)
	if !ok {
		return nil, nil
	}
	var list []any
	switch v := stored.(type) {
	case []float64:
		return v, nil
	case []any:
		list = v
	default:
		return nil, fmt.Errorf("stored window is %T, not a list", stored)
	}
	values := make([]float64, 0, len(list))
	for _, item := range list {
		if v, ok := params.Number(item); ok {
			values = append(values, v)
		}
	}
	return values, nil
}

func (f *Filter) closeDocument() {
	if f.doc == nil {
		return
	}
	if err := f.doc.Close(); err != nil {
		f.SetErrorf("save window: %v", err)
	}
	f.doc = nil
}

// LoadData appends the numeric value of the configured field to the window
func (f *Filter) LoadData(_ context.Context, in params.Params, _ string) plugin.ReturnType {
	if f.window == nil {
		f.SetError("not configured")
		return plugin.Error
	}
	raw, ok := in.Lookup(f.cfg.Field)
	if !ok {
		f.SetErrorf("field %q missing", f.cfg.Field)
		return plugin.Error
	}
	v, ok := params.Number(raw)
	if !ok {
		f.SetErrorf("field %q is not a number: %v", f.cfg.Field, raw)
		return plugin.Error
	}
	if err := f.window.Write(v); err != nil {
		return f.Fail(err)
	}
	if f.doc != nil {
		f.doc.Set(windowKey, f.window.Snapshot())
	}
	return plugin.Success
}

// Process emits the statistics of the current window
func (f *Filter) Process(_ context.Context, out *params.Params) plugin.ReturnType {
	*out = nil
	if f.window == nil || f.window.IsEmpty() {
		f.SetError("window is empty")
		return plugin.Warning
	}
	*out = Summarize(f.window.Snapshot())
	return plugin.Success
}

// Window returns the current window, oldest first
func (f *Filter) Window() []float64 {
	if f.window == nil {
		return nil
	}
	return f.window.Snapshot()
}

// Close saves a persisted window and releases the store
func (f *Filter) Close() error {
	var err error
	if f.doc != nil {
		err = f.doc.Close()
		f.doc = nil
	}
	if f.window != nil {
		_ = f.window.Close()
	}
	return err
}

// Summarize computes the statistics of values. Values must not be empty.
func Summarize(values []float64) params.Params {
	lo, hi, sum := values[0], values[0], 0.0
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	n := float64(len(values))
	mean := sum / n

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}

	window := make([]any, len(values))
	for i, v := range values {
		window[i] = v
	}
	return params.Params{
		"mean":   mean,
		"min":    lo,
		"max":    hi,
		"stdev":  math.Sqrt(sq / n),
		"count":  len(values),
		"window": window,
	}
}
