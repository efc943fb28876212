// Package echoj provides a pass-through Filter that wraps every document with
// the filter's own configuration, handy to inspect what a stage receives.
package echoj

import (
	"context"
	"strconv"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the filter
const DriverName = "echoj"

// Schema accepts any object
const Schema = `{"type": "object"}`

// Filter emits {data, params, agent_id}: the last loaded document, the
// effective configuration and the agent identifier. Any parameter is accepted.
type Filter struct {
	plugin.Base
	held   params.Params
	topic  string
	loaded bool
	echoed int
}

// New creates an unconfigured filter
func New() plugin.Filter[params.Params, params.Params] {
	f := &Filter{}
	f.Init(DriverName)
	return f
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewFilterDriver(DriverName,
		"passes documents through, wrapped with the filter parameters", New, plugin.WithSchema(Schema)))
}

// SetParams stores p as given over the reserved keys
func (f *Filter) SetParams(p params.Params) {
	f.ClearError()
	f.ApplyParams(nil, p)
	f.MarkReady()
}

// LoadData holds a copy of in and its topic
func (f *Filter) LoadData(_ context.Context, in params.Params, topic string) plugin.ReturnType {
	if in == nil {
		f.SetError("no document")
		return plugin.Error
	}
	f.held = in.Clone()
	f.topic = topic
	f.loaded = true
	return plugin.Success
}

// Process wraps the held document. Without one, data is an empty object and the
// result is a Warning.
func (f *Filter) Process(_ context.Context, out *params.Params) plugin.ReturnType {
	*out = nil
	data := params.New()
	if f.loaded {
		data = f.held.Clone()
	}
	doc := params.Params{
		"data":            data,
		"params":          f.Params().Clone(),
		params.AgentIDKey: f.AgentID(),
	}
	if f.topic != "" {
		doc[params.TopicKey] = f.topic
	}
	*out = doc
	if !f.loaded {
		f.SetError("no data loaded")
		return plugin.Warning
	}
	f.echoed++
	f.SetInfo("echoed", strconv.Itoa(f.echoed))
	return plugin.Success
}
