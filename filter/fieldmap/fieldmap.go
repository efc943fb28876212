// Package fieldmap provides a Filter that renames, transforms, adds and removes document fields
package fieldmap

import (
	"context"
	"slices"
	"strings"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the filter
const DriverName = "fieldmap"

// Transforms understood by mappings
var Transforms = []string{"copy", "uppercase", "lowercase", "trim"}

// Mapping moves Source to Target, applying Transform on the way. Source and Target
// accept dot notation. Mapping a field onto itself transforms it in place.
type Mapping struct {
	Source    string `mapstructure:"source"`
	Target    string `mapstructure:"target"`
	Transform string `mapstructure:"transform"`
}

// Config is the decoded configuration
type Config struct {
	Mappings     []Mapping      `mapstructure:"mappings"`
	AddFields    map[string]any `mapstructure:"add_fields"`
	RemoveFields []string       `mapstructure:"remove_fields"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "mappings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source", "target"],
        "properties": {
          "source": {"type": "string", "minLength": 1},
          "target": {"type": "string", "minLength": 1},
          "transform": {"enum": ["", "copy", "uppercase", "lowercase", "trim"]}
        }
      }
    },
    "add_fields": {"type": "object"},
    "remove_fields": {"type": "array", "items": {"type": "string"}}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"mappings":      []any{},
		"add_fields":    map[string]any{},
		"remove_fields": []any{},
	}
}

// Filter rewrites the last loaded document in Process.
//
// The order is: remove_fields, then mappings (each reading the original document),
// then add_fields. A mapping whose source is missing is skipped and the result is
// returned with Warning.
type Filter struct {
	plugin.Base
	cfg Config

	held   params.Params
	loaded bool
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
		"renames, transforms, adds and removes document fields", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults
func (f *Filter) SetParams(p params.Params) {
	f.ClearError()
	eff := f.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		f.SetErrorf("invalid configuration: %v", err)
	}
	for i, m := range cfg.Mappings {
		if m.Transform != "" && !slices.Contains(Transforms, m.Transform) {
			f.SetErrorf("mapping %s -> %s: unknown transform %q, copying", m.Source, m.Target, m.Transform)
			cfg.Mappings[i].Transform = "copy"
		}
	}
	f.cfg = cfg
	f.MarkReady()
}

// LoadData holds a copy of in
func (f *Filter) LoadData(_ context.Context, in params.Params, _ string) plugin.ReturnType {
	if in == nil {
		f.SetError("no document")
		return plugin.Error
	}
	f.held = in.Clone()
	f.loaded = true
	return plugin.Success
}

// Process emits the rewritten document
func (f *Filter) Process(_ context.Context, out *params.Params) plugin.ReturnType {
	*out = nil
	if !f.loaded {
		f.SetError("no data loaded")
		return plugin.Warning
	}

	result, missing := f.Apply(f.held)
	*out = result
	if len(missing) > 0 {
		f.SetErrorf("missing source fields: %s", strings.Join(missing, ", "))
		return plugin.Warning
	}
	return plugin.Success
}

// Apply rewrites a copy of doc and returns it with the sources that were missing
func (f *Filter) Apply(doc params.Params) (params.Params, []string) {
	result := doc.Clone()
	for _, field := range f.cfg.RemoveFields {
		deletePath(result, field)
	}

	var missing []string
	for _, m := range f.cfg.Mappings {
		value, ok := doc.Lookup(m.Source)
		if !ok {
			missing = append(missing, m.Source)
			continue
		}
		if m.Source != m.Target {
			deletePath(result, m.Source)
		}
		setPath(result, m.Target, transform(params.Params{"v": value}.Clone()["v"], m.Transform))
	}

	for key, value := range params.Params(f.cfg.AddFields).Clone() {
		result[key] = value
	}
	return result, missing
}

func transform(value any, name string) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	switch name {
	case "uppercase":
		return strings.ToUpper(s)
	case "lowercase":
		return strings.ToLower(s)
	case "trim":
		return strings.TrimSpace(s)
	default:
		return value
	}
}

// setPath stores value at a dotted path, creating intermediate objects
func setPath(doc params.Params, path string, value any) {
	parts := strings.Split(path, ".")
	current := map[string]any(doc)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// deletePath removes the value at a dotted path. A literal top-level key wins.
func deletePath(doc params.Params, path string) {
	if _, ok := doc[path]; ok {
		delete(doc, path)
		return
	}
	parts := strings.Split(path, ".")
	current := map[string]any(doc)
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}
