// Package fieldfilter provides a Filter that forwards documents matching a set of field rules
package fieldfilter

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the filter
const DriverName = "fieldfilter"

// Match modes
const (
	ModeAll = "all"
	ModeAny = "any"
)

// Operators understood by rules
var Operators = []string{"eq", "ne", "gt", "gte", "lt", "lte", "contains", "exists"}

// Rule is one condition on a field. Field accepts dot notation for nested fields.
type Rule struct {
	Field    string `mapstructure:"field"`
	Operator string `mapstructure:"operator"`
	Value    any    `mapstructure:"value"`
}

// Config is the decoded configuration
type Config struct {
	Rules []Rule `mapstructure:"rules"`
	Mode  string `mapstructure:"mode"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "mode": {"enum": ["all", "any"]},
    "rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field", "operator"],
        "properties": {
          "field": {"type": "string", "minLength": 1},
          "operator": {"enum": ["eq", "ne", "gt", "gte", "lt", "lte", "contains", "exists"]}
        }
      }
    }
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"mode":  ModeAll,
		"rules": []any{},
	}
}

// Filter holds the last loaded document and forwards it from Process when the
// rules match. A document that does not match yields Retry with an empty output.
type Filter struct {
	plugin.Base
	cfg Config

	held   params.Params
	loaded bool

	passed   int
	filtered int
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
		"forwards documents whose fields match all (or any) rules", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults. Rules with an unknown operator are kept
// and never match; the problem is reported through LastError.
func (f *Filter) SetParams(p params.Params) {
	f.ClearError()
	eff := f.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		f.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Mode != ModeAll && cfg.Mode != ModeAny {
		f.SetErrorf("invalid mode %q, using %q", cfg.Mode, ModeAll)
		cfg.Mode = ModeAll
		eff["mode"] = ModeAll
	}
	for _, r := range cfg.Rules {
		if !slices.Contains(Operators, r.Operator) {
			f.SetErrorf("rule on %q: unknown operator %q", r.Field, r.Operator)
		}
	}
	f.cfg = cfg
	f.SetInfo("mode", cfg.Mode)
	f.SetInfo("rules", strconv.Itoa(len(cfg.Rules)))
	f.MarkReady()
}

// LoadData holds a copy of in. A nil document is structurally unusable.
func (f *Filter) LoadData(_ context.Context, in params.Params, _ string) plugin.ReturnType {
	if in == nil {
		f.SetError("no document")
		return plugin.Error
	}
	f.held = in.Clone()
	f.loaded = true
	return plugin.Success
}

// Process forwards the held document when it matches
func (f *Filter) Process(_ context.Context, out *params.Params) plugin.ReturnType {
	*out = nil
	if !f.loaded {
		f.SetError("no data loaded")
		return plugin.Warning
	}
	if !f.Matches(f.held) {
		f.filtered++
		f.SetInfo("filtered", strconv.Itoa(f.filtered))
		return plugin.Retry
	}
	f.passed++
	f.SetInfo("passed", strconv.Itoa(f.passed))
	*out = f.held.Clone()
	return plugin.Success
}

// Matches evaluates the rules against doc. No rules match everything.
func (f *Filter) Matches(doc params.Params) bool {
	if len(f.cfg.Rules) == 0 {
		return true
	}
	for _, rule := range f.cfg.Rules {
		ok := matchRule(doc, rule)
		if f.cfg.Mode == ModeAny && ok {
			return true
		}
		if f.cfg.Mode == ModeAll && !ok {
			return false
		}
	}
	return f.cfg.Mode == ModeAll
}

func matchRule(doc params.Params, rule Rule) bool {
	value, found := doc.Lookup(rule.Field)
	if rule.Operator == "exists" {
		return found
	}
	if !found || value == nil {
		return false
	}

	switch rule.Operator {
	case "eq":
		return equal(value, rule.Value)
	case "ne":
		return !equal(value, rule.Value)
	case "gt", "gte", "lt", "lte":
		a, okA := params.Number(value)
		b, okB := params.Number(rule.Value)
		if !okA || !okB {
			return false
		}
		switch rule.Operator {
		case "gt":
			return a > b
		case "gte":
			return a >= b
		case "lt":
			return a < b
		default:
			return a <= b
		}
	case "contains":
		if list, ok := value.([]any); ok {
			return slices.ContainsFunc(list, func(item any) bool { return equal(item, rule.Value) })
		}
		return strings.Contains(fmt.Sprint(value), fmt.Sprint(rule.Value))
	default:
		return false
	}
}

// equal compares numbers numerically and everything else by its printed form
func equal(a, b any) bool {
	if x, ok := params.Number(a); ok {
		if y, ok := params.Number(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
