// Package params implements the configuration object exchanged between a host and
// its plugins: a JSON-compatible nested document with merge-patch semantics, typed
// accessors that always fall back to a default, and helpers to decode, validate and
// load documents.
package params

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pbosetti/mads-plugin/errors"
)

// AgentIDKey is the reserved key read by the base SetParams behaviour of every role.
const AgentIDKey = "agent_id"

// TopicKey carries the topic of a value inside the value itself, for sources that
// receive from a topic based transport. Hosts read it to fill the topic argument.
const TopicKey = "_topic"

// Undefined is the explicit sentinel used for reserved keys that were not supplied.
const Undefined = "undefined"

// Limits applied by the typed accessors
const (
	MaxStringLength = 4096
	MaxInt          = math.MaxInt32
	MinInt          = math.MinInt32
)

// Params is a recursively structured, string keyed configuration document.
// Values are scalars, slices or nested maps, exactly like decoded JSON.
type Params map[string]any

// New returns an empty document.
func New() Params {
	return Params{}
}

// FromJSON decodes a JSON object into a document.
func FromJSON(data []byte) (Params, error) {
	if len(data) == 0 {
		return Params{}, nil
	}
	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.WrapInvalid(err, "params", "FromJSON", "json decode")
	}
	if p == nil {
		p = Params{}
	}
	return p, nil
}

// JSON encodes the document.
func (p Params) JSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

// Clone returns a deep copy of the document.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// Keys returns the top-level keys in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether the top-level key is present.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Lookup resolves a dot separated path ("position.lat") through nested maps.
// A literal top-level key containing dots wins over path traversal.
func (p Params) Lookup(path string) (any, bool) {
	if v, ok := p[path]; ok {
		return v, true
	}

	var current any = map[string]any(p)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// String returns the string value of key, or def when missing or not a string.
// Control characters other than whitespace are stripped.
func (p Params) String(key, def string) string {
	value, exists := p[key]
	if !exists {
		return def
	}
	str, ok := value.(string)
	if !ok || len(str) > MaxStringLength {
		return def
	}
	return strings.Map(func(r rune) rune {
		if r == '\x00' || (r < 32 && r != '\t' && r != '\n' && r != '\r') {
			return -1
		}
		return r
	}, str)
}

// Int returns the integer value of key, or def when missing, fractional or out of range.
func (p Params) Int(key string, def int) int {
	value, exists := p[key]
	if !exists {
		return def
	}
	f, ok := toFloat(value)
	if !ok || f < MinInt || f > MaxInt {
		return def
	}
	result := int(f)
	if float64(result) != f {
		return def
	}
	return result
}

// Float returns the numeric value of key, or def when missing, NaN or infinite.
func (p Params) Float(key string, def float64) float64 {
	value, exists := p[key]
	if !exists {
		return def
	}
	f, ok := toFloat(value)
	if !ok {
		return def
	}
	return f
}

// Bool returns the boolean value of key, or def when missing or not a boolean.
func (p Params) Bool(key string, def bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return def
}

// Duration accepts Go duration strings ("250ms") or numbers of seconds.
func (p Params) Duration(key string, def time.Duration) time.Duration {
	value, exists := p[key]
	if !exists {
		return def
	}
	switch v := value.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return def
		}
		return d
	case time.Duration:
		return v
	default:
		f, ok := toFloat(v)
		if !ok {
			return def
		}
		return time.Duration(f * float64(time.Second))
	}
}

// Strings returns a string slice for key. Non-string elements make it return def.
func (p Params) Strings(key string, def []string) []string {
	switch v := p[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return def
			}
			out = append(out, s)
		}
		return out
	default:
		return def
	}
}

// Map returns the nested document stored under key, or nil.
func (p Params) Map(key string) Params {
	m, ok := asMap(p[key])
	if !ok {
		return nil
	}
	return Params(m)
}

// AgentID returns the reserved agent identifier, or Undefined.
func (p Params) AgentID() string {
	return p.String(AgentIDKey, Undefined)
}

// Number converts any JSON or Go numeric value to float64.
func Number(value any) (float64, bool) {
	return toFloat(value)
}

func toFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// asMap returns the map behind the supported object representations.
func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case Params:
		return map[string]any(v), true
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out, true
	default:
		return nil, false
	}
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case Params:
		return map[string]any(v.Clone())
	case map[any]any:
		m, _ := asMap(v)
		return m
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case []float64:
		return append([]float64(nil), v...)
	case []int:
		return append([]int(nil), v...)
	case []byte:
		return append([]byte(nil), v...)
	default:
		return v
	}
}

// normalize converts YAML style maps into string keyed maps, recursively.
func normalize(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for k, item := range v {
			v[k] = normalize(item)
		}
		return v
	case map[any]any:
		m, _ := asMap(v)
		return m
	case []any:
		for i, item := range v {
			v[i] = normalize(item)
		}
		return v
	default:
		return v
	}
}
