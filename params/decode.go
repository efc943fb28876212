package params

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/pbosetti/mads-plugin/errors"
)

// Decode copies the document into a struct tagged with `mapstructure` keys.
// Input is weakly typed so numbers coming from JSON fit integer fields, and
// duration strings decode into time.Duration.
func (p Params) Decode(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return errors.WrapInvalid(err, "params", "Decode", "decoder setup")
	}
	if err := decoder.Decode(map[string]any(p)); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err), "params", "Decode", "decode")
	}
	return nil
}

// DecodeOver decodes the document like Decode, but a key whose value does not
// decode falls back to its value in defaults instead of failing the whole
// document. Rejected keys are rewritten in p (or removed when defaults has no
// value for them) so p stays in step with out. The returned error names the
// rejected keys. out is always usable: when no single key is to blame it holds
// the defaults.
func (p Params) DecodeOver(defaults Params, out any) error {
	err := p.Decode(out)
	if err == nil {
		return nil
	}
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return err
	}

	var rejected []string
	for _, key := range p.Keys() {
		scratch := reflect.New(target.Elem().Type()).Interface()
		if (Params{key: p[key]}).Decode(scratch) == nil {
			continue
		}
		rejected = append(rejected, key)
		if def, ok := defaults[key]; ok {
			p[key] = cloneValue(def)
		} else {
			delete(p, key)
		}
	}
	target.Elem().SetZero()
	if len(rejected) == 0 {
		_ = defaults.Decode(out)
		return err
	}

	if err := p.Decode(out); err != nil {
		return err
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: using defaults for %s", errors.ErrInvalidConfig, strings.Join(rejected, ", ")),
		"params", "DecodeOver", "per-key fallback")
}

// Validate checks the document against a JSON schema. An empty schema accepts anything.
func (p Params) Validate(schema string) error {
	if strings.TrimSpace(schema) == "" {
		return nil
	}

	doc := map[string]any(p)
	if doc == nil {
		doc = map[string]any{}
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errors.WrapInvalid(err, "params", "Validate", "schema evaluation")
	}
	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(messages, "; ")),
		"params", "Validate", "schema validation")
}

// Parse decodes a JSON or YAML document. YAML is a superset of JSON, so the YAML
// decoder handles both.
func Parse(data []byte) (Params, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "params", "Parse", "yaml decode")
	}
	if raw == nil {
		return Params{}, nil
	}
	return Params(normalize(raw).(map[string]any)), nil
}

// Load reads a parameter document from disk. Files ending in .json use the JSON
// decoder so numbers keep their float64 representation.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "params", "Load", "read file")
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		var p Params
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "params", "Load", "json decode")
		}
		if p == nil {
			p = Params{}
		}
		return p, nil
	}
	return Parse(data)
}
