// Package echo provides a Sink that prints every document it receives
package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the sink
const DriverName = "echo"

// Config is the decoded configuration
type Config struct {
	Pretty bool   `mapstructure:"pretty"`
	Prefix string `mapstructure:"prefix"`
	Output string `mapstructure:"output"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "pretty": {"type": "boolean"},
    "prefix": {"type": "string"},
    "output": {"enum": ["stdout", "stderr"]}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"pretty": false,
		"prefix": "",
		"output": "stdout",
	}
}

// Sink writes one JSON document per line, prefixed by the topic when there is one
type Sink struct {
	plugin.Base
	cfg Config
	w   io.Writer
	set bool
}

// New creates an unconfigured sink
func New() plugin.Sink[params.Params] {
	s := &Sink{}
	s.Init(DriverName)
	return s
}

// NewWithWriter returns a factory whose instances print to w, ignoring output
func NewWithWriter(w io.Writer) func() plugin.Sink[params.Params] {
	return func() plugin.Sink[params.Params] {
		s := &Sink{w: w, set: true}
		s.Init(DriverName)
		return s
	}
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSinkDriver(DriverName,
		"prints documents to standard output", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults
func (s *Sink) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if !s.set {
		switch cfg.Output {
		case "stderr":
			s.w = os.Stderr
		case "stdout":
			s.w = os.Stdout
		default:
			s.SetErrorf("invalid output %q, using stdout", cfg.Output)
			eff["output"] = "stdout"
			s.w = os.Stdout
		}
	}
	s.cfg = cfg
	s.MarkReady()
}

// LoadData prints in
func (s *Sink) LoadData(_ context.Context, in params.Params, topic string) plugin.ReturnType {
	if s.w == nil {
		s.w = os.Stdout
	}
	var data []byte
	var err error
	if s.cfg.Pretty {
		data, err = json.MarshalIndent(map[string]any(in), "", "  ")
	} else {
		data, err = json.Marshal(map[string]any(in))
	}
	if err != nil {
		s.SetErrorf("encode: %v", err)
		return plugin.Error
	}

	prefix := s.cfg.Prefix
	if topic != "" {
		prefix += "[" + topic + "] "
	}
	if _, err := fmt.Fprintf(s.w, "%s%s\n", prefix, data); err != nil {
		s.SetErrorf("write: %v", err)
		return plugin.Error
	}
	return plugin.Success
}
