// Package random provides a Source of normally distributed samples, useful to
// exercise a pipeline without hardware.
package random

import (
	"context"
	"math/rand/v2"
	"strconv"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the source
const DriverName = "random"

// Config is the decoded configuration
type Config struct {
	Elements int     `mapstructure:"number_of_elements"`
	Mean     float64 `mapstructure:"mean"`
	StdDev   float64 `mapstructure:"stddev"`
	Seed     uint64  `mapstructure:"seed"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "number_of_elements": {"type": "integer", "minimum": 1},
    "mean": {"type": "number"},
    "stddev": {"type": "number", "minimum": 0},
    "seed": {"type": "integer", "minimum": 0}
  }
}`

// Defaults returns the default parameters. A zero seed draws a fresh sequence
// on every configuration.
func Defaults() params.Params {
	return params.Params{
		"number_of_elements": 10,
		"mean":               42.0,
		"stddev":             1.0,
		"seed":               0,
	}
}

// Source emits {result: [n samples], agent_id}
type Source struct {
	plugin.Base
	cfg Config
	rng *rand.Rand
}

// New creates an unconfigured source
func New() plugin.Source[params.Params] {
	s := &Source{}
	s.Init(DriverName)
	return s
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSourceDriver(DriverName,
		"emits normally distributed samples", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults and reseeds the generator
func (s *Source) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Elements < 1 {
		s.SetErrorf("invalid number_of_elements %d, using 10", cfg.Elements)
		cfg.Elements = 10
		eff["number_of_elements"] = 10
	}
	if cfg.StdDev < 0 {
		s.SetErrorf("negative stddev %g, using 1", cfg.StdDev)
		cfg.StdDev = 1
		eff["stddev"] = 1.0
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	s.cfg = cfg
	s.SetInfo("number_of_elements", strconv.Itoa(cfg.Elements))
	s.MarkReady()
}

// GetOutput draws number_of_elements samples
func (s *Source) GetOutput(_ context.Context, out *params.Params, _ *plugin.Blob) plugin.ReturnType {
	*out = nil
	if s.rng == nil {
		s.SetError("not configured")
		return plugin.Error
	}
	samples := make([]any, s.cfg.Elements)
	for i := range samples {
		samples[i] = s.cfg.Mean + s.cfg.StdDev*s.rng.NormFloat64()
	}
	*out = params.Params{
		"result":          samples,
		params.AgentIDKey: s.AgentID(),
	}
	return plugin.Success
}
