// Package clock provides a Source that emits the current time
package clock

import (
	"context"
	"time"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/timestamp"
	"github.com/pbosetti/mads-plugin/plugin"
)

// DriverName is the registered name of the source
const DriverName = "clock"

// Config is the decoded configuration
type Config struct {
	Format string        `mapstructure:"format"`
	UTC    bool          `mapstructure:"utc"`
	Period time.Duration `mapstructure:"period"`
}

// Schema describes the accepted parameters
const Schema = `{
  "type": "object",
  "properties": {
    "format": {"type": "string", "minLength": 1},
    "utc": {"type": "boolean"},
    "period": {"type": ["string", "number"]}
  }
}`

// Defaults returns the default parameters
func Defaults() params.Params {
	return params.Params{
		"format": time.RFC3339Nano,
		"utc":    false,
		"period": "0s",
	}
}

// Source emits {time, unix_ms, agent_id}. With a period it paces itself,
// waiting in GetOutput until the next tick.
type Source struct {
	plugin.Base
	cfg   Config
	clock timestamp.Clock
	next  time.Time
}

// New creates an unconfigured source reading the system clock
func New() plugin.Source[params.Params] {
	return NewWithClock(timestamp.System)()
}

// NewWithClock returns a factory whose instances read clock
func NewWithClock(clock timestamp.Clock) func() plugin.Source[params.Params] {
	return func() plugin.Source[params.Params] {
		s := &Source{clock: clock}
		s.Init(DriverName)
		return s
	}
}

// Register registers the driver
func Register(reg *plugin.Registry) error {
	return reg.Register(plugin.NewSourceDriver(DriverName,
		"emits the current time, optionally paced by a period", New, plugin.WithSchema(Schema)))
}

// SetParams applies p over the defaults
func (s *Source) SetParams(p params.Params) {
	s.ClearError()
	eff := s.ApplyParams(Defaults(), p)

	var cfg Config
	if err := eff.DecodeOver(Defaults(), &cfg); err != nil {
		s.SetErrorf("invalid configuration: %v", err)
	}
	if cfg.Format == "" {
		cfg.Format = time.RFC3339Nano
		eff["format"] = cfg.Format
	}
	if cfg.Period < 0 {
		s.SetErrorf("negative period %s, not pacing", cfg.Period)
		cfg.Period = 0
		eff["period"] = "0s"
	}
	s.cfg = cfg
	s.next = time.Time{}
	s.SetInfo("format", cfg.Format)
	s.SetInfo("period", cfg.Period.String())
	s.MarkReady()
}

// GetOutput waits for the next tick when paced and reports the time
func (s *Source) GetOutput(ctx context.Context, out *params.Params, _ *plugin.Blob) plugin.ReturnType {
	*out = nil
	if s.cfg.Period > 0 {
		now := s.clock.Now()
		if s.next.IsZero() {
			s.next = now
		}
		if err := s.clock.Sleep(ctx, s.next.Sub(now)); err != nil {
			s.SetError("interrupted while waiting for the next tick")
			return plugin.Retry
		}
		s.next = s.next.Add(s.cfg.Period)
	}

	now := s.clock.Now()
	if s.cfg.UTC {
		now = now.UTC()
	}
	*out = params.Params{
		"time":            now.Format(s.cfg.Format),
		"unix_ms":         timestamp.ToUnixMs(now),
		params.AgentIDKey: s.AgentID(),
	}
	return plugin.Success
}
