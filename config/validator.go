package config

import (
	"fmt"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/plugin"
)

// StageRef locates one stage of one pipeline
type StageRef struct {
	Pipeline string
	Server   string
	Index    int
	Stage    StageConfig
}

// Path renders the configuration path of the stage, e.g. "pipelines.avg.filters[0]"
func (r StageRef) Path() string {
	switch r.Server {
	case plugin.SourceServer:
		return fmt.Sprintf("pipelines.%s.source", r.Pipeline)
	case plugin.FilterServer:
		return fmt.Sprintf("pipelines.%s.filters[%d]", r.Pipeline, r.Index)
	default:
		return fmt.Sprintf("pipelines.%s.sinks[%d]", r.Pipeline, r.Index)
	}
}

// Stages lists every stage of every pipeline, pipelines in name order
func (c *Config) Stages() []StageRef {
	var refs []StageRef
	for _, name := range c.PipelineNames() {
		p := c.Pipelines[name]
		refs = append(refs, StageRef{Pipeline: name, Server: plugin.SourceServer, Stage: p.Source})
		for i, f := range p.Filters {
			refs = append(refs, StageRef{Pipeline: name, Server: plugin.FilterServer, Index: i, Stage: f})
		}
		for i, s := range p.Sinks {
			refs = append(refs, StageRef{Pipeline: name, Server: plugin.SinkServer, Index: i, Stage: s})
		}
	}
	return refs
}

// ValidateDrivers checks every stage against the registry: the driver must exist
// under the stage's role, speak the host protocol version, and, when it publishes a
// schema, accept the effective parameters. Instances created for the schema check
// are closed before returning.
func (c *Config) ValidateDrivers(reg *plugin.Registry) error {
	var errs []error
	for _, ref := range c.Stages() {
		if err := validateStage(reg, ref); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ref.Path(), err))
		}
	}
	if len(errs) > 0 {
		return errors.WrapInvalid(errors.Join(errs...), "Config", "ValidateDrivers", "driver check")
	}
	return nil
}

func validateStage(reg *plugin.Registry, ref StageRef) error {
	d, ok := reg.Lookup(ref.Server, ref.Stage.Driver)
	if !ok {
		return fmt.Errorf("%w: %s/%s", errors.ErrDriverNotFound, ref.Server, ref.Stage.Driver)
	}
	if err := plugin.CheckVersion(d); err != nil {
		return err
	}
	if d.Schema == "" {
		return nil
	}

	p, err := reg.Create(ref.Server, ref.Stage.Driver)
	if err != nil {
		return err
	}
	if closer, ok := p.(plugin.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	p.SetParams(ref.Stage.Params.Clone())

	configurable, ok := p.(plugin.Configurable)
	if !ok {
		return nil
	}
	return configurable.Params().Validate(d.Schema)
}
