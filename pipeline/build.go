package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pbosetti/mads-plugin/config"
	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/retry"
	"github.com/pbosetti/mads-plugin/plugin"
)

// Build creates a pipeline over params.Params documents from its configuration.
//
// Every stage gets the pipeline agent_id unless its own params set one. The agent_id
// is cfg.AgentID, or a fresh UUID per run. The topic handed to filters and sinks is
// read from the params.TopicKey field of the source output.
func Build(reg *plugin.Registry, name string, cfg config.PipelineConfig, opts ...Option) (*Pipeline[params.Params], error) {
	options := Options{
		Interval:  cfg.Interval,
		MaxCycles: cfg.MaxCycles,
		Recreate:  cfg.Recreate,
		Retry:     cfg.Retry,
	}
	if options.Retry == (retry.Config{}) {
		options.Retry = DefaultOptions().Retry
	}
	opts = append([]Option{WithOptions(options)}, opts...)

	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	stageOpts := []StageOption{WithStageMetrics(s.metrics)}
	if s.logger != nil {
		stageOpts = append(stageOpts, WithStageLogger(s.logger.With("pipeline", name)))
	}

	agentID := cfg.AgentID
	if agentID == "" {
		agentID = uuid.NewString()
	}
	stageParams := func(sc config.StageConfig) params.Params {
		p := sc.Params.Clone()
		if p == nil {
			p = params.New()
		}
		if !p.Has(params.AgentIDKey) {
			p[params.AgentIDKey] = agentID
		}
		return p
	}

	var built []StageHandle
	fail := func(err error) (*Pipeline[params.Params], error) {
		for _, s := range built {
			_ = s.Dispose()
		}
		return nil, errors.Wrap(err, "pipeline", "Build", "pipeline "+name)
	}

	source, err := NewStage("source", cfg.Source.Driver, RoleSource,
		func() (plugin.Source[params.Params], error) {
			return plugin.CreateSource[params.Params](reg, cfg.Source.Driver)
		}, stageParams(cfg.Source), stageOpts...)
	if err != nil {
		return fail(err)
	}
	built = append(built, source)

	p := New(name, source, opts...)
	p.SetTopic(func(out params.Params) string {
		return out.String(params.TopicKey, "")
	})

	for i, fc := range cfg.Filters {
		driver := fc.Driver
		stage, err := NewStage(fmt.Sprintf("filter.%d", i), driver, RoleFilter,
			func() (plugin.Filter[params.Params, params.Params], error) {
				return plugin.CreateFilter[params.Params, params.Params](reg, driver)
			}, stageParams(fc), stageOpts...)
		if err != nil {
			return fail(err)
		}
		built = append(built, stage)
		p.AddFilter(stage)
	}

	for i, sc := range cfg.Sinks {
		driver := sc.Driver
		stage, err := NewStage(fmt.Sprintf("sink.%d", i), driver, RoleSink,
			func() (plugin.Sink[params.Params], error) {
				return plugin.CreateSink[params.Params](reg, driver)
			}, stageParams(sc), stageOpts...)
		if err != nil {
			return fail(err)
		}
		built = append(built, stage)
		p.AddSink(stage)
	}

	if err := p.Validate(); err != nil {
		return fail(err)
	}
	return p, nil
}

// BuildAll builds every pipeline of cfg into a Group. Nothing is left open on error.
func BuildAll(reg *plugin.Registry, cfg *config.Config, opts ...Option) (*Group, error) {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	group := NewGroup(s.logger)
	for _, name := range cfg.PipelineNames() {
		p, err := Build(reg, name, cfg.Pipelines[name], opts...)
		if err != nil {
			_ = group.Close()
			return nil, err
		}
		group.Add(p)
	}
	return group, nil
}
