package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/health"
	"github.com/pbosetti/mads-plugin/metric"
	"github.com/pbosetti/mads-plugin/pkg/retry"
	"github.com/pbosetti/mads-plugin/pkg/timestamp"
	"github.com/pbosetti/mads-plugin/plugin"
)

// Operation names used in reports, logs and metrics
const (
	OpGetOutput = "get_output"
	OpLoadData  = "load_data"
	OpProcess   = "process"
	OpLoadBlob  = "load_blob"
)

// Options controls the Run loop
type Options struct {
	// Interval is the pause between cycles. Zero runs cycles back to back.
	Interval time.Duration
	// MaxCycles stops Run after that many cycles. Zero means no limit.
	MaxCycles int
	// Recreate rebuilds a stage that reported Critical instead of stopping.
	Recreate bool
	// Retry shapes the waits after a source Retry and after a recreation.
	Retry retry.Config
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{
		Interval: 0,
		Retry: retry.Config{
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
			AddJitter:    true,
		},
	}
}

// Option configures a Pipeline
type Option func(*settings)

type settings struct {
	options Options
	logger  *slog.Logger
	metrics *metric.Metrics
	health  *health.Monitor
	clock   timestamp.Clock
}

// WithOptions replaces the loop options
func WithOptions(opts Options) Option {
	return func(s *settings) {
		s.options = opts
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records cycles in the core metrics
func WithMetrics(metrics *metric.Metrics) Option {
	return func(s *settings) {
		s.metrics = metrics
	}
}

// WithHealth records the outcome of every stage call in monitor, keyed
// "pipeline/stage"
func WithHealth(monitor *health.Monitor) Option {
	return func(s *settings) {
		s.health = monitor
	}
}

// WithClock replaces the clock used for waits
func WithClock(clock timestamp.Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Pipeline drives Source -> Filter* -> Sink+ over values of type T.
// Filters are chained, so each one maps T to T.
type Pipeline[T any] struct {
	name    string
	source  *Stage[plugin.Source[T]]
	filters []*Stage[plugin.Filter[T, T]]
	sinks   []*Stage[plugin.Sink[T]]
	topic   func(T) string

	options Options
	logger  *slog.Logger
	metrics *metric.Metrics
	health  *health.Monitor
	clock   timestamp.Clock
	cycles  atomic.Int64
}

// New creates a pipeline around its source. Add filters and sinks before running.
func New[T any](name string, source *Stage[plugin.Source[T]], opts ...Option) *Pipeline[T] {
	s := settings{
		options: DefaultOptions(),
		logger:  slog.Default(),
		clock:   timestamp.System,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &Pipeline[T]{
		name:    name,
		source:  source,
		topic:   func(T) string { return "" },
		options: s.options,
		logger:  s.logger.With("component", "pipeline", "pipeline", name),
		metrics: s.metrics,
		health:  s.health,
		clock:   s.clock,
	}
}

// AddFilter appends a filter stage
func (p *Pipeline[T]) AddFilter(stage *Stage[plugin.Filter[T, T]]) *Pipeline[T] {
	p.filters = append(p.filters, stage)
	return p
}

// AddSink appends a sink stage. Every sink receives every forwarded value.
func (p *Pipeline[T]) AddSink(stage *Stage[plugin.Sink[T]]) *Pipeline[T] {
	p.sinks = append(p.sinks, stage)
	return p
}

// SetTopic sets how the topic passed to filters and sinks is derived from the source output
func (p *Pipeline[T]) SetTopic(fn func(T) string) *Pipeline[T] {
	if fn != nil {
		p.topic = fn
	}
	return p
}

// Name returns the pipeline name
func (p *Pipeline[T]) Name() string { return p.name }

// Options returns the loop options
func (p *Pipeline[T]) Options() Options { return p.options }

// Cycles returns the number of cycles run so far
func (p *Pipeline[T]) Cycles() int64 { return p.cycles.Load() }

// Validate checks that the pipeline has a source and at least one sink
func (p *Pipeline[T]) Validate() error {
	if p.source == nil {
		return errors.WrapInvalid(fmt.Errorf("%w: pipeline %s has no source", errors.ErrMissingConfig, p.name),
			"Pipeline", "Validate", "source check")
	}
	if len(p.sinks) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: pipeline %s has no sink", errors.ErrMissingConfig, p.name),
			"Pipeline", "Validate", "sink check")
	}
	if err := p.options.Retry.Validate(); err != nil {
		return errors.Wrap(err, "Pipeline", "Validate", "retry options")
	}
	return nil
}

// Cycle runs one pass: the source, then the filters in order, then every sink.
// A status that is not forwardable ends the pass at that stage. The value and the
// blob produced by the source travel together: sinks that accept blobs get both.
func (p *Pipeline[T]) Cycle(ctx context.Context) (report CycleReport) {
	report = CycleReport{Pipeline: p.name, Cycle: p.cycles.Add(1)}
	start := p.clock.Now()
	defer func() {
		report.Duration = p.clock.Now().Sub(start)
	}()

	var (
		out  T
		blob plugin.Blob
	)
	status := p.source.Call(OpGetOutput, func(s plugin.Source[T]) plugin.ReturnType {
		return s.GetOutput(ctx, &out, &blob)
	})
	report.add(p.source, OpGetOutput, status)
	if !status.Forwardable() {
		return report
	}
	report.Blob = !blob.Empty()
	topic := p.topic(out)

	for _, f := range p.filters {
		status = f.Call(OpLoadData, func(f plugin.Filter[T, T]) plugin.ReturnType {
			return f.LoadData(ctx, out, topic)
		})
		report.add(f, OpLoadData, status)
		if !status.Forwardable() {
			return report
		}

		var next T
		status = f.Call(OpProcess, func(f plugin.Filter[T, T]) plugin.ReturnType {
			return f.Process(ctx, &next)
		})
		report.add(f, OpProcess, status)
		if !status.Forwardable() {
			return report
		}
		out = next
	}

	for _, s := range p.sinks {
		op := OpLoadData
		var blobSink plugin.BlobSink[T]
		if report.Blob {
			if bs, ok := any(s.Plugin()).(plugin.BlobSink[T]); ok {
				blobSink, op = bs, OpLoadBlob
			}
		}
		status = s.Call(op, func(sink plugin.Sink[T]) plugin.ReturnType {
			if blobSink != nil {
				return blobSink.LoadBlob(ctx, out, blob.Clone(), topic)
			}
			return sink.LoadData(ctx, out, topic)
		})
		report.add(s, op, status)
	}
	report.Delivered = true
	return report
}

// Run cycles until ctx ends, MaxCycles is reached, or a stage reports Critical
// while Recreate is off. A source Retry waits with exponential backoff instead of
// the interval. Cancellation of ctx is a normal stop and returns nil.
func (p *Pipeline[T]) Run(ctx context.Context) error {
	if err := p.Validate(); err != nil {
		return err
	}

	bo := p.options.Retry.NewBackOff()
	p.logger.Info("pipeline started", "interval", p.options.Interval,
		"max_cycles", p.options.MaxCycles, "recreate", p.options.Recreate)

	for n := 0; p.options.MaxCycles <= 0 || n < p.options.MaxCycles; n++ {
		if ctx.Err() != nil {
			break
		}

		report := p.Cycle(ctx)
		p.log(report)
		p.metrics.RecordCycle(p.name, report.Worst().String())
		p.recordHealth(report)

		recreated, err := p.handleCritical(report)
		if err != nil {
			return err
		}

		wait := p.options.Interval
		switch {
		case recreated || report.SourceStatus() == plugin.Retry:
			wait = bo.NextBackOff()
		default:
			bo.Reset()
		}
		if wait > 0 {
			if err := p.clock.Sleep(ctx, wait); err != nil {
				break
			}
		}
	}

	p.logger.Info("pipeline stopped", "cycles", p.cycles.Load())
	return nil
}

// Close disposes every stage. It is safe to call more than once.
func (p *Pipeline[T]) Close() error {
	var errs []error
	for _, s := range p.stages() {
		if err := s.Dispose(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StageHandle is the role independent view of a Stage
type StageHandle interface {
	Name() string
	Driver() string
	Role() string
	Terminated() bool
	Status() plugin.ReturnType
	LastError() string
	Info() map[string]string
	Dispose() error
	Recreate() error
}

// Stages returns every stage in pipeline order
func (p *Pipeline[T]) Stages() []StageHandle {
	return p.stages()
}

func (p *Pipeline[T]) stages() []StageHandle {
	out := make([]StageHandle, 0, 1+len(p.filters)+len(p.sinks))
	if p.source != nil {
		out = append(out, p.source)
	}
	for _, f := range p.filters {
		out = append(out, f)
	}
	for _, s := range p.sinks {
		out = append(out, s)
	}
	return out
}

// handleCritical applies the Critical policy to every terminated stage
func (p *Pipeline[T]) handleCritical(report CycleReport) (bool, error) {
	if report.Worst() != plugin.Critical {
		return false, nil
	}
	recreated := false
	for _, s := range p.stages() {
		if !s.Terminated() {
			continue
		}
		if !p.options.Recreate {
			err := fmt.Errorf("%w: %s %s (%s): %s", errors.ErrTerminated, s.Role(), s.Name(), s.Driver(), s.LastError())
			_ = s.Dispose()
			return false, errors.WrapFatal(err, "Pipeline", "Run", "critical stage")
		}
		if err := s.Recreate(); err != nil {
			return false, errors.WrapFatal(err, "Pipeline", "Run", "recreate "+s.Name())
		}
		recreated = true
	}
	return recreated, nil
}

func (p *Pipeline[T]) recordHealth(report CycleReport) {
	if p.health == nil {
		return
	}
	for _, st := range report.Stages {
		p.health.Record(p.name+"/"+st.Stage, st.Status, st.Error)
	}
}

func (p *Pipeline[T]) log(report CycleReport) {
	for _, st := range report.Stages {
		switch st.Status {
		case plugin.Warning:
			p.logger.Warn("stage warning", "cycle", report.Cycle, "stage", st.Stage,
				"driver", st.Driver, "operation", st.Operation, "error", st.Error)
		case plugin.Error, plugin.Critical:
			p.logger.Error("stage failed", "cycle", report.Cycle, "stage", st.Stage,
				"driver", st.Driver, "operation", st.Operation, "status", st.Status.String(), "error", st.Error)
		}
	}
	p.logger.Debug("cycle done", "cycle", report.Cycle, "status", report.Worst().String(),
		"delivered", report.Delivered, "duration", report.Duration)
}
