package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/metric"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/plugin"
)

// Role labels used in logs and metrics
const (
	RoleSource = "source"
	RoleFilter = "filter"
	RoleSink   = "sink"
)

// Stage owns one plugin instance on behalf of a pipeline.
//
// It is the host side state check of the contract: once the instance reports
// Critical (or panics) every further call is refused with Critical and
// ErrTerminated, without reaching the instance, until Recreate builds a new one.
// A Stage is not safe for concurrent use; the owning pipeline serialises calls.
type Stage[P plugin.Plugin] struct {
	name    string
	driver  string
	role    string
	create  func() (P, error)
	params  params.Params
	logger  *slog.Logger
	metrics *metric.Metrics

	instance   P
	live       bool
	terminated bool
	hostErr    error
	lastStatus plugin.ReturnType
}

// StageOption configures a Stage
type StageOption func(*stageSettings)

type stageSettings struct {
	logger  *slog.Logger
	metrics *metric.Metrics
}

// WithStageLogger sets the stage logger
func WithStageLogger(logger *slog.Logger) StageOption {
	return func(s *stageSettings) {
		s.logger = logger
	}
}

// WithStageMetrics records operations in the core metrics
func WithStageMetrics(metrics *metric.Metrics) StageOption {
	return func(s *stageSettings) {
		s.metrics = metrics
	}
}

// NewStage creates the instance with create and applies p to it
func NewStage[P plugin.Plugin](name, driver, role string, create func() (P, error), p params.Params, opts ...StageOption) (*Stage[P], error) {
	if create == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Stage", "NewStage", "factory validation")
	}
	settings := stageSettings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.logger == nil {
		settings.logger = slog.Default()
	}

	s := &Stage[P]{
		name:    name,
		driver:  driver,
		role:    role,
		create:  create,
		params:  p.Clone(),
		logger:  settings.logger.With("stage", name, "driver", driver, "role", role),
		metrics: settings.metrics,
	}
	if err := s.instantiate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Name returns the position of the stage in its pipeline ("source", "filter.0", ...)
func (s *Stage[P]) Name() string { return s.name }

// Driver returns the driver name the instance was created from
func (s *Stage[P]) Driver() string { return s.driver }

// Role returns the role label
func (s *Stage[P]) Role() string { return s.role }

// Plugin returns the current instance. It is the zero value after Dispose.
func (s *Stage[P]) Plugin() P { return s.instance }

// Params returns the parameters applied to every instance
func (s *Stage[P]) Params() params.Params { return s.params }

// Terminated reports whether the instance reported Critical or was disposed
func (s *Stage[P]) Terminated() bool { return s.terminated || !s.live }

// Status returns the status of the last call
func (s *Stage[P]) Status() plugin.ReturnType { return s.lastStatus }

// Err returns the host side failure of the last call: a refused call, a panic or
// an out of range status. It is nil when the instance itself produced the status.
func (s *Stage[P]) Err() error { return s.hostErr }

// LastError returns the host side failure if any, otherwise the instance's own detail
func (s *Stage[P]) LastError() string {
	if s.hostErr != nil {
		return s.hostErr.Error()
	}
	if !s.live {
		return plugin.NoError
	}
	return s.instance.LastError()
}

// Info returns the instance metadata, or nil when there is no live instance
func (s *Stage[P]) Info() map[string]string {
	if !s.live {
		return nil
	}
	return s.instance.Info()
}

// Call runs one contract operation on the instance and returns its status.
// Panics become Critical. Calls after Critical are refused.
func (s *Stage[P]) Call(operation string, fn func(P) plugin.ReturnType) (status plugin.ReturnType) {
	if s.Terminated() {
		s.hostErr = errors.WrapFatal(
			fmt.Errorf("%w: %s/%s refused %s", errors.ErrTerminated, s.role, s.driver, operation),
			"Stage", "Call", "state check")
		s.lastStatus = plugin.Critical
		s.logger.Debug("call refused on terminated stage", "operation", operation)
		return plugin.Critical
	}

	s.hostErr = nil
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.hostErr = errors.WrapFatal(fmt.Errorf("plugin panicked: %v", r), "Stage", "Call", operation)
			status = plugin.Critical
		}
		if !status.Valid() {
			s.hostErr = errors.WrapInvalid(
				fmt.Errorf("%w: status %d", errors.ErrInvalidData, int(status)), "Stage", "Call", operation)
			status = plugin.Error
		}
		s.lastStatus = status
		s.metrics.RecordOperation(s.driver, s.role, operation, status.String(), time.Since(start))
		if status == plugin.Critical {
			s.terminated = true
			s.metrics.RecordInstance(s.driver, s.role, "terminated")
			s.logger.Error("stage terminated", "operation", operation, "error", s.LastError())
		}
	}()
	return fn(s.instance)
}

// Dispose releases the instance exactly once. Later calls are no-ops.
func (s *Stage[P]) Dispose() error {
	if !s.live {
		return nil
	}
	s.live = false
	instance := s.instance
	var zero P
	s.instance = zero
	s.metrics.RecordInstance(s.driver, s.role, "disposed")

	closer, ok := any(instance).(plugin.Closer)
	if !ok {
		return nil
	}
	if err := closeSafely(closer); err != nil {
		s.logger.Warn("close failed", "error", err)
		return errors.Wrap(err, "Stage", "Dispose", fmt.Sprintf("close %s/%s", s.role, s.driver))
	}
	return nil
}

// Recreate disposes the current instance and builds a new one from the driver with
// the same parameters.
func (s *Stage[P]) Recreate() error {
	if err := s.Dispose(); err != nil {
		s.logger.Warn("dispose before recreate failed", "error", err)
	}
	if err := s.instantiate(); err != nil {
		return err
	}
	s.logger.Info("stage recreated")
	return nil
}

func (s *Stage[P]) instantiate() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("plugin panicked: %v", r), "Stage", "instantiate", "create instance")
		}
	}()

	instance, err := s.create()
	if err != nil {
		return errors.Wrap(err, "Stage", "instantiate", fmt.Sprintf("create %s/%s", s.role, s.driver))
	}
	instance.SetParams(s.params.Clone())

	s.instance = instance
	s.live = true
	s.terminated = false
	s.hostErr = nil
	s.lastStatus = plugin.Success
	s.metrics.RecordInstance(s.driver, s.role, "created")
	return nil
}

func closeSafely(c plugin.Closer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	return c.Close()
}
