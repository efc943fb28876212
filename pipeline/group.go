package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pbosetti/mads-plugin/errors"
)

// Runner is a pipeline of any value type as seen by a Group
type Runner interface {
	Name() string
	Run(ctx context.Context) error
	Close() error
	Stages() []StageHandle
}

// Group runs several pipelines concurrently. The first pipeline that fails cancels
// the others; every pipeline is closed when Run returns.
type Group struct {
	mu      sync.Mutex
	runners []Runner
	logger  *slog.Logger
	closed  bool
}

// NewGroup creates an empty group
func NewGroup(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{logger: logger.With("component", "pipeline-group")}
}

// Add appends a pipeline
func (g *Group) Add(r Runner) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runners = append(g.runners, r)
}

// Runners returns the pipelines in insertion order
func (g *Group) Runners() []Runner {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Runner(nil), g.runners...)
}

// Run runs every pipeline until they all stop and returns the first error
func (g *Group) Run(ctx context.Context) error {
	runners := g.Runners()
	if len(runners) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Group", "Run", "pipeline check")
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, r := range runners {
		eg.Go(func() error {
			defer func() {
				if err := r.Close(); err != nil {
					g.logger.Warn("pipeline close failed", "pipeline", r.Name(), "error", err)
				}
			}()
			if err := r.Run(ctx); err != nil {
				g.logger.Error("pipeline failed", "pipeline", r.Name(), "error", err)
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

// Close disposes every pipeline. It is safe to call more than once.
func (g *Group) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	runners := g.runners
	g.mu.Unlock()

	var errs []error
	for _, r := range runners {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
