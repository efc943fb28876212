package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pbosetti/mads-plugin/config"
	"github.com/pbosetti/mads-plugin/health"
	"github.com/pbosetti/mads-plugin/metric"
	"github.com/pbosetti/mads-plugin/pipeline"
	"github.com/pbosetti/mads-plugin/pkg/tlsutil"
)

func newRunCommand(opts *options) *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured pipelines until interrupted",
		Long: `Run loads the configuration, installs the drivers, builds every pipeline and
runs them concurrently until SIGINT or SIGTERM, until every pipeline stops on
its own, or until one of them fails.

Example:
  madsplug run -c mads.yaml
  madsplug run -c mads.yaml --pipeline average -m ./plugins/runavg.so`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPipelines(ctx, cmd, opts, only)
		},
	}
	cmd.Flags().StringSliceVarP(&only, "pipeline", "p", nil, "Run only the named pipelines; repeatable")
	return cmd
}

func runPipelines(ctx context.Context, cmd *cobra.Command, opts *options, only []string) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if len(only) > 0 {
		selected := make(map[string]config.PipelineConfig, len(only))
		for _, name := range only {
			p, ok := cfg.Pipelines[name]
			if !ok {
				return errors.New("unknown pipeline " + name)
			}
			selected[name] = p
		}
		cfg.Pipelines = selected
	}

	h, err := newHost(cmd, opts, cfg)
	if err != nil {
		return err
	}
	if err := cfg.ValidateDrivers(h.registry); err != nil {
		return err
	}

	monitor := health.NewMonitor()
	buildOpts := []pipeline.Option{pipeline.WithLogger(h.logger), pipeline.WithHealth(monitor)}
	if cfg.Metrics.Addr != "" {
		registry := metric.NewMetricsRegistry()
		srv := metric.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry)
		tlsConfig, err := tlsutil.LoadServerTLSConfig(cfg.Metrics.TLS)
		if err != nil {
			return err
		}
		srv.SetTLSConfig(tlsConfig)
		srv.SetHealthHandler(monitor.Handler(appName))
		if err := srv.Start(); err != nil {
			return err
		}
		h.logger.Info("Metrics server started", "address", srv.Address())
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), opts.ShutdownTimeout)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				h.logger.Warn("Metrics server shutdown failed", "error", err)
			}
		}()
		buildOpts = append(buildOpts, pipeline.WithMetrics(registry.CoreMetrics()))
	}

	group, err := pipeline.BuildAll(h.registry, cfg, buildOpts...)
	if err != nil {
		return err
	}
	defer group.Close()

	h.logger.Info("Starting pipelines", "pipelines", cfg.PipelineNames(), "drivers", h.registry.Len())
	if err := group.Run(ctx); err != nil {
		return err
	}
	h.logger.Info("Pipelines stopped", "health", monitor.AggregateHealth(appName).Status)
	return nil
}
