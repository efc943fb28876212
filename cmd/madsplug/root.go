package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbosetti/mads-plugin/config"
	"github.com/pbosetti/mads-plugin/driverregistry"
	"github.com/pbosetti/mads-plugin/loader"
	"github.com/pbosetti/mads-plugin/plugin"
)

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Typed pipeline host for MADS plugins",
		Long: `madsplug loads source, filter and sink drivers, built in or from Go plugin
modules, and runs the pipelines described in a YAML or JSON configuration.

Every driver is checked against the protocol version of its role before it is
admitted; modules compiled against another contract revision are refused.`,
		Version:       fmt.Sprintf("%s (built: %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.ConfigPath, "config", "c", getEnv(envConfig, "mads.yaml"),
		"Path to configuration file (env: "+envConfig+")")
	flags.StringVar(&opts.LogLevel, "log-level", getEnv(envLogLevel, ""),
		"Log level: debug, info, warn, error; defaults to the configuration (env: "+envLogLevel+")")
	flags.StringVar(&opts.LogFormat, "log-format", getEnv(envLogFormat, ""),
		"Log format: text, json; defaults to the configuration (env: "+envLogFormat+")")
	flags.StringVar(&opts.ModulesDir, "modules-dir", getEnv(envModulesDir, ""),
		"Directory of driver modules (*.so) to load (env: "+envModulesDir+")")
	flags.StringSliceVarP(&opts.Modules, "module", "m", nil,
		"Driver module to load; repeatable")
	flags.BoolVar(&opts.NoBuiltins, "no-builtins", getEnvBool(envNoBuiltins, false),
		"Do not install the built-in drivers (env: "+envNoBuiltins+")")
	flags.DurationVar(&opts.ShutdownTimeout, "shutdown-timeout", getEnvDuration(envShutdownTimeout, 10*time.Second),
		"Graceful shutdown timeout (env: "+envShutdownTimeout+")")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newDriversCommand(opts),
		newValidateCommand(opts),
		newDescribeCommand(opts),
		newVersionCommand(),
	)
	return rootCmd
}

// host is the registry and loader shared by the commands
type host struct {
	logger   *slog.Logger
	registry *plugin.Registry
	loader   *loader.Loader
}

// newHost sets up logging and installs the drivers. cfg may be nil; when set, its
// log settings and modules apply unless overridden by flags.
func newHost(cmd *cobra.Command, opts *options, cfg *config.Config) (*host, error) {
	level, format := opts.LogLevel, opts.LogFormat
	if cfg != nil {
		if level == "" {
			level = cfg.Log.Level
		}
		if format == "" {
			format = cfg.Log.Format
		}
	}
	logger := setupLogger(cmd.ErrOrStderr(), level, format)
	slog.SetDefault(logger)

	h := &host{logger: logger, registry: plugin.NewRegistry()}
	h.loader = loader.New(h.registry, loader.WithLogger(logger))

	if !opts.NoBuiltins {
		if _, err := h.loader.Install(driverregistry.ModuleName, driverregistry.Register); err != nil {
			return nil, err
		}
	}

	dirs := []string{opts.ModulesDir}
	paths := append([]string(nil), opts.Modules...)
	if cfg != nil {
		dirs = append(dirs, cfg.Modules.Dir)
		paths = append(paths, cfg.Modules.Paths...)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		// A module that fails to load is logged by the loader; its siblings stay
		if _, err := h.loader.LoadDir(dir); err != nil {
			logger.Warn("Some modules were not loaded", "dir", dir, "error", err)
		}
	}
	for _, path := range paths {
		if _, err := h.loader.Load(path); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// loadConfig reads and validates the configuration file
func loadConfig(opts *options) (*config.Config, error) {
	if _, err := os.Stat(opts.ConfigPath); err != nil {
		return nil, fmt.Errorf("config file not found: %s", opts.ConfigPath)
	}
	l := config.NewLoader()
	l.EnableValidation(true)
	return l.LoadFile(opts.ConfigPath)
}

// serverName accepts the role identities and their short forms
func serverName(s string) (string, error) {
	switch strings.TrimSuffix(strings.ToLower(s), "server") {
	case "source":
		return plugin.SourceServer, nil
	case "filter":
		return plugin.FilterServer, nil
	case "sink":
		return plugin.SinkServer, nil
	}
	return "", fmt.Errorf("unknown server %q: use source, filter or sink", s)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and protocol information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s version %s (built: %s)\n", appName, Version, BuildTime)
			for _, server := range []string{plugin.SourceServer, plugin.FilterServer, plugin.SinkServer} {
				v, _ := plugin.ProtocolVersion(server)
				fmt.Fprintf(out, "  %-13s protocol %d\n", server, v)
			}
			return nil
		},
	}
}
