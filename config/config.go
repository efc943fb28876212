package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/retry"
	"github.com/pbosetti/mads-plugin/pkg/tlsutil"
	"github.com/pbosetti/mads-plugin/plugin"
)

// EnvPrefix prefixes the environment overrides read by the Loader
const EnvPrefix = "MADS"

// Config is the host configuration
type Config struct {
	Log       LogConfig                 `yaml:"log" json:"log"`
	Metrics   MetricsConfig             `yaml:"metrics" json:"metrics"`
	Modules   ModulesConfig             `yaml:"modules" json:"modules"`
	Pipelines map[string]PipelineConfig `yaml:"pipelines" json:"pipelines"`
}

// LogConfig selects the slog handler
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string               `yaml:"addr" json:"addr,omitempty"`
	Path string               `yaml:"path" json:"path,omitempty"`
	TLS  tlsutil.ServerConfig `yaml:"tls" json:"tls"`
}

// ModulesConfig lists the dynamic driver modules to load
type ModulesConfig struct {
	Dir   string   `yaml:"dir" json:"dir,omitempty"`
	Paths []string `yaml:"paths" json:"paths,omitempty"`
}

// PipelineConfig describes one Source -> Filter* -> Sink+ chain
type PipelineConfig struct {
	Interval  time.Duration `yaml:"interval" json:"interval"`
	MaxCycles int           `yaml:"max_cycles" json:"max_cycles"`
	Recreate  bool          `yaml:"recreate" json:"recreate"`
	Retry     retry.Config  `yaml:"retry" json:"retry"`
	// AgentID is injected into every stage that does not set its own
	AgentID string        `yaml:"agent_id" json:"agent_id,omitempty"`
	Source  StageConfig   `yaml:"source" json:"source"`
	Filters []StageConfig `yaml:"filters" json:"filters,omitempty"`
	Sinks   []StageConfig `yaml:"sinks" json:"sinks"`
}

// StageConfig names a driver and the parameters merged onto its defaults
type StageConfig struct {
	Driver string        `yaml:"driver" json:"driver"`
	Params params.Params `yaml:"params" json:"params,omitempty"`
}

// Default returns the configuration every layer is merged onto
func Default() *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Path: "/metrics"},
		Pipelines: map[string]PipelineConfig{},
	}
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the configuration for missing or impossible values. It does not
// look drivers up; see ValidateDrivers.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("log.level %q must be one of %v", c.Log.Level, logLevels))
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("log.format %q must be one of %v", c.Log.Format, logFormats))
	}
	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}
	if c.Metrics.TLS.Enabled && (c.Metrics.TLS.CertFile == "" || c.Metrics.TLS.KeyFile == "") {
		errs = append(errs, fmt.Errorf("metrics.tls needs cert_file and key_file"))
	}
	if len(c.Pipelines) == 0 {
		errs = append(errs, fmt.Errorf("%w: no pipelines", errors.ErrMissingConfig))
	}
	for _, name := range c.PipelineNames() {
		if err := c.Pipelines[name].validate(name); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, errors.Join(errs...)),
			"Config", "Validate", "configuration check")
	}
	return nil
}

func (p PipelineConfig) validate(name string) error {
	var errs []error
	if err := plugin.ValidateName(name); err != nil {
		errs = append(errs, fmt.Errorf("pipeline name %q: must use letters, digits, '-', '_' or '.'", name))
	}
	prefix := "pipelines." + name
	if p.Interval < 0 {
		errs = append(errs, fmt.Errorf("%s.interval must not be negative", prefix))
	}
	if p.MaxCycles < 0 {
		errs = append(errs, fmt.Errorf("%s.max_cycles must not be negative", prefix))
	}
	if err := p.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%s.retry: %w", prefix, err))
	}
	if p.Source.Driver == "" {
		errs = append(errs, fmt.Errorf("%w: %s.source.driver", errors.ErrMissingConfig, prefix))
	}
	for i, f := range p.Filters {
		if f.Driver == "" {
			errs = append(errs, fmt.Errorf("%w: %s.filters[%d].driver", errors.ErrMissingConfig, prefix, i))
		}
	}
	if len(p.Sinks) == 0 {
		errs = append(errs, fmt.Errorf("%w: %s.sinks", errors.ErrMissingConfig, prefix))
	}
	for i, s := range p.Sinks {
		if s.Driver == "" {
			errs = append(errs, fmt.Errorf("%w: %s.sinks[%d].driver", errors.ErrMissingConfig, prefix, i))
		}
	}
	return errors.Join(errs...)
}

// PipelineNames returns the pipeline names in sorted order
func (c *Config) PipelineNames() []string {
	names := make([]string, 0, len(c.Pipelines))
	for name := range c.Pipelines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// String renders the configuration as YAML
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

// Loader loads configuration files in layers. Later layers are merge-patched onto
// earlier ones, so an override file only lists what it changes and can delete a
// key with null.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: EnvPrefix,
		lookupEnv: os.LookupEnv,
	}
}

// AddLayer adds a configuration file layer
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load reads every layer, expands ${VAR} references, merges the layers onto the
// defaults, applies the environment overrides and optionally validates.
func (l *Loader) Load() (*Config, error) {
	merged, err := toParams(Default())
	if err != nil {
		return nil, err
	}

	for _, path := range l.layers {
		layer, err := l.loadLayer(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", "load "+path)
		}
		merged.Patch(layer)
	}

	cfg, err := fromParams(merged)
	if err != nil {
		return nil, err
	}
	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes a single YAML or JSON document, with ${VAR} expansion, onto the defaults
func Parse(data []byte) (*Config, error) {
	l := NewLoader()
	layer, err := l.parseLayer(data)
	if err != nil {
		return nil, err
	}
	merged, err := toParams(Default())
	if err != nil {
		return nil, err
	}
	merged.Patch(layer)
	return fromParams(merged)
}

func (l *Loader) loadLayer(path string) (params.Params, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "loadLayer", "read config file")
	}
	return l.parseLayer(data)
}

func (l *Loader) parseLayer(data []byte) (params.Params, error) {
	expanded, err := expandEnv(string(data), l.lookupEnv)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "parseLayer", "expand environment")
	}
	if err := validateDepth([]byte(expanded)); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "parseLayer", "structure check")
	}
	var layer params.Params
	if strings.HasPrefix(strings.TrimSpace(expanded), "{") {
		layer, err = params.FromJSON([]byte(expanded))
	} else {
		layer, err = params.Parse([]byte(expanded))
	}
	if err != nil {
		return nil, errors.Wrap(err, "Loader", "parseLayer", "decode document")
	}
	return layer, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val, ok := l.env("LOG_LEVEL"); ok {
		cfg.Log.Level = val
	}
	if val, ok := l.env("LOG_FORMAT"); ok {
		cfg.Log.Format = val
	}
	if val, ok := l.env("METRICS_ADDR"); ok {
		cfg.Metrics.Addr = val
	}
	if val, ok := l.env("MODULES_DIR"); ok {
		cfg.Modules.Dir = val
	}
}

func (l *Loader) env(key string) (string, bool) {
	val, ok := l.lookupEnv(l.envPrefix + "_" + key)
	if !ok || val == "" || validateEnvVar(key, val) != nil {
		return "", false
	}
	return val, true
}

// toParams and fromParams move between the typed configuration and the merge
// document through YAML, which knows how to encode durations.
func toParams(cfg *Config) (params.Params, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "toParams", "encode defaults")
	}
	return params.Parse(data)
}

func fromParams(p params.Params) (*Config, error) {
	data, err := yaml.Marshal(map[string]any(p))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "fromParams", "encode merged document")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidConfig, err),
			"Loader", "fromParams", "decode configuration")
	}
	if cfg.Pipelines == nil {
		cfg.Pipelines = map[string]PipelineConfig{}
	}
	return &cfg, nil
}
