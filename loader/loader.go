package loader

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goplugin "plugin"
	"sort"
	"strings"
	"sync"

	"github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/plugin"
)

// EntryPoint is the registration function a module exports as plugin.EntrySymbol
type EntryPoint func(*plugin.Registry) error

// Symbols is the lookup side of an opened module
type Symbols interface {
	Lookup(name string) (goplugin.Symbol, error)
}

// Opener opens a module file. The default uses the Go plugin runtime.
type Opener func(path string) (Symbols, error)

// Result describes what one module contributed to the host registry
type Result struct {
	Module   string
	Accepted []plugin.Driver
	Rejected []Rejection
}

// Rejection is a driver refused by the version check or the host registry
type Rejection struct {
	Driver plugin.Driver
	Err    error
}

// Loader admits drivers from modules into a host registry.
//
// Each module registers into a private staging registry first. Drivers whose protocol
// version does not match the host are refused there, so a module compiled against an
// older contract never reaches Create.
type Loader struct {
	registry *plugin.Registry
	open     Opener
	logger   *slog.Logger

	mu      sync.Mutex
	modules map[string]Result
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithOpener replaces the Go plugin runtime, mostly for tests
func WithOpener(open Opener) Option {
	return func(l *Loader) {
		if open != nil {
			l.open = open
		}
	}
}

// New creates a loader that admits drivers into registry
func New(registry *plugin.Registry, opts ...Option) *Loader {
	l := &Loader{
		registry: registry,
		open:     openGoPlugin,
		logger:   slog.Default(),
		modules:  make(map[string]Result),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "loader")
	return l
}

// Registry returns the host registry
func (l *Loader) Registry() *plugin.Registry {
	return l.registry
}

// Load opens a module file and installs its drivers. Loading the same path twice
// is a no-op that returns the first result.
func (l *Loader) Load(path string) (Result, error) {
	if path == "" {
		return Result{}, errors.WrapInvalid(errors.ErrMissingConfig, "Loader", "Load", "module path validation")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Result{}, errors.WrapInvalid(err, "Loader", "Load", "resolve module path")
	}

	if res, ok := l.loaded(abs); ok {
		return res, nil
	}

	symbols, err := l.open(abs)
	if err != nil {
		return Result{}, errors.WrapInvalid(err, "Loader", "Load", "open module")
	}
	sym, err := symbols.Lookup(plugin.EntrySymbol)
	if err != nil {
		msg := fmt.Errorf("%w: %s in %s", errors.ErrNoEntryPoint, plugin.EntrySymbol, abs)
		return Result{}, errors.WrapInvalid(msg, "Loader", "Load", "entry point lookup")
	}
	entry, err := entryPoint(sym)
	if err != nil {
		return Result{}, errors.Wrap(err, "Loader", "Load", "entry point lookup")
	}
	return l.Install(abs, entry)
}

// LoadDir loads every *.so file in dir in lexical order. It keeps going after a
// failing module and returns the joined errors.
func (l *Loader) LoadDir(dir string) ([]Result, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadDir", "stat module directory")
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.so"))
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "LoadDir", "scan module directory")
	}
	sort.Strings(matches)

	var (
		results []Result
		errs    []error
	)
	for _, path := range matches {
		res, err := l.Load(path)
		if err != nil {
			l.logger.Warn("module not loaded", "module", path, "error", err)
			errs = append(errs, err)
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Install runs an entry point the way Load does, for modules linked into the host.
// Drivers are accepted individually: a refused driver does not stop its siblings.
// The returned error joins every rejection.
func (l *Loader) Install(module string, entry EntryPoint) (Result, error) {
	if entry == nil {
		msg := fmt.Errorf("%w: nil entry for %s", errors.ErrNoEntryPoint, module)
		return Result{}, errors.WrapInvalid(msg, "Loader", "Install", "entry point validation")
	}

	staging := plugin.NewRegistry()
	if err := runEntry(entry, staging); err != nil {
		return Result{}, errors.Wrap(err, "Loader", "Install", "module registration")
	}

	res := Result{Module: module}
	var errs []error
	for _, d := range staging.Drivers("") {
		if err := plugin.CheckVersion(d); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Driver: d, Err: err})
			errs = append(errs, err)
			l.logger.Warn("driver refused", "module", module, "server", d.Server, "driver", d.Name,
				"version", d.Version, "compatibility", d.Compatibility())
			continue
		}
		if err := l.registry.Register(d); err != nil {
			res.Rejected = append(res.Rejected, Rejection{Driver: d, Err: err})
			errs = append(errs, err)
			l.logger.Warn("driver refused", "module", module, "server", d.Server, "driver", d.Name, "error", err)
			continue
		}
		res.Accepted = append(res.Accepted, d)
		l.logger.Debug("driver installed", "module", module, "server", d.Server, "driver", d.Name)
	}

	l.mu.Lock()
	l.modules[module] = res
	l.mu.Unlock()

	l.logger.Info("module installed", "module", module,
		"accepted", len(res.Accepted), "rejected", len(res.Rejected))
	return res, errors.Join(errs...)
}

// Modules returns the results of every installed module, sorted by name
func (l *Loader) Modules() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Result, 0, len(l.modules))
	for _, res := range l.modules {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out
}

func (l *Loader) loaded(module string) (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.modules[module]
	return res, ok
}

// runEntry shields the host from a panicking module
func runEntry(entry EntryPoint, staging *plugin.Registry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("module panicked: %v", r), "Loader", "Install", "run entry point")
		}
	}()
	return entry(staging)
}

// entryPoint accepts both exported shapes of the registration function
func entryPoint(sym goplugin.Symbol) (EntryPoint, error) {
	switch fn := sym.(type) {
	case func(*plugin.Registry) error:
		return fn, nil
	case func(*plugin.Registry):
		return func(r *plugin.Registry) error {
			fn(r)
			return nil
		}, nil
	case *func(*plugin.Registry) error:
		if fn == nil || *fn == nil {
			break
		}
		return *fn, nil
	}
	msg := fmt.Errorf("%w: %s has type %T", errors.ErrNoEntryPoint, plugin.EntrySymbol, sym)
	return nil, errors.WrapInvalid(msg, "Loader", "entryPoint", "entry point type check")
}

func openGoPlugin(path string) (Symbols, error) {
	if !strings.HasSuffix(path, ".so") {
		return nil, fmt.Errorf("%s: not a shared object", path)
	}
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}
