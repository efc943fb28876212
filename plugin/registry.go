package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pbosetti/mads-plugin/errors"
)

// MaxNameLength bounds driver names
const MaxNameLength = 128

// Registry holds drivers keyed by (server, name). It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	drivers map[string]map[string]Driver
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		drivers: make(map[string]map[string]Driver),
	}
}

// Register adds a driver. A second driver with the same (server, name) is rejected
// with ErrDuplicateDriver and the first registration stays in place.
func (r *Registry) Register(d Driver) error {
	if _, ok := ProtocolVersion(d.Server); !ok {
		msg := fmt.Errorf("%w: %q", errors.ErrUnknownServer, d.Server)
		return errors.WrapInvalid(msg, "Registry", "Register", "server validation")
	}
	if err := ValidateName(d.Name); err != nil {
		return errors.Wrap(err, "Registry", "Register", "driver name validation")
	}
	if d.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory function validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.drivers[d.Server]
	if !ok {
		byName = make(map[string]Driver)
		r.drivers[d.Server] = byName
	}
	if _, exists := byName[d.Name]; exists {
		msg := fmt.Errorf("%w: %s/%s", errors.ErrDuplicateDriver, d.Server, d.Name)
		return errors.WrapInvalid(msg, "Registry", "Register", "duplicate driver check")
	}
	byName[d.Name] = d
	return nil
}

// Servers returns the role identities that have at least one driver, sorted
func (r *Registry) Servers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	servers := make([]string, 0, len(r.drivers))
	for server, byName := range r.drivers {
		if len(byName) > 0 {
			servers = append(servers, server)
		}
	}
	sort.Strings(servers)
	return servers
}

// Drivers returns the drivers registered under server, sorted by name.
// An empty server returns every driver.
func (r *Registry) Drivers(server string) []Driver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Driver
	for s, byName := range r.drivers {
		if server != "" && s != server {
			continue
		}
		for _, d := range byName {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Server != out[j].Server {
			return out[i].Server < out[j].Server
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len returns the number of registered drivers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, byName := range r.drivers {
		n += len(byName)
	}
	return n
}

// Lookup finds a driver by role identity and name
func (r *Registry) Lookup(server, name string) (Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[server][name]
	return d, ok
}

// CheckVersion refuses drivers whose version differs from their role contract
func (r *Registry) CheckVersion(d Driver) error {
	return CheckVersion(d)
}

// CheckVersion refuses drivers whose version differs from their role contract
func CheckVersion(d Driver) error {
	want, ok := ProtocolVersion(d.Server)
	if !ok {
		msg := fmt.Errorf("%w: %q", errors.ErrUnknownServer, d.Server)
		return errors.WrapInvalid(msg, "Registry", "CheckVersion", "server validation")
	}
	if d.Version == want {
		return nil
	}
	msg := fmt.Errorf("%w: %s/%s is %s (version %d, host supports %d)",
		errors.ErrIncompatibleVersion, d.Server, d.Name, d.Compatibility(), d.Version, want)
	return errors.WrapInvalid(msg, "Registry", "CheckVersion", "protocol version check")
}

// Create instantiates the named driver. The protocol version is checked before the
// factory runs.
func (r *Registry) Create(server, name string) (Plugin, error) {
	d, ok := r.Lookup(server, name)
	if !ok {
		msg := fmt.Errorf("%w: %s/%s", errors.ErrDriverNotFound, server, name)
		return nil, errors.WrapInvalid(msg, "Registry", "Create", "driver lookup")
	}
	if err := CheckVersion(d); err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "version check")
	}
	p := d.Factory()
	if p == nil {
		msg := fmt.Errorf("factory for %s/%s returned nil", server, name)
		return nil, errors.WrapInvalid(msg, "Registry", "Create", "factory execution")
	}
	return p, nil
}

// CreateSource instantiates a Source driver producing Out
func CreateSource[Out any](r *Registry, name string) (Source[Out], error) {
	return create[Source[Out]](r, SourceServer, name)
}

// CreateFilter instantiates a Filter driver from In to Out
func CreateFilter[In, Out any](r *Registry, name string) (Filter[In, Out], error) {
	return create[Filter[In, Out]](r, FilterServer, name)
}

// CreateSink instantiates a Sink driver consuming In
func CreateSink[In any](r *Registry, name string) (Sink[In], error) {
	return create[Sink[In]](r, SinkServer, name)
}

func create[T Plugin](r *Registry, server, name string) (T, error) {
	var zero T
	p, err := r.Create(server, name)
	if err != nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		if c, isCloser := p.(Closer); isCloser {
			_ = c.Close()
		}
		msg := fmt.Errorf("%w: %s/%s is %T, want %s", errors.ErrTypeMismatch, server, name, p, typeName[T]())
		return zero, errors.WrapInvalid(msg, "Registry", "Create", "type assertion")
	}
	return typed, nil
}

// ValidateName checks a driver name: alphanumerics, dash, underscore and dot.
func ValidateName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "ValidateName", "invalid name characters")
		}
	}
	return nil
}
