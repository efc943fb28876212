package plugin

import (
	"reflect"
)

// Role identities. Driver.Server must be one of these, verbatim.
const (
	SourceServer = "SourceServer"
	FilterServer = "FilterServer"
	SinkServer   = "SinkServer"
)

// Protocol versions of the role contracts. Each is bumped on an incompatible change
// to its own contract.
const (
	SourceProtocolVersion = 4
	FilterProtocolVersion = 4
	SinkProtocolVersion   = 4

	// MinSupportedVersion separates obsolete drivers from merely incompatible ones in
	// diagnostics. Both are refused.
	MinSupportedVersion = 3
)

// EntrySymbol is the exported symbol a dynamic module provides. Its type is either
// func(*Registry) or func(*Registry) error.
const EntrySymbol = "RegisterDrivers"

// Factory creates a fresh, unconfigured plugin instance. Factories must not perform I/O.
type Factory func() Plugin

// Driver is a named factory for one role, tagged with the protocol version it was
// compiled against.
type Driver struct {
	Server      string
	Name        string
	Version     int
	Description string
	// Input and Output name the data types of the role, for listings.
	Input  string
	Output string
	// Schema is an optional JSON schema for the effective configuration.
	Schema  string
	Factory Factory
}

// Option customises a driver built by one of the role constructors
type Option func(*Driver)

// WithSchema attaches a JSON schema for configuration validation
func WithSchema(schema string) Option {
	return func(d *Driver) {
		d.Schema = schema
	}
}

// WithVersion overrides the protocol version. Only useful to build drivers that
// pretend to be compiled against another contract revision.
func WithVersion(version int) Option {
	return func(d *Driver) {
		d.Version = version
	}
}

// NewSourceDriver builds a Source driver stamped with SourceProtocolVersion
func NewSourceDriver[Out any](name, description string, factory func() Source[Out], opts ...Option) Driver {
	d := Driver{
		Server:      SourceServer,
		Name:        name,
		Version:     SourceProtocolVersion,
		Description: description,
		Output:      typeName[Out](),
		Factory:     func() Plugin { return factory() },
	}
	return apply(d, opts)
}

// NewFilterDriver builds a Filter driver stamped with FilterProtocolVersion
func NewFilterDriver[In, Out any](name, description string, factory func() Filter[In, Out], opts ...Option) Driver {
	d := Driver{
		Server:      FilterServer,
		Name:        name,
		Version:     FilterProtocolVersion,
		Description: description,
		Input:       typeName[In](),
		Output:      typeName[Out](),
		Factory:     func() Plugin { return factory() },
	}
	return apply(d, opts)
}

// NewSinkDriver builds a Sink driver stamped with SinkProtocolVersion
func NewSinkDriver[In any](name, description string, factory func() Sink[In], opts ...Option) Driver {
	d := Driver{
		Server:      SinkServer,
		Name:        name,
		Version:     SinkProtocolVersion,
		Description: description,
		Input:       typeName[In](),
		Factory:     func() Plugin { return factory() },
	}
	return apply(d, opts)
}

// ProtocolVersion returns the contract version of a role identity
func ProtocolVersion(server string) (int, bool) {
	switch server {
	case SourceServer:
		return SourceProtocolVersion, true
	case FilterServer:
		return FilterProtocolVersion, true
	case SinkServer:
		return SinkProtocolVersion, true
	default:
		return 0, false
	}
}

// Compatibility describes a driver version relative to its role contract:
// "compatible", "obsolete" (below MinSupportedVersion) or "incompatible".
func (d Driver) Compatibility() string {
	want, ok := ProtocolVersion(d.Server)
	switch {
	case !ok:
		return "unknown server"
	case d.Version == want:
		return "compatible"
	case d.Version < MinSupportedVersion:
		return "obsolete"
	default:
		return "incompatible"
	}
}

func apply(d Driver, opts []Option) Driver {
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}
