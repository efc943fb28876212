// Package madsplugin is a typed plugin protocol for data pipelines.
//
// A pipeline chains three roles: a Source produces values, zero or more
// Filters transform them and one or more Sinks consume them. Every call on a
// plugin reports one of five outcomes, and the host decides what to do next
// from that outcome alone.
//
// # Result taxonomy
//
//   - Success: the call did its work
//   - Warning: the call did part of its work; the value may be incomplete
//   - Error: the call failed but the instance is usable; the next cycle goes on
//   - Critical: the instance is unusable; the host drops or recreates it
//   - Retry: nothing to do yet; the host waits with backoff and calls again
//
// The human readable reason of the last failure is kept by the instance and
// read with LastError. "No error" means the last call succeeded.
//
// # Parameters
//
// Plugins are configured with JSON-like documents (params.Params). SetParams
// merges the given document over the plugin defaults with merge-patch
// semantics: objects merge key by key, anything else replaces, and the
// result is what Params returns afterwards.
//
// # Drivers and modules
//
// A driver is a named factory for one role, stamped with the protocol
// version of that role. Drivers come from the built-in set in driverregistry
// or from Go plugin modules exporting RegisterDrivers:
//
//	func RegisterDrivers(reg *plugin.Registry) error {
//	    return runavg.Register(reg)
//	}
//
// The loader registers each module in a staging registry and admits only the
// drivers whose version matches the host, so a module built against another
// revision of the contract never reaches Create.
//
// # Blobs
//
// A Source may hand out a binary payload next to its value. Sinks that
// implement BlobSink receive it; others get the value only.
//
// # Persistence
//
// Filters that keep state between runs save it through store.Backend, a
// keyed document store with file, Redis and NATS KV implementations.
//
// # Layout
//
//	plugin/          roles, results, Base, drivers and the registry
//	params/          documents, merge-patch and schema validation
//	loader/          module loading and version admission
//	pipeline/        the cycle driver and pipeline groups
//	config/          host configuration
//	store/           persistence backends
//	source/ filter/ sink/   built-in drivers
//	driverregistry/  registration of the built-in drivers
//	cmd/madsplug     the host CLI
//	cmd/plugins/     built-in drivers as loadable modules
package madsplugin
