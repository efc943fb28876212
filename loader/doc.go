// Package loader admits driver modules into a host plugin.Registry.
//
// A dynamic module is a Go plugin (go build -buildmode=plugin) exporting
// plugin.EntrySymbol with one of these shapes:
//
//	func RegisterDrivers(r *plugin.Registry)
//	func RegisterDrivers(r *plugin.Registry) error
//
// The entry point registers into a staging registry. The loader then checks each
// driver's protocol version against the host and copies the compatible ones into the
// host registry, where the duplicate rule applies. Statically linked modules go
// through the same path with Install.
//
//	l := loader.New(reg, loader.WithLogger(logger))
//	if _, err := l.LoadDir("./plugins"); err != nil {
//		logger.Warn("some modules were refused", "error", err)
//	}
package loader
