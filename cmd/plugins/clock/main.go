// Command clock is the clock source built as a loadable module:
//
//	go build -buildmode=plugin -o clock.so ./cmd/plugins/clock
package main

import (
	"github.com/pbosetti/mads-plugin/plugin"
	"github.com/pbosetti/mads-plugin/source/clock"
)

// RegisterDrivers is the module entry point looked up by the host
func RegisterDrivers(reg *plugin.Registry) error {
	return clock.Register(reg)
}

func main() {}
