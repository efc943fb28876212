// Command runavg is the running average filter built as a loadable module:
//
//	go build -buildmode=plugin -o runavg.so ./cmd/plugins/runavg
package main

import (
	"github.com/pbosetti/mads-plugin/filter/runavg"
	"github.com/pbosetti/mads-plugin/plugin"
)

// RegisterDrivers is the module entry point looked up by the host
func RegisterDrivers(reg *plugin.Registry) error {
	return runavg.Register(reg)
}

func main() {}
