// Package driverregistry registers the built-in drivers shipped with mads-plugin.
package driverregistry

import (
	"errors"

	pkgerrors "github.com/pbosetti/mads-plugin/errors"
	"github.com/pbosetti/mads-plugin/filter/echoj"
	"github.com/pbosetti/mads-plugin/filter/fieldfilter"
	"github.com/pbosetti/mads-plugin/filter/fieldmap"
	"github.com/pbosetti/mads-plugin/filter/runavg"
	"github.com/pbosetti/mads-plugin/plugin"
	"github.com/pbosetti/mads-plugin/sink/amqppub"
	"github.com/pbosetti/mads-plugin/sink/echo"
	"github.com/pbosetti/mads-plugin/sink/file"
	"github.com/pbosetti/mads-plugin/sink/httppost"
	"github.com/pbosetti/mads-plugin/sink/natspub"
	"github.com/pbosetti/mads-plugin/sink/websocket"
	"github.com/pbosetti/mads-plugin/source/clock"
	"github.com/pbosetti/mads-plugin/source/frames"
	"github.com/pbosetti/mads-plugin/source/lines"
	"github.com/pbosetti/mads-plugin/source/natssub"
	"github.com/pbosetti/mads-plugin/source/random"
	"github.com/pbosetti/mads-plugin/source/rest"
)

// ModuleName is the name the built-in drivers are installed under by the loader
const ModuleName = "builtin"

type registration struct {
	what     string
	register func(*plugin.Registry) error
}

// builtins lists the drivers by role: sources, filters, sinks
var builtins = []registration{
	{"clock source", clock.Register},
	{"lines source", lines.Register},
	{"frames source", frames.Register},
	{"NATS source", natssub.Register},
	{"random source", random.Register},
	{"REST source", rest.Register},

	{"running average filter", runavg.Register},
	{"field filter", fieldfilter.Register},
	{"field map filter", fieldmap.Register},
	{"echo filter", echoj.Register},

	{"echo sink", echo.Register},
	{"file sink", file.Register},
	{"HTTP POST sink", httppost.Register},
	{"NATS sink", natspub.Register},
	{"AMQP sink", amqppub.Register},
	{"WebSocket sink", websocket.Register},
}

// Register registers every built-in driver with the provided registry.
// It stops at the first failure, typically a driver registered twice.
func Register(registry *plugin.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"DriverRegistry", "Register", "registry validation")
	}

	for _, b := range builtins {
		if err := b.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "DriverRegistry", "Register", b.what+" registration")
		}
	}
	return nil
}
