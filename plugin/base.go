package plugin

import (
	"fmt"
	"maps"

	"github.com/pbosetti/mads-plugin/params"
)

// NoError is the LastError value of an instance that has not failed yet
const NoError = "No error"

// Base implements the behaviour every role shares. Concrete plugins embed it and
// call ApplyParams from their own SetParams with their defaults.
//
// Base is not safe for concurrent use, like the instances that embed it.
type Base struct {
	kind      string
	info      map[string]string
	lastError string
	params    params.Params
	state     State
}

// Init sets the plugin kind. Call it from the factory.
func (b *Base) Init(kind string) {
	b.kind = kind
}

// Kind returns the plugin kind
func (b *Base) Kind() string {
	return b.kind
}

// Info returns a copy of the metadata map
func (b *Base) Info() map[string]string {
	out := make(map[string]string, len(b.info)+1)
	maps.Copy(out, b.info)
	out["state"] = b.state.String()
	return out
}

// SetInfo records a metadata entry
func (b *Base) SetInfo(key, value string) {
	if b.info == nil {
		b.info = make(map[string]string)
	}
	b.info[key] = value
}

// LastError returns the detail of the most recent failure
func (b *Base) LastError() string {
	if b.lastError == "" {
		return NoError
	}
	return b.lastError
}

// SetError records a failure detail
func (b *Base) SetError(msg string) {
	b.lastError = msg
}

// SetErrorf records a formatted failure detail
func (b *Base) SetErrorf(format string, args ...any) {
	b.lastError = fmt.Sprintf(format, args...)
}

// ClearError resets the failure detail to NoError
func (b *Base) ClearError() {
	b.lastError = ""
}

// SetParams is the base behaviour: agent_id seeded with "undefined", then the
// caller's object merged on top.
func (b *Base) SetParams(p params.Params) {
	b.ApplyParams(nil, p)
}

// ApplyParams seeds the reserved keys, then defaults, then merge-patches p and stores
// the result as the effective configuration. It is idempotent for equal inputs.
func (b *Base) ApplyParams(defaults, p params.Params) params.Params {
	effective := params.Params{params.AgentIDKey: params.Undefined}
	effective.Patch(defaults.Clone())
	effective.Patch(p)
	b.params = effective
	if b.state == StateUninitialized {
		b.state = StateConfigured
	}
	return effective
}

// Params returns the effective configuration
func (b *Base) Params() params.Params {
	return b.params
}

// AgentID returns the agent identifier from the effective configuration
func (b *Base) AgentID() string {
	return b.params.AgentID()
}

// State returns the lifecycle state
func (b *Base) State() State {
	return b.state
}

// MarkReady moves a configured instance to Ready. A terminated instance stays terminated.
func (b *Base) MarkReady() {
	if b.state != StateTerminated {
		b.state = StateReady
	}
}

// Terminate moves the instance to its final state
func (b *Base) Terminate() {
	b.state = StateTerminated
}

// Terminated reports whether the instance reached its final state
func (b *Base) Terminated() bool {
	return b.state == StateTerminated
}

// Fail records err as the last error and returns its status. A Critical status
// terminates the instance. A nil err clears nothing and returns Success.
func (b *Base) Fail(err error) ReturnType {
	status := StatusOf(err)
	if err != nil {
		b.lastError = err.Error()
	}
	if status == Critical {
		b.Terminate()
	}
	return status
}
