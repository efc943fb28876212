package plugin

// State represents the lifecycle state of a plugin instance
type State int

const (
	// StateUninitialized indicates the instance was created but never configured
	StateUninitialized State = iota
	// StateConfigured indicates SetParams has been applied at least once
	StateConfigured
	// StateReady indicates the instance acquired its resources and can serve data calls
	StateReady
	// StateTerminated indicates the instance reported Critical and must not be used again
	StateTerminated
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateReady:
		return "ready"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
