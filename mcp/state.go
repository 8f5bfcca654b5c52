package mcp

// State is the lifecycle state of a session
type State int32

const (
	StateUninitialized State = iota
	StateHandshaking
	StateReady
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Accepting reports whether new requests are served in this state
func (s State) Accepting() bool {
	return s == StateReady
}
