package framelink

// State is the lifecycle state of a connection.
type State int32

const (
	// StateIdle means no socket is open.
	StateIdle State = iota
	// StateConnecting means the socket is being opened.
	StateConnecting
	// StateRunning means the read loop is active.
	StateRunning
	// StateStopping means the read loop was asked to exit or is tearing
	// down.
	StateStopping
	// StateClosed means the socket has been closed.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
