package session

// State is a position in the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateAcquiring
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateAcquiring:
		return "acquiring"
	case StateShuttingDown:
		return "shutting-down"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
