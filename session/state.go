package session

// State is the voice session lifecycle. Closed and Error are terminal.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Active reports whether a session in this state is connecting or open.
func (s State) Active() bool {
	return s == StateConnecting || s == StateOpen
}

// Terminal reports whether the session can no longer be started.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateError
}
