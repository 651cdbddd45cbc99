package session

import "fmt"

// State is a node of the connection state machine.
type State int

const (
	// StateDisconnected is the initial state, and the parked state after
	// authentication retries are exhausted.
	StateDisconnected State = iota
	// StateConnecting dials the core.
	StateConnecting
	// StateAuthenticating waits for the core to accept our credentials.
	StateAuthenticating
	// StateReady streams buffer deltas and sends commands.
	StateReady
	// StateBackoff waits before the next connection attempt.
	StateBackoff
	// StateShutdown is terminal.
	StateShutdown
)

var stateNames = [...]string{
	StateDisconnected:   "disconnected",
	StateConnecting:     "connecting",
	StateAuthenticating: "authenticating",
	StateReady:          "ready",
	StateBackoff:        "backoff",
	StateShutdown:       "shutdown",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}
