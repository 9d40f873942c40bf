// Package supervisor runs player sessions over a playlist and restarts them
// with backoff when they fail.
package supervisor

// State represents where the supervisor is in its restart loop.
type State int

const (
	// StateCreated is the initial state before the first session is built.
	StateCreated State = iota

	// StateStarting indicates a session is being built and started.
	StateStarting

	// StateRunning indicates a session is playing.
	StateRunning

	// StateBackoff indicates a failed session is waiting to be restarted.
	StateBackoff

	// StateStopped indicates the supervisor has finished.
	StateStopped
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// IsActive returns true while a session is playing or about to.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateBackoff
}

// IsTerminal returns true if the state is a terminal state (stopped).
func (s State) IsTerminal() bool {
	return s == StateStopped
}
