package player

// State represents where a session's worker is in its lifecycle.
type State int

const (
	// StateIdle is the initial state: built but not started.
	StateIdle State = iota

	// StateRunning indicates the worker is waiting for or handling wakes.
	StateRunning

	// StateReconfiguring indicates the worker is switching sources.
	StateReconfiguring

	// StateDraining indicates the worker is disabling the pipeline on its
	// way out.
	StateDraining

	// StateTerminated indicates the worker has exited.
	StateTerminated
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateReconfiguring:
		return "reconfiguring"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// IsActive returns true while the worker goroutine is alive.
func (s State) IsActive() bool {
	return s == StateRunning || s == StateReconfiguring || s == StateDraining
}

// IsTerminal returns true once the worker has exited.
func (s State) IsTerminal() bool {
	return s == StateTerminated
}

// ExitReason records why the worker stopped.
type ExitReason int

const (
	ExitUndefined ExitReason = iota
	// ExitTerminated: Stop was called.
	ExitTerminated
	// ExitEndOfStream: the stream ended and nothing asked to continue.
	ExitEndOfStream
	// ExitError: an engine error, pump failure or failed reconfiguration.
	ExitError
)

func (r ExitReason) String() string {
	switch r {
	case ExitTerminated:
		return "terminated"
	case ExitEndOfStream:
		return "eos"
	case ExitError:
		return "error"
	default:
		return "undefined"
	}
}

// Strategy selects how a session switches sources.
type Strategy int

const (
	// FullRebuild tears the pipeline down and builds a new one.
	FullRebuild Strategy = iota
	// SeamlessSeek keeps the pipeline and rewinds the reader when the new
	// source equals the current one. Other sources fall back to FullRebuild.
	SeamlessSeek
)

func (s Strategy) String() string {
	if s == SeamlessSeek {
		return "seamless"
	}
	return "rebuild"
}

// ParseStrategy parses "rebuild" or "seamless".
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "rebuild":
		return FullRebuild, nil
	case "seamless":
		return SeamlessSeek, nil
	}
	return FullRebuild, &UnknownStrategyError{Value: s}
}
