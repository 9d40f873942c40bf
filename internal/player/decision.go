package player

type decisionKind int

const (
	decideStop decisionKind = iota
	decideContinue
	decideHandled
)

// Decision is what an EOS callback wants the worker to do next.
type Decision struct {
	kind   decisionKind
	source string
}

// Continue plays source next. Passing the current source replays it. It
// replaces any SetNewSource request made during the same callback.
func Continue(source string) Decision {
	return Decision{kind: decideContinue, source: source}
}

// Finish ends the session with ExitEndOfStream.
func Finish() Decision {
	return Decision{kind: decideStop}
}

// Handled performs the switch the callback requested with SetNewSource.
// Without a request the session ends with ExitEndOfStream.
func Handled() Decision {
	return Decision{kind: decideHandled}
}

// Source returns the source a Continue decision names.
func (d Decision) Source() string { return d.source }

// Stops reports whether the decision ends playback.
func (d Decision) Stops() bool { return d.kind == decideStop }

func (d Decision) String() string {
	switch d.kind {
	case decideContinue:
		return "continue(" + d.source + ")"
	case decideHandled:
		return "handled"
	default:
		return "finish"
	}
}
