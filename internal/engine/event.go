package engine

import "fmt"

// EventType classifies a control-channel event.
type EventType int

const (
	EventError EventType = iota
	EventEOS
	EventFormatChanged
)

func (t EventType) String() string {
	switch t {
	case EventError:
		return "error"
	case EventEOS:
		return "eos"
	case EventFormatChanged:
		return "format_changed"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is raised by a component on its control channel.
type Event struct {
	Type EventType
	// Source is the name of the component that raised the event.
	Source string
	// Err is set for EventError.
	Err error
	// Format is the new output format for EventFormatChanged.
	Format Format
}

// EventHandler receives control-channel events.
type EventHandler func(ev Event)
