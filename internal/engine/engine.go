// Package engine defines the boundary between the player and the media
// processing engine: processing stages, their ports and control channels,
// the events they raise and the buffers that move between them.
//
// The player never processes media itself. It creates components through an
// Engine, wires their ports together and reacts to the events they emit.
package engine

import "fmt"

// StageKind identifies the role a component plays in the chain.
type StageKind int

const (
	StageReader StageKind = iota
	StageDecoder
	StageScheduler
	StageRenderer
)

// Stages lists every kind in chain order, reader first.
var Stages = []StageKind{StageReader, StageDecoder, StageScheduler, StageRenderer}

// String returns a human-readable stage name.
func (k StageKind) String() string {
	switch k {
	case StageReader:
		return "reader"
	case StageDecoder:
		return "decoder"
	case StageScheduler:
		return "scheduler"
	case StageRenderer:
		return "renderer"
	default:
		return fmt.Sprintf("stage(%d)", int(k))
	}
}

// Engine creates processing components.
type Engine interface {
	NewComponent(kind StageKind) (Component, error)
}

// Component is one processing stage. A component is owned by whoever
// created it and must be destroyed by that owner.
type Component interface {
	Name() string
	Kind() StageKind

	// Control returns the channel that carries parameters and events.
	Control() ControlChannel
	// Input, Output and Clock return nil when the stage has no such port.
	Input() Port
	Output() Port
	Clock() Port

	Enable() error
	Disable() error
	IsEnabled() bool
	Destroy() error
}

// ControlChannel carries parameters to a component and events back from it.
type ControlChannel interface {
	Name() string
	// Enable installs the event handler. The handler is invoked on an
	// engine-owned goroutine and must not block.
	Enable(h EventHandler) error
	Disable() error
	IsEnabled() bool
	SetParameter(p Parameter) error
}

// BufferHandler receives buffers a port hands back: filled buffers from an
// output port, consumed buffers from an input port. It runs on an
// engine-owned goroutine and must not block.
type BufferHandler func(p Port, b *Buffer)

// BufferRequirements is the number and size of buffers a port wants.
type BufferRequirements struct {
	Num  int
	Size int
}

// Port is a typed endpoint on a component.
type Port interface {
	Name() string
	Format() Format
	// CommitFormat applies f to the port. Only legal while disabled.
	CommitFormat(f Format) error
	BufferRequirements() BufferRequirements
	SetParameter(p Parameter) error

	// Enable starts the port. For a tunnelled output port h is ignored and
	// the engine enables both ends of the tunnel.
	Enable(h BufferHandler) error
	// Disable stops the port and hands every buffer it still holds back
	// through the handler before returning.
	Disable() error
	IsEnabled() bool

	// Send gives b to the port. Output ports fill it, input ports consume it.
	Send(b *Buffer) error

	// Connect tunnels this output port directly into dst so buffers flow
	// without leaving the engine.
	Connect(dst Port) error
	Disconnect() error
}

// Format describes the elementary stream carried on a port.
type Format struct {
	Encoding string
	Width    int
	Height   int
}

// IsZero reports whether no format has been committed.
func (f Format) IsZero() bool {
	return f == Format{}
}

func (f Format) String() string {
	if f.IsZero() {
		return "unset"
	}
	if f.Width == 0 && f.Height == 0 {
		return f.Encoding
	}
	return fmt.Sprintf("%s %dx%d", f.Encoding, f.Width, f.Height)
}
