package engine

import "errors"

var (
	// ErrInvalid is returned for an operation the component cannot accept in
	// its current state.
	ErrInvalid = errors.New("invalid operation")

	ErrNotEnabled = errors.New("port not enabled")
	ErrDestroyed  = errors.New("component destroyed")

	// ErrBufferOwnership is returned when a buffer is moved from a state it
	// is not in.
	ErrBufferOwnership = errors.New("buffer ownership violation")

	ErrNotConnected = errors.New("port not connected")
	ErrUnsupported  = errors.New("unsupported parameter")

	// ErrSourceUnreadable is returned by a reader that cannot open its URI.
	ErrSourceUnreadable = errors.New("source unreadable")
)
