package player

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionRunning is returned for operations that need the worker to
	// be stopped or to be the caller.
	ErrSessionRunning    = errors.New("session running")
	ErrSessionTerminated = errors.New("session terminated")
	ErrSessionDestroyed  = errors.New("session destroyed")
)

// EngineError is an error raised asynchronously by a processing stage.
type EngineError struct {
	Stage string
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine error from %s: %v", e.Stage, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// UnknownStrategyError is returned by ParseStrategy.
type UnknownStrategyError struct {
	Value string
}

func (e *UnknownStrategyError) Error() string {
	return fmt.Sprintf("unknown strategy %q (want rebuild or seamless)", e.Value)
}
