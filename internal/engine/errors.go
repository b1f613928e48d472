package engine

import "errors"

// Engine errors.
var (
	// ErrCreate is returned when an engine cannot be constructed, for example
	// because of an invalid worker count.
	ErrCreate = errors.New("failed to create execution engine")

	// ErrClosed is returned when work is submitted to a closed engine.
	ErrClosed = errors.New("execution engine is closed")

	// ErrPanic is returned when scheduled work panics. The panic is recovered
	// on the worker so it never reaches the blocked caller.
	ErrPanic = errors.New("scheduled work panicked")
)
