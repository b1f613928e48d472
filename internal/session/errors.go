package session

import (
	"errors"
	"fmt"

	"github.com/nao1215/torbridge/internal/engine"
)

// Error taxonomy. Every error returned by a Session matches exactly one of
// these with errors.Is, which is how the bridge maps it to a status code.
var (
	// ErrInvalidParams is returned for malformed input: empty identifiers,
	// bad hosts or ports, unparsable header JSON.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrNotInitialized is returned when an operation needs a client and
	// none is stored.
	ErrNotInitialized = errors.New("tor client not initialized")

	// ErrNotFound is the parent of every unknown-identifier error.
	ErrNotFound = errors.New("not found")

	// ErrCircuitNotFound is returned for unknown circuit identifiers.
	ErrCircuitNotFound = fmt.Errorf("circuit %w", ErrNotFound)

	// ErrStreamNotFound is returned for unknown stream identifiers.
	ErrStreamNotFound = fmt.Errorf("stream %w", ErrNotFound)

	// ErrStreamClosed is returned for identifiers of streams that were
	// closed. It is still a not-found error.
	ErrStreamClosed = fmt.Errorf("%w: stream was closed", ErrStreamNotFound)

	// ErrNotOwner is returned when a TLS stream exists but was opened by a
	// different owner. It is still a not-found error.
	ErrNotOwner = fmt.Errorf("%w: stream is owned by another thread", ErrStreamNotFound)

	// ErrConnectionFailed is returned when bootstrap or a dial fails.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrHandshakeFailed is returned when the TLS handshake fails.
	ErrHandshakeFailed = errors.New("TLS handshake failed")

	// ErrIOFailed is returned when a read, write or flush fails.
	ErrIOFailed = errors.New("stream I/O failed")

	// ErrRuntimeCreation is returned when no engine could be created.
	ErrRuntimeCreation = errors.New("failed to create runtime")

	// ErrUnsupportedMethod is returned for HTTP verbs other than
	// GET, POST, PUT, DELETE, HEAD and PATCH.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")

	// ErrRequestFailed is returned when the HTTP request cannot be completed.
	ErrRequestFailed = errors.New("HTTP request failed")

	// ErrStreamIDCollision is returned when a generated stream identifier is
	// already in use, i.e. two streams were opened on the same circuit within
	// the same millisecond. The existing stream is left untouched.
	ErrStreamIDCollision = errors.New("stream identifier already in use")

	// ErrInternal is returned when a recovered panic or other unexpected
	// failure stops an operation.
	ErrInternal = errors.New("internal error")
)

// runError attributes a failure of a job run on the engine to sentinel,
// unless the engine itself failed: a recovered panic is ErrInternal and a
// closed engine is ErrRuntimeCreation.
func runError(sentinel error, what string, err error) error {
	switch {
	case errors.Is(err, engine.ErrPanic):
		return fmt.Errorf("%w: %s: %w", ErrInternal, what, err)
	case errors.Is(err, engine.ErrClosed):
		return fmt.Errorf("%w: %s: %w", ErrRuntimeCreation, what, err)
	default:
		return fmt.Errorf("%w: %s: %w", sentinel, what, err)
	}
}
