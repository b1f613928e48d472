package journal

import "time"

// Kind is the type of a lifecycle event.
type Kind string

// Lifecycle events.
const (
	KindInit           Kind = "init"
	KindDisconnect     Kind = "disconnect"
	KindCircuitCreate  Kind = "circuit_create"
	KindCircuitDestroy Kind = "circuit_destroy"
	KindStreamOpen     Kind = "stream_open"
	KindStreamClose    Kind = "stream_close"
	KindTLSOpen        Kind = "tls_open"
	KindTLSClose       Kind = "tls_close"
)

// Event is one recorded lifecycle event.
type Event struct {
	// ID is assigned by the database on insert.
	ID int64

	// SessionID identifies the bridge session that produced the event.
	SessionID string

	// Kind is what happened.
	Kind Kind

	// Handle is the circuit or stream identifier. Empty for init and disconnect.
	Handle string

	// Owner is the owning thread of a TLS stream, zero otherwise.
	Owner int64

	// Detail is free-form context such as the dial target.
	Detail string

	// Time is when the event happened.
	Time time.Time
}

// HandleKind names the type of handle a Leak refers to.
type HandleKind string

// Handle kinds reported by Leaks.
const (
	HandleCircuit   HandleKind = "circuit"
	HandleStream    HandleKind = "stream"
	HandleTLSStream HandleKind = "tls_stream"
)

// Leak is a handle that was opened and never closed.
type Leak struct {
	Kind   HandleKind
	Handle string
	Owner  int64
	Detail string
	Opened time.Time
}

// SessionInfo summarizes one session in the journal.
type SessionInfo struct {
	ID        string
	Started   time.Time
	LastEvent time.Time
	Events    int
}
