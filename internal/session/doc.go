// Package session owns every handle torbridge hands out.
//
// A Session holds the bootstrapped Tor client and three registries keyed by
// opaque strings:
//   - circuits: named aliases that grant access to the client
//   - plain streams: byte streams dialed through a circuit, with generated
//     identifiers of the form "{circuit}-stream-{unix_millis}"
//   - TLS streams: streams wrapped in TLS and visible only to the owner
//     (at the C ABI, the OS thread) that opened them
//
// Every operation is synchronous: it blocks the caller while the work runs on
// the shared engine. Registry locks are held only while the maps are touched;
// network I/O happens under per-stream locks so unrelated streams never wait
// on each other.
//
// Circuits, streams and the session itself each hold a reference to the
// client they were created with. Replacing or clearing the session's client
// does not invalidate them; the network is shut down once the last
// reference is released.
package session
