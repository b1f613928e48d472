// Package bridge is the flat, primitive-typed surface over a Session that
// the C library exports.
//
// Inputs follow C conventions: strings are NUL-terminated byte slices (nil
// stands for a null pointer), output buffers are byte slices whose length is
// the capacity. Every call blocks until the work is done and returns 1 on
// success and 0 on failure; TLSRead alone returns a byte count or -1.
//
// No panic crosses the boundary. The code and message of the last failure
// are kept per calling thread and can be fetched with LastErrorCode and
// LastError.
package bridge
