// Package registry provides the lock-protected handle maps behind torbridge's
// string identifiers.
//
// Map is a plain identifier-to-value map. Owned scopes identifiers to an
// owner (the calling thread at the C ABI) and reports cross-owner lookups
// explicitly. Tombstones remembers recently removed identifiers so a lookup
// can tell "closed" apart from "never existed".
//
// Every map holds its lock only for the map operation itself. Per-entry
// locking for I/O is the caller's concern.
package registry
