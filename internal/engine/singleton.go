package engine

import (
	"sync"
	"sync/atomic"
)

var (
	// shared is the process engine once constructed.
	shared atomic.Pointer[Engine]

	// sharedMu serializes construction; it is never taken on the fast path.
	sharedMu sync.Mutex
)

// Acquire returns the process-wide engine, constructing it on first use.
//
// Options only take effect for the call that constructs the engine. A failed
// construction is not remembered: the next caller tries again. The process
// engine is never closed.
func Acquire(opts ...Option) (*Engine, error) {
	if e := shared.Load(); e != nil {
		return e, nil
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if e := shared.Load(); e != nil {
		return e, nil
	}

	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	shared.Store(e)
	return e, nil
}
