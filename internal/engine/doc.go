// Package engine provides the shared execution engine that every blocking
// bridge call schedules its work onto.
//
// A single Engine is created lazily for the whole process by Acquire and is
// never torn down. Callers block on it through Run or BlockOn, which is the
// only place in torbridge where "wait on the calling goroutine until the
// network work finishes" is implemented. Moving the C ABI to a callback or
// future-based surface later is a change to this package only.
//
// The HTTP convenience call deliberately builds a fresh Engine with New for
// every request instead of using the process engine.
package engine
