package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// workersPerProc is the number of concurrent connection attempts allowed per
// logical CPU. Attempts spend almost all their time waiting on Tor.
const workersPerProc = 4

// Engine runs scheduled work on background goroutines while the submitting
// goroutine blocks.
//
// Run places no limit on concurrent jobs: a stream read may wait for data
// indefinitely and must never hold up work on another stream. RunLimited
// additionally takes a slot from a weighted semaphore, which bounds how many
// dials and bootstraps are in progress at once.
type Engine struct {
	// sem bounds jobs scheduled with RunLimited.
	sem *semaphore.Weighted

	// workers is the semaphore capacity.
	workers int64

	// inFlight counts jobs that were dispatched and have not finished.
	inFlight atomic.Int64

	// mu guards closed and orders wg.Add against Close.
	mu     sync.Mutex
	closed bool

	// wg tracks running jobs so Close can wait for them.
	wg sync.WaitGroup
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers sets the maximum number of RunLimited jobs that run at once.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// DefaultWorkers returns the default RunLimited concurrency for a new engine.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0) * workersPerProc
}

// New creates an engine. It fails with ErrCreate when the options are invalid.
func New(opts ...Option) (*Engine, error) {
	o := options{workers: DefaultWorkers()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.workers < 1 {
		return nil, fmt.Errorf("%w: workers must be positive, got %d", ErrCreate, o.workers)
	}

	return &Engine{
		sem:     semaphore.NewWeighted(int64(o.workers)),
		workers: int64(o.workers),
	}, nil
}

// Workers returns the engine's RunLimited concurrency limit.
func (e *Engine) Workers() int {
	return int(e.workers)
}

// InFlight returns the number of jobs currently running.
func (e *Engine) InFlight() int64 {
	return e.inFlight.Load()
}

// BlockOn schedules fn on the engine and blocks until it returns.
func (e *Engine) BlockOn(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Run(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Run schedules fn on e and blocks the calling goroutine until fn returns,
// then hands back fn's result. It never waits for a worker slot.
//
// Once fn has started, Run waits for it: bridge calls are not cancellable
// after dispatch.
func Run[T any](ctx context.Context, e *Engine, fn func(ctx context.Context) (T, error)) (T, error) {
	return run(ctx, e, false, fn)
}

// RunLimited is Run for work that opens connections. It waits for one of the
// engine's worker slots first; if ctx is cancelled while waiting, it returns
// ctx.Err() without running fn.
func RunLimited[T any](ctx context.Context, e *Engine, fn func(ctx context.Context) (T, error)) (T, error) {
	return run(ctx, e, true, fn)
}

func run[T any](ctx context.Context, e *Engine, limited bool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if limited {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return zero, err
		}
	}
	release := func() {
		if limited {
			e.sem.Release(1)
		}
	}

	if !e.begin() {
		release()
		return zero, ErrClosed
	}

	type result struct {
		value T
		err   error
	}
	resultCh := make(chan result, 1)

	e.inFlight.Add(1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r = result{err: fmt.Errorf("%w: %v", ErrPanic, p)}
			}
			e.inFlight.Add(-1)
			release()
			e.wg.Done()
			resultCh <- r
		}()

		r.value, r.err = fn(context.WithoutCancel(ctx))
	}()

	r := <-resultCh
	return r.value, r.err
}

// begin registers a job unless the engine is closed.
func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	return true
}

// Close stops the engine from accepting new work and waits for running jobs.
// It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.wg.Wait()
	return nil
}
