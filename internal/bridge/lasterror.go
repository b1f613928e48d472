package bridge

import (
	"sync"

	"github.com/nao1215/torbridge/internal/registry"
)

type lastError struct {
	code Code
	msg  string
}

// lastErrors keeps the outcome of the latest call per thread.
type lastErrors struct {
	mu     sync.Mutex
	errors map[registry.Owner]lastError
}

func newLastErrors() *lastErrors {
	return &lastErrors{errors: make(map[registry.Owner]lastError)}
}

func (l *lastErrors) set(owner registry.Owner, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err == nil {
		delete(l.errors, owner)
		return
	}
	l.errors[owner] = lastError{code: CodeOf(err), msg: err.Error()}
}

func (l *lastErrors) get(owner registry.Owner) lastError {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors[owner]
}
