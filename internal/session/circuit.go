package session

import (
	"context"
	"fmt"

	"github.com/nao1215/torbridge/internal/journal"
)

// circuit is a named alias holding its own reference to the client that was
// current when it was created.
type circuit struct {
	id     string
	client *clientRef
}

// CreateCircuit stores id as an alias for the current client. An existing
// circuit with the same id is silently replaced.
func (s *Session) CreateCircuit(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty circuit id", ErrInvalidParams)
	}

	s.mu.RLock()
	client := s.client
	ok := client != nil && client.tryRetain()
	s.mu.RUnlock()
	if !ok {
		return ErrNotInitialized
	}

	if old, replaced := s.circuits.Put(id, &circuit{id: id, client: client}); replaced {
		if err := old.client.release(); err != nil {
			s.logger.Warn("failed to release replaced circuit", "circuit", id, "error", err)
		}
	}

	s.record(context.Background(), journal.Event{Kind: journal.KindCircuitCreate, Handle: id})
	s.logger.Debug("circuit created", "circuit", id)
	return nil
}

// DestroyCircuit removes a circuit. Streams opened through it stay open.
func (s *Session) DestroyCircuit(id string) error {
	c, ok := s.circuits.Remove(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrCircuitNotFound, id)
	}
	if err := c.client.release(); err != nil {
		s.logger.Warn("failed to release circuit", "circuit", id, "error", err)
	}

	s.record(context.Background(), journal.Event{Kind: journal.KindCircuitDestroy, Handle: id})
	s.logger.Debug("circuit destroyed", "circuit", id)
	return nil
}

// Circuits returns the ids of all circuits, sorted.
func (s *Session) Circuits() []string {
	return s.circuits.Keys()
}

// retainCircuit looks up a circuit and takes a reference on its client for
// the caller, who must release it.
func (s *Session) retainCircuit(id string) (*clientRef, error) {
	c, ok := s.circuits.Get(id)
	if !ok || !c.client.tryRetain() {
		return nil, fmt.Errorf("%w: %q", ErrCircuitNotFound, id)
	}
	return c.client, nil
}
