package session

import (
	"sync"
	"sync/atomic"

	"github.com/nao1215/torbridge/internal/tor"
)

// clientRef is a reference-counted bootstrapped network.
// The network is closed when the count drops to zero and cannot be revived.
type clientRef struct {
	network tor.Network
	refs    atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func newClientRef(n tor.Network) *clientRef {
	c := &clientRef{network: n}
	c.refs.Store(1)
	return c
}

// tryRetain adds a reference unless the network was already released.
func (c *clientRef) tryRetain() bool {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and closes the network when it was the last.
func (c *clientRef) release() error {
	if c.refs.Add(-1) != 0 {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closeErr = c.network.Close()
	})
	return c.closeErr
}
