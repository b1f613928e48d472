package session

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/nao1215/torbridge/internal/engine"
	"github.com/nao1215/torbridge/internal/tor"
)

// loopbackNetwork dials targets directly instead of through Tor.
// With redirect set, every dial goes to that address instead.
type loopbackNetwork struct {
	redirect string
	dials    atomic.Int32
	closed   atomic.Int32
}

func (n *loopbackNetwork) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	n.dials.Add(1)
	if n.redirect != "" {
		address = n.redirect
	}
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

func (n *loopbackNetwork) Close() error {
	n.closed.Add(1)
	return nil
}

func staticBootstrapper(n tor.Network) tor.Bootstrapper {
	return tor.BootstrapFunc(func(context.Context) (tor.Network, error) {
		return n, nil
	})
}

// newTestSession returns an initialized session on a private engine.
func newTestSession(t *testing.T, opts ...Option) (*Session, *loopbackNetwork) {
	t.Helper()
	network := &loopbackNetwork{}
	return newTestSessionOn(t, network, opts...), network
}

// newTestSessionOn is newTestSession with a caller-provided network.
func newTestSessionOn(t *testing.T, network *loopbackNetwork, opts ...Option) *Session {
	t.Helper()

	eng, err := engine.New(engine.WithWorkers(16))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	base := []Option{
		WithEngine(eng),
		WithBootstrapper(staticBootstrapper(network)),
		WithClientConfigPath(""),
	}
	s := New(append(base, opts...)...)
	if err := s.Init(context.Background(), ""); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// startEchoServer starts a TCP server that echoes everything back.
func startEchoServer(t *testing.T) int {
	t.Helper()
	return startServer(t, func(c net.Conn) {
		_, _ = io.Copy(c, c)
	})
}

// startServer starts a TCP server on loopback calling handle per connection.
func startServer(t *testing.T, handle func(net.Conn)) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				handle(c)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

// readFull reads from a stream until n bytes arrived or the stream ended.
func readFull(t *testing.T, read func([]byte) (int, error), n int) []byte {
	t.Helper()

	got := make([]byte, 0, n)
	buf := make([]byte, 64)
	for len(got) < n {
		m, err := read(buf)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if m == 0 {
			break
		}
		got = append(got, buf[:m]...)
	}
	return got
}

func wantErr(t *testing.T, err error, targets ...error) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected error matching %v, got nil", targets)
	}
	for _, target := range targets {
		if !errors.Is(err, target) {
			t.Errorf("expected error to match %v, got %v", target, err)
		}
	}
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
