package main

import (
	"context"
	"net"
	"testing"

	"github.com/nao1215/torbridge/internal/engine"
	"github.com/nao1215/torbridge/internal/session"
	"github.com/nao1215/torbridge/internal/tor"
)

// directNetwork dials targets directly instead of through Tor.
type directNetwork struct{}

func (directNetwork) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

func (directNetwork) Close() error { return nil }

// directDialer is a proxy.Dialer that skips the SOCKS proxy.
type directDialer struct{}

func (directDialer) Dial(network, address string) (net.Conn, error) {
	return net.Dial(network, address)
}

// newTestSession returns an initialized session that dials directly.
func newTestSession(t *testing.T, opts ...session.Option) *session.Session {
	t.Helper()

	eng, err := engine.New(engine.WithWorkers(8))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	base := []session.Option{
		session.WithEngine(eng),
		session.WithClientConfigPath(""),
		session.WithHTTPDialer(directDialer{}),
		session.WithBootstrapper(tor.BootstrapFunc(func(context.Context) (tor.Network, error) {
			return directNetwork{}, nil
		})),
	}
	s := session.New(append(base, opts...)...)
	if err := s.Init(context.Background(), ""); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// startServer runs handle for every connection accepted on a loopback port.
func startServer(t *testing.T, handle func(net.Conn)) (string, int) {
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
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

// upperServer reads one line and answers it in upper case, then closes.
func upperServer(c net.Conn) {
	buf := make([]byte, 256)
	n, err := c.Read(buf)
	if err != nil {
		return
	}
	out := make([]byte, n)
	for i, b := range buf[:n] {
		if b >= 'a' && b <= 'z' {
			b -= 'a' - 'A'
		}
		out[i] = b
	}
	_, _ = c.Write(out)
}

