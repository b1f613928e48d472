package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nao1215/torbridge/internal/engine"
)

// TestPlainStream tests the open, write, read, close lifecycle.
func TestPlainStream(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	ctx := context.Background()
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}

	id, err := s.ConnectStream(ctx, "A", "127.0.0.1", startEchoServer(t))
	if err != nil {
		t.Fatalf("ConnectStream failed: %v", err)
	}
	if !strings.HasPrefix(id, "A-stream-") {
		t.Errorf("unexpected stream id %q", id)
	}
	if _, err := strconv.ParseInt(strings.TrimPrefix(id, "A-stream-"), 10, 64); err != nil {
		t.Errorf("stream id suffix is not a millisecond timestamp: %q", id)
	}

	payload := []byte("hello through the bridge\x00\xff")
	n, err := s.Write(ctx, id, payload)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(payload) {
		t.Errorf("expected %d bytes written, got %d", len(payload), n)
	}
	if err := s.Flush(ctx, id); err != nil {
		t.Errorf("Flush failed: %v", err)
	}

	got := readFull(t, func(b []byte) (int, error) { return s.Read(ctx, id, b) }, len(payload))
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: got %q, want %q", got, payload)
	}

	if err := s.CloseStream(id); err != nil {
		t.Fatalf("CloseStream failed: %v", err)
	}
	for _, streamID := range s.Streams() {
		if streamID == id {
			t.Fatal("closed stream still registered")
		}
	}

	t.Run("operations after close", func(t *testing.T) {
		_, err := s.Write(ctx, id, payload)
		wantErr(t, err, ErrStreamClosed, ErrStreamNotFound)
		wantErr(t, s.Flush(ctx, id), ErrStreamClosed)
		_, err = s.Read(ctx, id, make([]byte, 8))
		wantErr(t, err, ErrStreamClosed)
		wantErr(t, s.CloseStream(id), ErrStreamClosed, ErrNotFound)
	})

	t.Run("unknown stream", func(t *testing.T) {
		_, err := s.Write(ctx, "never-opened", payload)
		wantErr(t, err, ErrStreamNotFound)
		if errors.Is(err, ErrStreamClosed) {
			t.Error("unknown stream must not be reported as closed")
		}
		wantErr(t, s.CloseStream("never-opened"), ErrStreamNotFound)
	})
}

// TestConnectStreamErrors tests validation and failure paths.
func TestConnectStreamErrors(t *testing.T) {
	t.Parallel()

	s, network := newTestSession(t)
	ctx := context.Background()
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		circuit string
		host    string
		port    int
		want    error
	}{
		{name: "port zero", circuit: "A", host: "127.0.0.1", port: 0, want: ErrInvalidParams},
		{name: "port too large", circuit: "A", host: "127.0.0.1", port: 70000, want: ErrInvalidParams},
		{name: "empty host", circuit: "A", host: "", port: 80, want: ErrInvalidParams},
		{name: "v2 onion", circuit: "A", host: "abcdefghijklmnop.onion", port: 80, want: ErrInvalidParams},
		{name: "unknown circuit", circuit: "Z", host: "127.0.0.1", port: 80, want: ErrCircuitNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.ConnectStream(ctx, tt.circuit, tt.host, tt.port)
			wantErr(t, err, tt.want)
		})
	}
	if network.dials.Load() != 0 {
		t.Errorf("expected no dials for rejected input, got %d", network.dials.Load())
	}

	t.Run("dial failure", func(t *testing.T) {
		_, err := s.ConnectStream(ctx, "A", "127.0.0.1", closedPort(t))
		wantErr(t, err, ErrConnectionFailed)
		if got := s.Streams(); len(got) != 0 {
			t.Errorf("expected no streams after failed dial, got %v", got)
		}
	})
}

// TestStreamIDCollision tests that two streams opened on the same circuit
// within one millisecond collide detectably.
func TestStreamIDCollision(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1700000000123))
	s, network := newTestSession(t, WithClock(mock))
	ctx := context.Background()
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}
	port := startEchoServer(t)

	first, err := s.ConnectStream(ctx, "A", "127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	if first != "A-stream-1700000000123" {
		t.Errorf("unexpected id %q", first)
	}
	if s.NewStreamID("A") != first {
		t.Error("expected same-millisecond ids to be equal")
	}

	dials := network.dials.Load()
	_, err = s.ConnectStream(ctx, "A", "127.0.0.1", port)
	wantErr(t, err, ErrStreamIDCollision)
	if network.dials.Load() != dials {
		t.Error("collision must be detected before dialing")
	}

	if _, err := s.Write(ctx, first, []byte("ok")); err != nil {
		t.Errorf("existing stream broken by collision: %v", err)
	}

	t.Run("explicit id collision", func(t *testing.T) {
		wantErr(t, s.OpenStream(ctx, first, "A", "127.0.0.1", port), ErrStreamIDCollision)
	})

	mock.Add(time.Millisecond)
	second, err := s.ConnectStream(ctx, "A", "127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	if second == first {
		t.Errorf("expected distinct ids one millisecond apart, got %q twice", first)
	}

	t.Run("different circuits never collide", func(t *testing.T) {
		if err := s.CreateCircuit("B"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.ConnectStream(ctx, "B", "127.0.0.1", port); err != nil {
			t.Errorf("stream on circuit B failed: %v", err)
		}
	})
}

// TestStreamReopenAfterClose tests that a closed id can be opened again.
func TestStreamReopenAfterClose(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	s, _ := newTestSession(t, WithClock(mock))
	ctx := context.Background()
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}
	port := startEchoServer(t)

	id, err := s.ConnectStream(ctx, "A", "127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CloseStream(id); err != nil {
		t.Fatal(err)
	}
	again, err := s.ConnectStream(ctx, "A", "127.0.0.1", port)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if again != id {
		t.Fatalf("expected same id with frozen clock, got %q and %q", id, again)
	}
	if _, err := s.Write(ctx, again, []byte("x")); err != nil {
		t.Errorf("write on reopened stream failed: %v", err)
	}
}

// TestReadEndOfStream tests that end of stream is a zero-byte success.
func TestReadEndOfStream(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	ctx := context.Background()
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}
	port := startServer(t, func(c net.Conn) {
		_, _ = c.Write([]byte("bye"))
	})

	id, err := s.ConnectStream(ctx, "A", "127.0.0.1", port)
	if err != nil {
		t.Fatal(err)
	}
	got := readFull(t, func(b []byte) (int, error) { return s.Read(ctx, id, b) }, 3)
	if string(got) != "bye" {
		t.Fatalf("expected %q, got %q", "bye", got)
	}

	n, err := s.Read(ctx, id, make([]byte, 16))
	if err != nil {
		t.Fatalf("read at end of stream failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 bytes at end of stream, got %d", n)
	}

	if err := s.CloseStream(id); err != nil {
		t.Errorf("close after end of stream failed: %v", err)
	}
}

// TestStreamSurvivesDisconnect tests that streams are not torn down with
// their circuit or the client.
func TestStreamSurvivesDisconnect(t *testing.T) {
	t.Parallel()

	s, network := newTestSession(t)
	ctx := context.Background()
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}
	id, err := s.ConnectStream(ctx, "A", "127.0.0.1", startEchoServer(t))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if network.closed.Load() != 0 {
		t.Fatal("network closed while a stream is open")
	}

	if _, err := s.Write(ctx, id, []byte("still here")); err != nil {
		t.Fatalf("write after disconnect failed: %v", err)
	}
	got := readFull(t, func(b []byte) (int, error) { return s.Read(ctx, id, b) }, 10)
	if string(got) != "still here" {
		t.Errorf("unexpected echo %q", got)
	}

	if err := s.CloseStream(id); err != nil {
		t.Fatal(err)
	}
	if network.closed.Load() != 1 {
		t.Errorf("expected network closed with its last stream, got %d", network.closed.Load())
	}
}

// TestStreamsDoNotContend tests that a read blocked on one stream does not
// hold up another, and that closing a stream unblocks its reader.
func TestStreamsDoNotContend(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	ctx := context.Background()
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}

	silent := startServer(t, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
	if err := s.OpenStream(ctx, "silent", "A", "127.0.0.1", silent); err != nil {
		t.Fatal(err)
	}
	if err := s.OpenStream(ctx, "echo", "A", "127.0.0.1", startEchoServer(t)); err != nil {
		t.Fatal(err)
	}

	blocked := make(chan error, 1)
	go func() {
		_, err := s.Read(ctx, "silent", make([]byte, 8))
		blocked <- err
	}()

	if _, err := s.Write(ctx, "silent", []byte("w")); err != nil {
		t.Fatalf("write blocked by read on the same stream: %v", err)
	}
	if _, err := s.Write(ctx, "echo", []byte("ping")); err != nil {
		t.Fatal(err)
	}
	got := readFull(t, func(b []byte) (int, error) { return s.Read(ctx, "echo", b) }, 4)
	if string(got) != "ping" {
		t.Errorf("unexpected echo %q", got)
	}

	select {
	case err := <-blocked:
		t.Fatalf("silent read returned early: %v", err)
	default:
	}

	done := make(chan error, 1)
	go func() { done <- s.CloseStream("silent") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("close waited on an in-flight read")
	}

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("read not unblocked by close")
	}
}

// stallNetwork never completes a dial before its context ends.
type stallNetwork struct{}

func (stallNetwork) DialContext(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stallNetwork) Close() error { return nil }

// TestOpenStreamDialTimeout tests that a dial that never completes fails
// once the dial timeout passes.
func TestOpenStreamDialTimeout(t *testing.T) {
	t.Parallel()

	eng, err := engine.New(engine.WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	s := New(
		WithEngine(eng),
		WithBootstrapper(staticBootstrapper(stallNetwork{})),
		WithClientConfigPath(""),
		WithDialTimeout(50*time.Millisecond),
	)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	if err := s.Init(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- s.OpenStream(ctx, "s1", "A", "127.0.0.1", 80) }()
	select {
	case err := <-done:
		wantErr(t, err, ErrConnectionFailed, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("dial not bounded by the dial timeout")
	}
}

// TestIdleReadsDoNotStarveStreams tests that more parked reads than engine
// workers leave other streams usable.
func TestIdleReadsDoNotStarveStreams(t *testing.T) {
	t.Parallel()

	eng, err := engine.New(engine.WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	s, _ := newTestSession(t, WithEngine(eng))
	ctx := context.Background()
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}

	silent := startServer(t, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
	const idle = 3
	for i := 0; i < idle; i++ {
		if err := s.OpenStream(ctx, "idle-"+itoa(i), "A", "127.0.0.1", silent); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.OpenStream(ctx, "echo", "A", "127.0.0.1", startEchoServer(t)); err != nil {
		t.Fatal(err)
	}

	blocked := make(chan error, idle)
	for i := 0; i < idle; i++ {
		id := "idle-" + itoa(i)
		go func() {
			_, err := s.Read(ctx, id, make([]byte, 8))
			blocked <- err
		}()
	}
	deadline := time.Now().Add(5 * time.Second)
	for eng.InFlight() < idle {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d parked reads, got %d", idle, eng.InFlight())
		}
		time.Sleep(5 * time.Millisecond)
	}

	done := make(chan error, 1)
	go func() {
		if _, err := s.Write(ctx, "echo", []byte("hi")); err != nil {
			done <- err
			return
		}
		_, err := s.Read(ctx, "echo", make([]byte, 8))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("echo round trip failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("echo stream starved by idle reads")
	}

	for i := 0; i < idle; i++ {
		if err := s.CloseStream("idle-" + itoa(i)); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < idle; i++ {
		select {
		case <-blocked:
		case <-time.After(5 * time.Second):
			t.Fatal("idle read not unblocked by close")
		}
	}
}
