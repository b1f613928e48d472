package session

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/torbridge/internal/config"
	"github.com/nao1215/torbridge/internal/engine"
)

// directDialer dials without a proxy and counts calls.
type directDialer struct {
	calls atomic.Int32
}

func (d *directDialer) Dial(network, address string) (net.Conn, error) {
	d.calls.Add(1)
	return net.Dial(network, address)
}

func newHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Add("X-Multi", "a")
		w.Header().Add("X-Multi", "b")
		w.Header().Set("X-Method", r.Method)
		w.Header().Set("X-Token-Seen", r.Header.Get("X-Token"))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write(append([]byte("echo:"), body...))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestHTTPRequest tests the convenience HTTP call.
func TestHTTPRequest(t *testing.T) {
	t.Parallel()

	srv := newHTTPServer(t)
	dialer := &directDialer{}
	s, _ := newTestSession(t, WithHTTPDialer(dialer))
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("POST with headers and body", func(t *testing.T) {
		out, err := s.HTTPRequest(ctx, "A", srv.URL+"/submit", "post", `{"X-Token":"abc"}`, []byte("payload"))
		if err != nil {
			t.Fatalf("HTTPRequest failed: %v", err)
		}

		var resp HTTPResponse
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("invalid JSON envelope %q: %v", out, err)
		}
		if resp.Status != http.StatusTeapot {
			t.Errorf("expected status 418, got %d", resp.Status)
		}
		if resp.Body != "echo:payload" {
			t.Errorf("unexpected body %q", resp.Body)
		}
		if resp.Headers["X-Multi"] != "a, b" {
			t.Errorf("expected joined header values, got %q", resp.Headers["X-Multi"])
		}
		if resp.Headers["X-Method"] != http.MethodPost {
			t.Errorf("expected method upper-cased, got %q", resp.Headers["X-Method"])
		}
		if resp.Headers["X-Token-Seen"] != "abc" {
			t.Errorf("request header not sent, got %q", resp.Headers["X-Token-Seen"])
		}
	})

	t.Run("HEAD has empty body", func(t *testing.T) {
		out, err := s.HTTPRequest(ctx, "A", srv.URL, "HEAD", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		var resp HTTPResponse
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Body != "" {
			t.Errorf("expected empty body, got %q", resp.Body)
		}
	})

	t.Run("rejections make no network call", func(t *testing.T) {
		before := dialer.calls.Load()

		_, err := s.HTTPRequest(ctx, "A", srv.URL, "TRACE", "", nil)
		wantErr(t, err, ErrUnsupportedMethod)

		_, err = s.HTTPRequest(ctx, "missing", srv.URL, "GET", "", nil)
		wantErr(t, err, ErrCircuitNotFound)

		_, err = s.HTTPRequest(ctx, "A", srv.URL, "GET", `["not","an","object"]`, nil)
		wantErr(t, err, ErrInvalidParams)

		_, err = s.HTTPRequest(ctx, "A", srv.URL, "GET", `{"X-Num": 1}`, nil)
		wantErr(t, err, ErrInvalidParams)

		_, err = s.HTTPRequest(ctx, "A", "://bad url", "GET", "", nil)
		wantErr(t, err, ErrInvalidParams)

		if got := dialer.calls.Load(); got != before {
			t.Errorf("expected no dials, got %d", got-before)
		}
	})

	t.Run("circuit is checked before the method", func(t *testing.T) {
		_, err := s.HTTPRequest(ctx, "missing", srv.URL, "TRACE", "", nil)
		wantErr(t, err, ErrCircuitNotFound)
	})

	t.Run("transport failure", func(t *testing.T) {
		_, err := s.HTTPRequest(ctx, "A", "http://127.0.0.1:"+itoa(closedPort(t)), "GET", "", nil)
		wantErr(t, err, ErrRequestFailed)
	})
}

// TestHTTPRequestTimeout tests that the configured dial timeout bounds a
// request to a server that answers too late.
func TestHTTPRequestTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = io.WriteString(w, "late")
	}))
	t.Cleanup(srv.Close)

	network := &loopbackNetwork{}
	s := newTestSessionOn(t, network, WithHTTPDialer(&directDialer{}), WithDialTimeout(50*time.Millisecond))
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}

	out, err := s.HTTPRequest(context.Background(), "A", srv.URL, "GET", "", nil)
	wantErr(t, err, ErrRequestFailed)
	if out != "" {
		t.Errorf("expected no response, got %q", out)
	}
}

// TestNewFromConfigDialTimeout tests that Config.DialTimeout reaches the
// HTTP client.
func TestNewFromConfigDialTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = io.WriteString(w, "late")
	}))
	t.Cleanup(srv.Close)

	eng, err := engine.New(engine.WithWorkers(2))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	cfg := &config.Config{DialTimeout: 50 * time.Millisecond}
	s := NewFromConfig(cfg,
		WithEngine(eng),
		WithBootstrapper(staticBootstrapper(&loopbackNetwork{})),
		WithHTTPDialer(&directDialer{}),
		WithClientConfigPath(""),
	)
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCircuit("A"); err != nil {
		t.Fatal(err)
	}

	_, err = s.HTTPRequest(context.Background(), "A", srv.URL, "GET", "", nil)
	wantErr(t, err, ErrRequestFailed)
}
