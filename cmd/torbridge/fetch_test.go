package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/nao1215/torbridge/internal/session"
)

// TestParseHeaders tests header flag parsing.
func TestParseHeaders(t *testing.T) {
	t.Parallel()

	t.Run("none", func(t *testing.T) {
		t.Parallel()
		got, err := parseHeaders(nil)
		if err != nil || got != nil {
			t.Errorf("got %v, %v", got, err)
		}
	})

	t.Run("trims whitespace", func(t *testing.T) {
		t.Parallel()
		got, err := parseHeaders([]string{"Accept:  text/html ", "X-Empty:"})
		if err != nil {
			t.Fatal(err)
		}
		if got["Accept"] != "text/html" {
			t.Errorf("unexpected Accept %q", got["Accept"])
		}
		if v, ok := got["X-Empty"]; !ok || v != "" {
			t.Errorf("unexpected X-Empty %q", v)
		}
	})

	t.Run("rejects missing colon", func(t *testing.T) {
		t.Parallel()
		if _, err := parseHeaders([]string{"Accept text/html"}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		t.Parallel()
		if _, err := parseHeaders([]string{": value"}); err == nil {
			t.Error("expected error")
		}
	})
}

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

// TestRunFetch tests batched HTTP requests.
func TestRunFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Path", r.URL.Path)
		w.Header().Set("X-Test", r.Header.Get("X-Test"))
		_, _ = io.WriteString(w, r.Method+" "+string(body))
	}))
	t.Cleanup(srv.Close)

	t.Run("responses in argument order", func(t *testing.T) {
		t.Parallel()

		s := newTestSession(t)
		m := newSessionMetrics(s)
		urls := []string{
			srv.URL + "/a",
			"http://127.0.0.1:" + strconv.Itoa(closedPort(t)) + "/",
			srv.URL + "/b",
		}
		opts := fetchOptions{
			Method:  "post",
			Headers: map[string]string{"X-Test": "yes"},
			Body:    []byte("payload"),
			Batch:   3,
		}

		var out bytes.Buffer
		if err := runFetch(context.Background(), s, m, &out, urls, opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected 3 lines, got %d: %q", len(lines), out.String())
		}

		for _, i := range []int{0, 2} {
			var resp session.HTTPResponse
			if err := json.Unmarshal([]byte(lines[i]), &resp); err != nil {
				t.Fatalf("line %d is not a response: %v", i, err)
			}
			if resp.Status != http.StatusOK || resp.Body != "POST payload" {
				t.Errorf("line %d: unexpected response %+v", i, resp)
			}
			if resp.Headers["X-Test"] != "yes" {
				t.Errorf("line %d: header not forwarded: %v", i, resp.Headers)
			}
		}
		if !strings.Contains(lines[0], `"X-Path":"/a"`) {
			t.Errorf("first line is not for /a: %s", lines[0])
		}

		var failed struct {
			URL   string `json:"url"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(lines[1]), &failed); err != nil {
			t.Fatal(err)
		}
		if failed.URL != urls[1] || failed.Error == "" {
			t.Errorf("unexpected error object %+v", failed)
		}

		var text bytes.Buffer
		if err := m.WriteText(&text); err != nil {
			t.Fatal(err)
		}
		for _, want := range []string{
			`torbridge_calls_total{op="http_request",result="ok"} 2`,
			`torbridge_calls_total{op="http_request",result="error"} 1`,
		} {
			if !strings.Contains(text.String(), want) {
				t.Errorf("expected %q in metrics:\n%s", want, text.String())
			}
		}

		if stats := s.Stats(); stats.Circuits != 0 {
			t.Errorf("expected circuit destroyed, got %d", stats.Circuits)
		}
	})

	t.Run("not initialized", func(t *testing.T) {
		t.Parallel()

		s := newTestSession(t)
		if err := s.Disconnect(); err != nil {
			t.Fatal(err)
		}
		err := runFetch(context.Background(), s, nil, io.Discard, []string{srv.URL}, fetchOptions{Method: "GET", Batch: 1})
		if err == nil {
			t.Error("expected error")
		}
	})
}
