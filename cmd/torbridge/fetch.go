package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/torbridge/internal/metrics"
	"github.com/nao1215/torbridge/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// fetchCircuit is the circuit fetch requests are issued on.
const fetchCircuit = "fetch"

// fetchOptions holds the request shape shared by every URL.
type fetchOptions struct {
	Method  string
	Headers map[string]string
	Body    []byte
	Batch   int
}

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch URL...",
		Short: "Perform HTTP requests through the Tor SOCKS proxy",
		Long: `Fetch performs one HTTP request per URL through the Tor SOCKS proxy and
prints each response as a JSON object with status, headers and body.

Examples:
  # Fetch a page
  torbridge fetch https://check.torproject.org/

  # Fetch several pages, four at a time
  torbridge fetch --batch 4 http://a.onion/ http://b.onion/ http://c.onion/

  # POST JSON
  torbridge fetch -X POST -H 'Content-Type: application/json' -d '{"k":1}' http://example.onion/api`,
		Args: cobra.MinimumNArgs(1),
		RunE: runFetchCmd,
	}

	addTorFlags(cmd)
	cmd.Flags().StringP("method", "X", "GET", "HTTP method")
	cmd.Flags().StringArrayP("header", "H", nil, "Request header as 'Name: value' (repeatable)")
	cmd.Flags().StringP("data", "d", "", "Request body")
	cmd.Flags().IntP("batch", "b", 1, "Number of concurrent requests")
	cmd.Flags().Bool("metrics", false, "Print call metrics after the responses")

	return cmd
}

func runFetchCmd(cmd *cobra.Command, args []string) error {
	opts, err := fetchOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	showMetrics, err := cmd.Flags().GetBool("metrics")
	if err != nil {
		return err
	}

	s, cleanup, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext(cmd.Context(), s.Logger(), nil)
	defer cancel()

	if err := s.Init(ctx, ""); err != nil {
		return err
	}

	var m *metrics.Metrics
	if showMetrics {
		m = newSessionMetrics(s)
	}
	if err := runFetch(ctx, s, m, cmd.OutOrStdout(), args, opts); err != nil {
		return err
	}
	if m != nil {
		return m.WriteText(cmd.OutOrStdout())
	}
	return nil
}

func newSessionMetrics(s *session.Session) *metrics.Metrics {
	return metrics.New(s, func() int64 {
		e, err := s.Engine()
		if err != nil {
			return 0
		}
		return e.InFlight()
	})
}

func fetchOptionsFromFlags(cmd *cobra.Command) (fetchOptions, error) {
	var opts fetchOptions
	var err error

	if opts.Method, err = cmd.Flags().GetString("method"); err != nil {
		return opts, err
	}
	if opts.Batch, err = cmd.Flags().GetInt("batch"); err != nil {
		return opts, err
	}
	if opts.Batch < 1 {
		return opts, fmt.Errorf("batch must be at least 1, got %d", opts.Batch)
	}

	data, err := cmd.Flags().GetString("data")
	if err != nil {
		return opts, err
	}
	if data != "" {
		opts.Body = []byte(data)
	}

	rawHeaders, err := cmd.Flags().GetStringArray("header")
	if err != nil {
		return opts, err
	}
	if opts.Headers, err = parseHeaders(rawHeaders); err != nil {
		return opts, err
	}
	return opts, nil
}

// parseHeaders turns "Name: value" strings into a map.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (want 'Name: value')", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

// runFetch requests every URL on an initialized session and prints the
// responses in argument order. A failed request prints an error object
// instead; runFetch only fails on setup or output errors.
func runFetch(ctx context.Context, s *session.Session, m *metrics.Metrics, out io.Writer, urls []string, opts fetchOptions) error {
	headersJSON := ""
	if len(opts.Headers) > 0 {
		b, err := json.Marshal(opts.Headers)
		if err != nil {
			return fmt.Errorf("failed to encode headers: %w", err)
		}
		headersJSON = string(b)
	}

	if err := s.CreateCircuit(fetchCircuit); err != nil {
		return err
	}
	defer func() {
		if err := s.DestroyCircuit(fetchCircuit); err != nil {
			s.Logger().Warn("failed to destroy circuit", "circuit", fetchCircuit, "error", err)
		}
	}()

	results := make([]string, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Batch)
	for i, u := range urls {
		g.Go(func() error {
			start := time.Now()
			resp, err := s.HTTPRequest(ctx, fetchCircuit, u, opts.Method, headersJSON, opts.Body)
			if m != nil {
				m.Observe("http_request", start, err)
			}
			if err != nil {
				s.Logger().Warn("request failed", "url", u, "error", err)
				results[i] = fetchError(u, err)
				return nil
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, r := range results {
		if _, err := fmt.Fprintln(out, r); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func fetchError(url string, err error) string {
	b, _ := json.Marshal(struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	}{URL: url, Error: err.Error()})
	return string(b)
}
