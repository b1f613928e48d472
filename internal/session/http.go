package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nao1215/torbridge/internal/engine"
	"github.com/nao1215/torbridge/internal/tor"
)

// supportedMethods are the verbs HTTPRequest accepts.
var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
	http.MethodHead:   true,
	http.MethodPatch:  true,
}

// HTTPResponse is the JSON envelope returned by HTTPRequest.
type HTTPResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// HTTPRequest performs one HTTP request through the Tor SOCKS proxy and
// returns the response as a JSON HTTPResponse.
//
// circuitID only has to name an existing circuit; the request itself goes
// through the SOCKS endpoint the Tor client exposes on the HTTP proxy address.
// headersJSON is a flat JSON object of header names to values, or empty.
// The request runs on a dedicated engine created for this call alone.
func (s *Session) HTTPRequest(ctx context.Context, circuitID, rawURL, method, headersJSON string, body []byte) (string, error) {
	if !s.circuits.Has(circuitID) {
		return "", fmt.Errorf("%w: %q", ErrCircuitNotFound, circuitID)
	}

	method = strings.ToUpper(method)
	if !supportedMethods[method] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	var headers map[string]string
	if headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
			return "", fmt.Errorf("%w: headers must be a JSON object of strings: %w", ErrInvalidParams, err)
		}
	}

	var reqBody io.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client, err := s.httpClient()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}
	defer client.CloseIdleConnections()

	eng, err := engine.New(engine.WithWorkers(1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRuntimeCreation, err)
	}
	defer eng.Close() //nolint:errcheck // Close never fails

	s.logger.Debug("HTTP request", "circuit", circuitID, "method", method, "url", rawURL, "headers", headers)

	resp, err := engine.RunLimited(ctx, eng, func(context.Context) (*HTTPResponse, error) {
		return doRequest(client, req)
	})
	if err != nil {
		return "", runError(ErrRequestFailed, method+" "+rawURL, err)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("%w: encode response: %w", ErrInternal, err)
	}
	return string(out), nil
}

func doRequest(client *http.Client, req *http.Request) (*HTTPResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, vals := range resp.Header {
		headers[k] = strings.Join(vals, ", ")
	}
	return &HTTPResponse{Status: resp.StatusCode, Headers: headers, Body: string(body)}, nil
}

func (s *Session) httpClient() (*http.Client, error) {
	var (
		c   *tor.Client
		err error
	)
	if s.httpDialer != nil {
		c = tor.NewClientWithDialer(s.httpProxyAddress, s.httpDialer, s.dialTimeout)
	} else {
		c, err = tor.NewClient(s.httpProxyAddress, s.dialTimeout)
		if err != nil {
			return nil, err
		}
	}
	return c.NewHTTPClient(), nil
}
