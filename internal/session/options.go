package session

import (
	"crypto/x509"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/net/proxy"

	"github.com/nao1215/torbridge/internal/engine"
	"github.com/nao1215/torbridge/internal/journal"
	"github.com/nao1215/torbridge/internal/tor"
)

// Option configures a Session.
type Option func(*Session)

// WithBootstrapper sets how Init obtains the Tor client.
func WithBootstrapper(b tor.Bootstrapper) Option {
	return func(s *Session) {
		s.bootstrapper = b
	}
}

// withBootstrapConfig makes Init bootstrap with cfg. The Logger field is
// replaced by the session's logger.
func withBootstrapConfig(cfg tor.BootstrapConfig) Option {
	return func(s *Session) {
		s.bootstrapConfig = cfg
	}
}

// WithDialTimeout bounds each stream dial, each TLS connect including its
// handshake, and each HTTP request. Non-positive values keep
// tor.DefaultDialTimeout.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// WithClock sets the clock used for stream identifiers and journal times.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		s.clock = c
	}
}

// WithRootCAs replaces the system roots used to verify TLS streams.
// Verification itself cannot be turned off.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(s *Session) {
		s.rootCAs = pool
	}
}

// WithHTTPDialer sets the dialer behind HTTPRequest. By default requests go
// through a SOCKS5 dialer for the HTTP proxy address.
func WithHTTPDialer(d proxy.Dialer) Option {
	return func(s *Session) {
		s.httpDialer = d
	}
}

// WithHTTPProxyAddress sets the SOCKS endpoint used by HTTPRequest.
func WithHTTPProxyAddress(addr string) Option {
	return func(s *Session) {
		s.httpProxyAddress = addr
	}
}

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJournal records lifecycle events to j. The session does not close j.
func WithJournal(j *journal.Journal) Option {
	return func(s *Session) {
		s.journal = j
	}
}

// WithEngine makes the session use e instead of the process-wide engine.
func WithEngine(e *engine.Engine) Option {
	return func(s *Session) {
		s.acquire = func() (*engine.Engine, error) { return e, nil }
	}
}

// WithEngineOptions passes options to engine.Acquire when the session is
// the first user of the process-wide engine.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Session) {
		s.acquire = func() (*engine.Engine, error) { return engine.Acquire(opts...) }
	}
}

// WithClientConfigPath sets the client configuration file echoed by Init
// when it is called without a path.
func WithClientConfigPath(path string) Option {
	return func(s *Session) {
		s.defaultClientConfig = path
	}
}
