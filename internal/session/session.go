package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/net/proxy"

	"github.com/nao1215/torbridge/internal/config"
	"github.com/nao1215/torbridge/internal/engine"
	"github.com/nao1215/torbridge/internal/journal"
	"github.com/nao1215/torbridge/internal/log"
	"github.com/nao1215/torbridge/internal/registry"
	"github.com/nao1215/torbridge/internal/tor"
)

// Session is the owner of one Tor client and every handle derived from it.
// All methods are safe for concurrent use.
type Session struct {
	id     string
	logger *slog.Logger
	clock  clock.Clock

	acquire         func() (*engine.Engine, error)
	bootstrapper    tor.Bootstrapper
	bootstrapConfig tor.BootstrapConfig
	dialTimeout     time.Duration

	defaultClientConfig string

	// mu guards client. It is never held across a blocking call.
	mu     sync.RWMutex
	client *clientRef

	circuits   *registry.Map[*circuit]
	streams    *registry.Map[*plainStream]
	tlsStreams *registry.Owned[*tlsStream]

	closedStreams    *registry.Tombstones
	closedTLSStreams *registry.Tombstones

	rootCAs   *x509.CertPool
	tlsOnce   sync.Once
	tlsConfig *tls.Config

	httpDialer       proxy.Dialer
	httpProxyAddress string

	journal *journal.Journal
}

// New creates a Session with no client. Without WithBootstrapper, Init
// connects to an external Tor at tor.DefaultSocksAddress.
func New(opts ...Option) *Session {
	s := &Session{
		id:                  uuid.NewString(),
		logger:              log.Discard(),
		clock:               clock.New(),
		acquire:             func() (*engine.Engine, error) { return engine.Acquire() },
		defaultClientConfig: config.DefaultClientConfigFile,
		circuits:            registry.NewMap[*circuit](),
		streams:             registry.NewMap[*plainStream](),
		tlsStreams:          registry.NewOwned[*tlsStream](),
		closedStreams:       registry.NewTombstones(registry.DefaultTombstones),
		closedTLSStreams:    registry.NewTombstones(registry.DefaultTombstones),
		httpProxyAddress:    config.DefaultHTTPProxyAddress,
		bootstrapConfig:     tor.BootstrapConfig{SocksAddress: tor.DefaultSocksAddress},
		dialTimeout:         tor.DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	if s.bootstrapper == nil {
		bc := s.bootstrapConfig
		bc.Logger = s.logger
		s.bootstrapper = tor.NewBootstrapper(bc)
	}
	return s
}

// NewFromConfig creates a Session configured from cfg.
func NewFromConfig(cfg *config.Config, opts ...Option) *Session {
	base := []Option{
		withBootstrapConfig(tor.BootstrapConfig{
			SocksAddress:   cfg.SocksAddress,
			UseEmbedded:    cfg.UseEmbeddedTor,
			StartupTimeout: cfg.TorStartupTimeout,
			DialTimeout:    cfg.DialTimeout,
		}),
		WithDialTimeout(cfg.DialTimeout),
		WithHTTPProxyAddress(cfg.HTTPProxyAddress),
		WithClientConfigPath(cfg.ClientConfigPath),
	}
	if cfg.Workers > 0 {
		base = append(base, WithEngineOptions(engine.WithWorkers(cfg.Workers)))
	}
	return New(append(base, opts...)...)
}

// ID returns the session's unique identifier, as written to the journal.
func (s *Session) ID() string {
	return s.id
}

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Engine returns the engine the session runs on, creating it if needed.
func (s *Session) Engine() (*engine.Engine, error) {
	e, err := s.acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntimeCreation, err)
	}
	return e, nil
}

// Init bootstraps a Tor client and stores it as the session's client.
//
// The client configuration file at configPath is read and logged for
// diagnostics only; it does not change how the client is bootstrapped. A
// missing or malformed file is not an error. With an empty path the default
// client.toml is echoed when it exists.
//
// Calling Init again replaces the client. Circuits created before keep the
// client they were created with.
func (s *Session) Init(ctx context.Context, configPath string) error {
	eng, err := s.Engine()
	if err != nil {
		return err
	}

	s.echoClientConfig(configPath)

	s.logger.Debug("bootstrapping Tor client")
	network, err := engine.RunLimited(ctx, eng, s.bootstrapper.Bootstrap)
	if err != nil {
		return runError(ErrConnectionFailed, "bootstrap", err)
	}

	s.mu.Lock()
	old := s.client
	s.client = newClientRef(network)
	s.mu.Unlock()

	if old != nil {
		if err := old.release(); err != nil {
			s.logger.Warn("failed to shut down replaced Tor client", "error", err)
		}
	}

	s.record(ctx, journal.Event{Kind: journal.KindInit, Detail: configPath})
	s.logger.Info("Tor client initialized", "replaced", old != nil)
	return nil
}

func (s *Session) echoClientConfig(path string) {
	if path == "" {
		if s.defaultClientConfig == "" {
			return
		}
		if _, err := os.Stat(s.defaultClientConfig); err != nil {
			return
		}
		path = s.defaultClientConfig
	}
	config.EchoClientConfig(s.logger, path)
}

// Connect reports whether a client is available. Bootstrapping happens in
// Init, so there is nothing left to do beyond the check.
func (s *Session) Connect() error {
	if !s.IsConnected() {
		return ErrNotInitialized
	}
	return nil
}

// IsConnected reports whether a client is stored. It does not probe the network.
func (s *Session) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil
}

// Disconnect drops every circuit, then the client. Streams stay open.
// It always succeeds; failures shutting the network down are only logged.
func (s *Session) Disconnect() error {
	var errs error
	for _, c := range s.circuits.Drain() {
		errs = multierr.Append(errs, c.client.release())
	}

	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	if client != nil {
		errs = multierr.Append(errs, client.release())
	}
	if errs != nil {
		s.logger.Warn("errors while disconnecting", "error", errs)
	}

	s.record(context.Background(), journal.Event{Kind: journal.KindDisconnect})
	return nil
}

// Close disconnects and closes every stream still open.
// Unlike Disconnect it reports teardown failures.
func (s *Session) Close() error {
	var errs error

	for id, st := range s.streams.Drain() {
		s.closedStreams.Bury(id)
		errs = multierr.Append(errs, st.close())
		s.record(context.Background(), journal.Event{Kind: journal.KindStreamClose, Handle: id})
	}
	for _, st := range s.tlsStreams.Drain() {
		s.closedTLSStreams.Bury(tlsKey(st.owner, st.id))
		errs = multierr.Append(errs, st.close())
		s.record(context.Background(), journal.Event{Kind: journal.KindTLSClose, Handle: st.id, Owner: int64(st.owner)})
	}
	for _, c := range s.circuits.Drain() {
		errs = multierr.Append(errs, c.client.release())
	}

	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()
	if client != nil {
		errs = multierr.Append(errs, client.release())
	}

	s.record(context.Background(), journal.Event{Kind: journal.KindDisconnect})
	return errs
}

// Stats is a point-in-time count of the session's handles.
type Stats struct {
	Circuits   int
	Streams    int
	TLSStreams int
	Connected  bool
}

// Stats returns the current handle counts.
func (s *Session) Stats() Stats {
	return Stats{
		Circuits:   s.circuits.Len(),
		Streams:    s.streams.Len(),
		TLSStreams: s.tlsStreams.Len(),
		Connected:  s.IsConnected(),
	}
}

// record writes ev to the journal, if any. Failures are logged and never
// fail the operation that produced the event.
func (s *Session) record(ctx context.Context, ev journal.Event) {
	if s.journal == nil {
		return
	}
	ev.SessionID = s.id
	ev.Time = s.clock.Now()
	if err := s.journal.Record(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn("failed to record journal event", "kind", ev.Kind, "handle", ev.Handle, "error", err)
	}
}
