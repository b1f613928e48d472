package tor

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// DefaultSocksAddress is the standard Tor SOCKS5 proxy address.
const DefaultSocksAddress = "127.0.0.1:9050"

// DefaultDialTimeout bounds HTTP clients built on a bootstrapped network.
const DefaultDialTimeout = 2 * time.Minute

// Network is a bootstrapped anonymity-network client: something that can
// open a byte stream to "host:port" through the network and be shut down.
type Network interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
	Close() error
}

// Bootstrapper brings up a Network. It blocks until the network is usable.
type Bootstrapper interface {
	Bootstrap(ctx context.Context) (Network, error)
}

// BootstrapFunc adapts a function to the Bootstrapper interface.
type BootstrapFunc func(ctx context.Context) (Network, error)

// Bootstrap calls f.
func (f BootstrapFunc) Bootstrap(ctx context.Context) (Network, error) {
	return f(ctx)
}

// BootstrapConfig selects how Bootstrap obtains a Tor client.
type BootstrapConfig struct {
	// SocksAddress is the external Tor SOCKS5 proxy, used when UseEmbedded is false.
	SocksAddress string

	// UseEmbedded starts a private Tor daemon through tornago.
	UseEmbedded bool

	// StartupTimeout bounds the embedded daemon's bootstrap.
	StartupTimeout time.Duration

	// DialTimeout is the timeout for HTTP clients built on the network.
	DialTimeout time.Duration

	// Logger receives bootstrap progress. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewBootstrapper returns a Bootstrapper for cfg.
func NewBootstrapper(cfg BootstrapConfig) Bootstrapper {
	return BootstrapFunc(func(ctx context.Context) (Network, error) {
		return Bootstrap(ctx, cfg)
	})
}

// embeddedNetwork is a Client whose Close also stops the daemon behind it.
type embeddedNetwork struct {
	*Client
	daemon *EmbeddedTor
}

// Close stops the embedded daemon.
func (n *embeddedNetwork) Close() error {
	return n.daemon.Stop()
}

// Bootstrap returns a usable Network.
//
// With UseEmbedded it launches a Tor daemon and waits for it to bootstrap.
// Otherwise it verifies that SocksAddress speaks Tor's SOCKS5 dialect.
func Bootstrap(ctx context.Context, cfg BootstrapConfig) (Network, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = DefaultDialTimeout
	}

	if cfg.UseEmbedded {
		startup := cfg.StartupTimeout
		if startup <= 0 {
			startup = DefaultStartupTimeout
		}
		logger.Info("bootstrapping embedded Tor daemon", "timeout", startup)

		daemon := NewEmbeddedTor(WithStartupTimeout(startup))
		if err := daemon.Start(ctx); err != nil {
			return nil, err
		}
		client, err := daemon.NewClient(dialTimeout)
		if err != nil {
			_ = daemon.Stop() //nolint:errcheck // Best effort cleanup
			return nil, err
		}
		logger.Info("embedded Tor daemon bootstrapped",
			"socks", daemon.SocksAddr(),
			"control", daemon.ControlAddr(),
		)
		return &embeddedNetwork{Client: client, daemon: daemon}, nil
	}

	addr := cfg.SocksAddress
	if addr == "" {
		addr = DefaultSocksAddress
	}
	client, err := NewClient(addr, dialTimeout)
	if err != nil {
		return nil, err
	}

	logger.Debug("checking Tor proxy", "address", addr)
	status := client.CheckConnection(ctx)
	if status != ProxyStatusOK {
		return nil, fmt.Errorf("tor proxy check failed at %s: %s: %w", addr, status, status.Error())
	}
	logger.Info("Tor proxy connection verified", "address", addr)

	return client, nil
}
