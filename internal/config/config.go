package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultSocksAddress is the standard Tor SOCKS5 proxy address.
	// 127.0.0.1 avoids DNS resolution and IPv6 surprises with localhost.
	DefaultSocksAddress = "127.0.0.1:9050"

	// DefaultHTTPProxyAddress is where the convenience HTTP call expects the
	// Tor client's SOCKS port. It is fixed independently of SocksAddress.
	DefaultHTTPProxyAddress = "127.0.0.1:9050"

	// DefaultDialTimeout is generous because Tor adds several relay hops.
	DefaultDialTimeout = 120 * time.Second

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "torbridge"

	// DefaultClientConfigFile is echoed by Init when no path is given.
	DefaultClientConfigFile = "client.toml"
)

// Config holds torbridge's settings.
// It is populated from the settings file and CLI flags and passed to the
// session explicitly rather than read from globals.
type Config struct {
	// SocksAddress is the external Tor SOCKS5 proxy in "host:port" format.
	// Used when UseEmbeddedTor is false.
	SocksAddress string `yaml:"socksAddress,omitempty"`

	// UseEmbeddedTor starts a private Tor daemon through tornago on Init.
	UseEmbeddedTor bool `yaml:"embeddedTor,omitempty"`

	// TorStartupTimeout bounds the embedded daemon's bootstrap.
	TorStartupTimeout time.Duration `yaml:"torStartupTimeout,omitempty"`

	// DialTimeout bounds each stream dial, each TLS connect including its
	// handshake, and each HTTP request.
	DialTimeout time.Duration `yaml:"dialTimeout,omitempty"`

	// HTTPProxyAddress is the SOCKS endpoint used by the HTTP convenience call.
	HTTPProxyAddress string `yaml:"httpProxyAddress,omitempty"`

	// Workers sizes the shared engine. Zero uses the engine default.
	Workers int `yaml:"workers,omitempty"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose,omitempty"`

	// EnableJournal records handle lifecycle events to SQLite.
	EnableJournal bool `yaml:"journal,omitempty"`

	// JournalDir is the directory holding the journal database.
	JournalDir string `yaml:"journalDir,omitempty"`

	// ClientConfigPath is echoed on Init when the caller passes no path.
	ClientConfigPath string `yaml:"clientConfig,omitempty"`
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		SocksAddress:      DefaultSocksAddress,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DialTimeout:       DefaultDialTimeout,
		HTTPProxyAddress:  DefaultHTTPProxyAddress,
		JournalDir:        XDGDataDir(),
		ClientConfigPath:  DefaultClientConfigFile,
	}
}

// XDGDataDir returns the XDG data directory for torbridge.
// On Linux: ~/.local/share/torbridge
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for torbridge.
// On Linux: ~/.config/torbridge
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if !c.UseEmbeddedTor && c.SocksAddress == "" {
		return ErrInvalidSocksAddress
	}

	if c.DialTimeout <= 0 || c.TorStartupTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Workers < 0 {
		return ErrInvalidWorkers
	}

	if c.EnableJournal && c.JournalDir == "" {
		return ErrNoJournalDir
	}

	return nil
}
