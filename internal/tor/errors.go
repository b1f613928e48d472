package tor

import "errors"

// Errors returned while locating or dialing through a Tor SOCKS proxy.
var (
	// ErrProxyNotTor means something answered at the proxy address but it
	// does not speak SOCKS5 the way Tor does.
	ErrProxyNotTor = errors.New("proxy is not a Tor SOCKS5 proxy")

	// ErrProxyCannotConnect means nothing accepted a TCP connection at the
	// proxy address. Tor is usually not running.
	ErrProxyCannotConnect = errors.New("cannot connect to Tor proxy")

	// ErrProxyTimeout means the proxy accepted but did not answer in time.
	ErrProxyTimeout = errors.New("timeout connecting to Tor proxy")

	// ErrInvalidProxyAddress means the proxy address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrEmbeddedNotRunning means a client was requested from an embedded
	// daemon that was never started or already stopped.
	ErrEmbeddedNotRunning = errors.New("embedded Tor daemon is not running")

	// ErrInvalidTarget means a dial target host or port is malformed.
	ErrInvalidTarget = errors.New("invalid target")
)

// ProxyStatus is the outcome of Client.CheckConnection.
type ProxyStatus int

// Proxy check outcomes.
const (
	ProxyStatusOK ProxyStatus = iota
	ProxyStatusWrongType
	ProxyStatusCannotConnect
	ProxyStatusTimeout
)

var proxyStatuses = map[ProxyStatus]struct {
	text string
	err  error
}{
	ProxyStatusOK:            {text: "OK"},
	ProxyStatusWrongType:     {text: "wrong type (not Tor)", err: ErrProxyNotTor},
	ProxyStatusCannotConnect: {text: "cannot connect", err: ErrProxyCannotConnect},
	ProxyStatusTimeout:       {text: "timeout", err: ErrProxyTimeout},
}

// String returns a human-readable description of the status.
func (s ProxyStatus) String() string {
	if st, ok := proxyStatuses[s]; ok {
		return st.text
	}
	return "unknown"
}

// Error returns the sentinel error for s, or nil for ProxyStatusOK.
func (s ProxyStatus) Error() error {
	if st, ok := proxyStatuses[s]; ok {
		return st.err
	}
	return errors.New("unknown proxy status")
}
