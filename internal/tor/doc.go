// Package tor provides the anonymity-network collaborator that torbridge's
// registries sit on top of.
//
// This package wraps the tornago library and a SOCKS5 dialer. Bootstrap
// yields a Network: either an embedded Tor daemon started through tornago,
// or an already running Tor whose SOCKS port has been verified. Everything
// above this package only sees the Network interface, so any client able to
// dial "host:port" through the anonymity network can be plugged in.
//
// ValidateTarget checks a host and port before anything is dialed,
// including full checksum validation of v3 onion addresses.
package tor
