package tor

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
)

// ValidateTarget checks a dial target and returns it as "host:port".
//
// Onion hosts must be checksummed v3 addresses. IP literals are accepted as
// is. Any other host must be a valid IDNA hostname and is returned in its
// ASCII form. Nothing is resolved or dialed.
func ValidateTarget(host string, port int) (string, error) {
	if port < 1 || port > 65535 {
		return "", fmt.Errorf("%w: port %d out of range", ErrInvalidTarget, port)
	}

	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrInvalidTarget)
	}

	normalized, err := NormalizeHost(host)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(normalized, strconv.Itoa(port)), nil
}

// NormalizeHost validates host and returns the form used on the wire and
// for TLS server name checks.
func NormalizeHost(host string) (string, error) {
	if addr, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		return addr.String(), nil
	}

	lower := strings.ToLower(host)
	if strings.HasSuffix(lower, OnionSuffix) {
		if IsValidV3Address(lower) {
			return lower, nil
		}
		if IsV2Address(lower) {
			return "", ErrV2AddressDeprecated
		}
		return "", ErrInvalidOnionAddress
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: host %q: %v", ErrInvalidTarget, host, err)
	}
	return ascii, nil
}
