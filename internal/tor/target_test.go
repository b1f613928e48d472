package tor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// validOnion builds a checksummed v3 address from a fixed key.
func validOnion(t *testing.T) string {
	t.Helper()

	addr, err := ComputeV3AddressFromPublicKey(bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("ComputeV3AddressFromPublicKey() error: %v", err)
	}
	return addr
}

// TestIsValidV3Address tests v3 checksum validation.
func TestIsValidV3Address(t *testing.T) {
	t.Parallel()

	addr := validOnion(t)

	if !IsValidV3Address(addr) {
		t.Errorf("IsValidV3Address(%q) = false, expected true", addr)
	}
	if !IsValidV3Address(strings.ToUpper(addr)) {
		t.Error("expected uppercase address to be accepted")
	}

	// Flip one character to break the checksum.
	broken := []byte(addr)
	if broken[0] == 'a' {
		broken[0] = 'b'
	} else {
		broken[0] = 'a'
	}
	if IsValidV3Address(string(broken)) {
		t.Error("expected corrupted address to be rejected")
	}

	if IsValidV3Address("short.onion") {
		t.Error("expected short address to be rejected")
	}
}

// TestComputeV3AddressFromPublicKey tests key length checks.
func TestComputeV3AddressFromPublicKey(t *testing.T) {
	t.Parallel()

	addr := validOnion(t)
	if len(addr) != OnionV3Length+len(OnionSuffix) {
		t.Errorf("address length = %d", len(addr))
	}

	if _, err := ComputeV3AddressFromPublicKey([]byte{1, 2, 3}); !errors.Is(err, ErrInvalidOnionAddress) {
		t.Errorf("expected ErrInvalidOnionAddress, got %v", err)
	}
}

// TestValidateTarget tests target validation.
func TestValidateTarget(t *testing.T) {
	t.Parallel()

	onion := validOnion(t)

	testCases := []struct {
		name     string
		host     string
		port     int
		expected string
		wantErr  error
	}{
		{"hostname", "example.com", 443, "example.com:443", nil},
		{"hostname is lowercased", "Example.COM", 80, "example.com:80", nil},
		{"IPv4 literal", "127.0.0.1", 8080, "127.0.0.1:8080", nil},
		{"IPv6 literal", "::1", 22, "[::1]:22", nil},
		{"bracketed IPv6 literal", "[::1]", 22, "[::1]:22", nil},
		{"v3 onion", onion, 80, onion + ":80", nil},
		{"v2 onion", "abcdefghijklmnop.onion", 80, "", ErrV2AddressDeprecated},
		{"garbage onion", "not-an-onion.onion", 80, "", ErrInvalidOnionAddress},
		{"empty host", "", 80, "", ErrInvalidTarget},
		{"space in host", "bad host", 80, "", ErrInvalidTarget},
		{"port zero", "example.com", 0, "", ErrInvalidTarget},
		{"negative port", "example.com", -1, "", ErrInvalidTarget},
		{"port too large", "example.com", 65536, "", ErrInvalidTarget},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ValidateTarget(tc.host, tc.port)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("ValidateTarget(%q, %d) error = %v, expected %v", tc.host, tc.port, err, tc.wantErr)
				}
				if !errors.Is(err, ErrInvalidTarget) {
					t.Errorf("every validation error should be ErrInvalidTarget, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expected {
				t.Errorf("ValidateTarget(%q, %d) = %q, expected %q", tc.host, tc.port, got, tc.expected)
			}
		})
	}
}
