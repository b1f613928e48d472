package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidSocksAddress is returned when the SOCKS address is empty
	// while an external Tor is selected.
	ErrInvalidSocksAddress = errors.New("invalid socks address: required when the embedded Tor daemon is disabled")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidWorkers is returned when the engine worker count is negative.
	// Zero means the engine default.
	ErrInvalidWorkers = errors.New("invalid workers: must be non-negative")

	// ErrNoJournalDir is returned when the journal is enabled without a directory.
	ErrNoJournalDir = errors.New("journal enabled but no journal directory set")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
