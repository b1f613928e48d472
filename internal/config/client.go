package config

import (
	"log/slog"
	"os"
	"slices"

	"github.com/BurntSushi/toml"
)

// ClientConfigInfo describes what EchoClientConfig found.
type ClientConfigInfo struct {
	// Path is the file that was examined.
	Path string

	// Found is true when the file exists and could be read.
	Found bool

	// Valid is true when the content parsed as TOML.
	Valid bool

	// Keys lists the top-level TOML keys, sorted.
	Keys []string
}

// EchoClientConfig reads the Tor client configuration file at path and logs
// what it contains. It never fails: a missing, unreadable or malformed file
// is logged and the client keeps its default configuration.
//
// The file does not parametrize the bootstrapped client. It is read for
// diagnostics only.
func EchoClientConfig(logger *slog.Logger, path string) ClientConfigInfo {
	if logger == nil {
		logger = slog.Default()
	}
	info := ClientConfigInfo{Path: path}

	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("client configuration file not found, using defaults", "path", path)
		} else {
			logger.Warn("failed to read client configuration file, using defaults", "path", path, "error", err)
		}
		return info
	}
	info.Found = true

	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		logger.Warn("malformed client configuration file, using defaults", "path", path, "error", err)
		return info
	}
	info.Valid = true

	for k := range doc {
		info.Keys = append(info.Keys, k)
	}
	slices.Sort(info.Keys)

	logger.Info("client configuration file found (for reference only)", "path", path, "keys", info.Keys)
	logger.Debug("client configuration file content", "path", path, "content", string(data))

	return info
}
