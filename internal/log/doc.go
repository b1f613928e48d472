// Package log builds the slog loggers used across torbridge.
//
// Every logger wraps its output handler in a SecureHandler, which masks
// credentials and keeps stream payloads out of the log:
//   - attributes named like a credential (authorization, cookie, token...)
//     are replaced by MaskValue
//   - string values that look like a bearer token, JWT or private key are
//     masked regardless of their key
//   - []byte values are replaced by their length, so read and write buffers
//     never reach the log
//   - header maps are sanitized entry by entry
//
// Usage:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("stream write", "stream", id, "data", buf) // data=<512 bytes>
package log
