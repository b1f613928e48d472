package bridge

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/nao1215/torbridge/internal/session"
)

// cString decodes a NUL-terminated UTF-8 string. name is used in errors.
func cString(b []byte, name string) (string, error) {
	if b == nil {
		return "", fmt.Errorf("%w: %s is null", session.ErrInvalidParams, name)
	}
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		return "", fmt.Errorf("%w: %s is not NUL-terminated", session.ErrInvalidParams, name)
	}
	if !utf8.Valid(b[:end]) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8", session.ErrInvalidParams, name)
	}
	return string(b[:end]), nil
}

// optionalCString is cString with null meaning the empty string.
func optionalCString(b []byte, name string) (string, error) {
	if b == nil {
		return "", nil
	}
	return cString(b, name)
}

// writeCString copies s and a NUL terminator into out, or writes nothing
// when they do not fit.
func writeCString(out []byte, s string) error {
	if out == nil {
		return fmt.Errorf("%w: output buffer is null", session.ErrInvalidParams)
	}
	if len(s)+1 > len(out) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, len(s)+1, len(out))
	}
	copy(out, s)
	out[len(s)] = 0
	return nil
}
