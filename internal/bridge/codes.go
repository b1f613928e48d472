package bridge

import (
	"errors"
	"fmt"

	"github.com/nao1215/torbridge/internal/session"
)

// ErrBufferTooSmall is returned when an output string plus its NUL
// terminator does not fit the caller's buffer. Nothing is written.
var ErrBufferTooSmall = fmt.Errorf("%w: output buffer too small", session.ErrInvalidParams)

// Code is the numeric error category reported by LastErrorCode.
// Values are stable; new codes are only ever appended.
type Code int32

// Error codes.
const (
	CodeOK Code = iota
	CodeInvalidParams
	CodeNotInitialized
	CodeNotFound
	CodeConnectionFailed
	CodeHandshakeFailed
	CodeIOFailed
	CodeRuntimeCreation
	CodeUnsupportedMethod
	CodeRequestFailed
	CodeStreamIDCollision
	CodeInternal
	CodeBufferTooSmall
)

var codeNames = map[Code]string{
	CodeOK:                "ok",
	CodeInvalidParams:     "invalid_params",
	CodeNotInitialized:    "not_initialized",
	CodeNotFound:          "not_found",
	CodeConnectionFailed:  "connection_failed",
	CodeHandshakeFailed:   "handshake_failed",
	CodeIOFailed:          "io_failed",
	CodeRuntimeCreation:   "runtime_creation",
	CodeUnsupportedMethod: "unsupported_method",
	CodeRequestFailed:     "request_failed",
	CodeStreamIDCollision: "stream_id_collision",
	CodeInternal:          "internal",
	CodeBufferTooSmall:    "buffer_too_small",
}

// String returns the code's name.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int32(c))
}

// codeTable is checked in order; more specific errors come first.
var codeTable = []struct {
	err  error
	code Code
}{
	{session.ErrInternal, CodeInternal},
	{ErrBufferTooSmall, CodeBufferTooSmall},
	{session.ErrInvalidParams, CodeInvalidParams},
	{session.ErrNotInitialized, CodeNotInitialized},
	{session.ErrNotFound, CodeNotFound},
	{session.ErrStreamIDCollision, CodeStreamIDCollision},
	{session.ErrHandshakeFailed, CodeHandshakeFailed},
	{session.ErrConnectionFailed, CodeConnectionFailed},
	{session.ErrIOFailed, CodeIOFailed},
	{session.ErrRuntimeCreation, CodeRuntimeCreation},
	{session.ErrUnsupportedMethod, CodeUnsupportedMethod},
	{session.ErrRequestFailed, CodeRequestFailed},
}

// CodeOf classifies err. Errors outside the taxonomy are CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}
