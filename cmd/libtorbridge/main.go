// Command libtorbridge builds the torbridge C library.
//
//	go build -buildmode=c-shared -o libtorbridge.so ./cmd/libtorbridge
//
// Every function blocks the calling thread until the operation completes and
// returns 1 on success, 0 on failure, except torbridge_tls_read which returns
// a byte count or -1. torbridge_last_error describes the calling thread's
// last failure. The declarations are in include/torbridge.h.
package main

/*
#include <stdint.h>
#include <string.h>
*/
import "C"

import (
	"unsafe"

	"github.com/nao1215/torbridge/internal/bridge"
)

func main() {}

// cBytes returns the NUL-terminated string at p including its terminator,
// or nil for a null pointer.
func cBytes(p *C.char) []byte {
	if p == nil {
		return nil
	}
	n := int(C.strlen(p)) + 1
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), n)
}

// outBuf returns the caller's output buffer, or nil for a null pointer or a
// negative capacity.
func outBuf(p *C.char, capacity C.int32_t) []byte {
	if p == nil || capacity < 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(capacity))
}

// dataBuf returns n bytes at p, or nil for a null pointer or negative n.
func dataBuf(p *C.uint8_t, n C.int32_t) []byte {
	if p == nil || n < 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n))
}

//export torbridge_init
func torbridge_init() C.int32_t {
	return C.int32_t(bridge.Default().Init())
}

//export torbridge_init_with_config
func torbridge_init_with_config(configPath *C.char) C.int32_t {
	return C.int32_t(bridge.Default().InitWithConfig(cBytes(configPath)))
}

//export torbridge_connect
func torbridge_connect() C.int32_t {
	return C.int32_t(bridge.Default().Connect())
}

//export torbridge_disconnect
func torbridge_disconnect() C.int32_t {
	return C.int32_t(bridge.Default().Disconnect())
}

//export torbridge_is_connected
func torbridge_is_connected() C.int32_t {
	return C.int32_t(bridge.Default().IsConnected())
}

//export torbridge_create_circuit
func torbridge_create_circuit(circuitID *C.char) C.int32_t {
	return C.int32_t(bridge.Default().CreateCircuit(cBytes(circuitID)))
}

//export torbridge_destroy_circuit
func torbridge_destroy_circuit(circuitID *C.char) C.int32_t {
	return C.int32_t(bridge.Default().DestroyCircuit(cBytes(circuitID)))
}

//export torbridge_connect_stream
func torbridge_connect_stream(circuitID, host *C.char, port C.int32_t, streamIDOut *C.char, capacity C.int32_t) C.int32_t {
	return C.int32_t(bridge.Default().ConnectStream(
		cBytes(circuitID), cBytes(host), int32(port), outBuf(streamIDOut, capacity)))
}

//export torbridge_write_stream
func torbridge_write_stream(streamID *C.char, data *C.uint8_t, length C.int32_t) C.int32_t {
	return C.int32_t(bridge.Default().WriteStream(cBytes(streamID), dataBuf(data, length)))
}

//export torbridge_flush_stream
func torbridge_flush_stream(streamID *C.char) C.int32_t {
	return C.int32_t(bridge.Default().FlushStream(cBytes(streamID)))
}

//export torbridge_read_stream
func torbridge_read_stream(streamID *C.char, buf *C.uint8_t, capacity C.int32_t, bytesRead *C.int32_t) C.int32_t {
	return C.int32_t(bridge.Default().ReadStream(
		cBytes(streamID), dataBuf(buf, capacity), (*int32)(unsafe.Pointer(bytesRead))))
}

//export torbridge_close_stream
func torbridge_close_stream(streamID *C.char) C.int32_t {
	return C.int32_t(bridge.Default().CloseStream(cBytes(streamID)))
}

//export torbridge_http_request
func torbridge_http_request(circuitID, url, method, headersJSON, body *C.char, out *C.char, capacity C.int32_t) C.int32_t {
	return C.int32_t(bridge.Default().HTTPRequest(
		cBytes(circuitID), cBytes(url), cBytes(method), cBytes(headersJSON), cBytes(body),
		outBuf(out, capacity)))
}

//export torbridge_connect_tls_stream
func torbridge_connect_tls_stream(circuitID, host *C.char, port C.int32_t, streamID *C.char) C.int32_t {
	return C.int32_t(bridge.Default().ConnectTLSStream(
		cBytes(circuitID), cBytes(host), int32(port), cBytes(streamID)))
}

//export torbridge_tls_write
func torbridge_tls_write(streamID *C.char, data *C.uint8_t, length C.int32_t) C.int32_t {
	return C.int32_t(bridge.Default().TLSWrite(cBytes(streamID), dataBuf(data, length)))
}

//export torbridge_flush_tls_stream
func torbridge_flush_tls_stream(streamID *C.char) C.int32_t {
	return C.int32_t(bridge.Default().FlushTLSStream(cBytes(streamID)))
}

//export torbridge_tls_read
func torbridge_tls_read(streamID *C.char, buf *C.uint8_t, capacity C.int32_t) C.int32_t {
	return C.int32_t(bridge.Default().TLSRead(cBytes(streamID), dataBuf(buf, capacity)))
}

//export torbridge_close_tls_stream
func torbridge_close_tls_stream(streamID *C.char) C.int32_t {
	return C.int32_t(bridge.Default().CloseTLSStream(cBytes(streamID)))
}

//export torbridge_last_error_code
func torbridge_last_error_code() C.int32_t {
	return C.int32_t(bridge.Default().LastErrorCode())
}

//export torbridge_last_error
func torbridge_last_error(buf *C.char, capacity C.int32_t) C.int32_t {
	return C.int32_t(bridge.Default().LastError(outBuf(buf, capacity)))
}

//export torbridge_metrics
func torbridge_metrics(buf *C.char, capacity C.int32_t) C.int32_t {
	return C.int32_t(bridge.Default().WriteMetrics(outBuf(buf, capacity)))
}
