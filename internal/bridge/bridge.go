package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/torbridge/internal/log"
	"github.com/nao1215/torbridge/internal/metrics"
	"github.com/nao1215/torbridge/internal/registry"
	"github.com/nao1215/torbridge/internal/session"
)

// Status values returned by bridge calls.
const (
	StatusOK   int32 = 1
	StatusFail int32 = 0

	// TLSReadFail is what TLSRead returns on failure.
	TLSReadFail int32 = -1
)

// Bridge adapts a Session to primitive-typed calls.
type Bridge struct {
	session *session.Session
	metrics *metrics.Metrics
	logger  *slog.Logger
	lastErr *lastErrors
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger for failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a Bridge over s.
func New(s *session.Session, opts ...Option) *Bridge {
	b := &Bridge{
		session: s,
		logger:  log.Discard(),
		lastErr: newLastErrors(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if s != nil {
		b.metrics = metrics.New(s, func() int64 {
			e, err := s.Engine()
			if err != nil {
				return 0
			}
			return e.InFlight()
		})
	}
	return b
}

// Session returns the underlying session.
func (b *Bridge) Session() *session.Session {
	return b.session
}

// Metrics returns the bridge's metrics.
func (b *Bridge) Metrics() *metrics.Metrics {
	return b.metrics
}

// call runs fn for operation op, converting its error and any panic into a
// status and the calling thread's last error.
func (b *Bridge) call(op string, fn func(ctx context.Context, owner registry.Owner) error) (status int32) {
	start := time.Now()
	owner := currentThread()

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in %s: %v", session.ErrInternal, op, r)
			status = StatusFail
		}
		b.finish(op, owner, start, err)
	}()

	err = fn(context.Background(), owner)
	if err != nil {
		return StatusFail
	}
	return StatusOK
}

func (b *Bridge) finish(op string, owner registry.Owner, start time.Time, err error) {
	b.lastErr.set(owner, err)
	if b.metrics != nil {
		b.metrics.Observe(op, start, err)
	}
	if err != nil {
		b.logger.Warn("bridge call failed", "op", op, "code", CodeOf(err).String(), "thread", int64(owner), "error", err)
	}
}

// Init bootstraps the Tor client with the default configuration.
func (b *Bridge) Init() int32 {
	return b.InitWithConfig(nil)
}

// InitWithConfig bootstraps the Tor client. path names a client
// configuration file that is only echoed to the log; nil behaves like Init.
func (b *Bridge) InitWithConfig(path []byte) int32 {
	return b.call("init", func(ctx context.Context, _ registry.Owner) error {
		p, err := optionalCString(path, "config_path")
		if err != nil {
			return err
		}
		return b.session.Init(ctx, p)
	})
}

// Connect succeeds when a client is initialized.
func (b *Bridge) Connect() int32 {
	return b.call("connect", func(context.Context, registry.Owner) error {
		return b.session.Connect()
	})
}

// Disconnect drops every circuit and the client. It always succeeds.
func (b *Bridge) Disconnect() int32 {
	return b.call("disconnect", func(context.Context, registry.Owner) error {
		return b.session.Disconnect()
	})
}

// IsConnected returns 1 when a client is initialized, 0 otherwise.
func (b *Bridge) IsConnected() int32 {
	connected := false
	status := b.call("is_connected", func(context.Context, registry.Owner) error {
		connected = b.session.IsConnected()
		return nil
	})
	if status == StatusOK && connected {
		return 1
	}
	return 0
}

// CreateCircuit registers circuit id.
func (b *Bridge) CreateCircuit(id []byte) int32 {
	return b.call("create_circuit", func(context.Context, registry.Owner) error {
		circuitID, err := cString(id, "circuit_id")
		if err != nil {
			return err
		}
		return b.session.CreateCircuit(circuitID)
	})
}

// DestroyCircuit removes circuit id.
func (b *Bridge) DestroyCircuit(id []byte) int32 {
	return b.call("destroy_circuit", func(context.Context, registry.Owner) error {
		circuitID, err := cString(id, "circuit_id")
		if err != nil {
			return err
		}
		return b.session.DestroyCircuit(circuitID)
	})
}

// ConnectStream opens a stream to host:port through circuit and writes the
// generated stream id into out. If the id and its terminator do not fit,
// the call fails with CodeBufferTooSmall before anything is dialed or stored.
func (b *Bridge) ConnectStream(circuit, host []byte, port int32, out []byte) int32 {
	return b.call("connect_stream", func(ctx context.Context, _ registry.Owner) error {
		circuitID, err := cString(circuit, "circuit_id")
		if err != nil {
			return err
		}
		h, err := cString(host, "host")
		if err != nil {
			return err
		}

		id := b.session.NewStreamID(circuitID)
		if err := writeCString(out, id); err != nil {
			return err
		}
		return b.session.OpenStream(ctx, id, circuitID, h, int(port))
	})
}

func requireData(data []byte, name string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: %s is null or empty", session.ErrInvalidParams, name)
	}
	return nil
}

// WriteStream writes all of data to the stream.
func (b *Bridge) WriteStream(id, data []byte) int32 {
	return b.call("write_stream", func(ctx context.Context, _ registry.Owner) error {
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		if err := requireData(data, "data"); err != nil {
			return err
		}
		_, err = b.session.Write(ctx, streamID, data)
		return err
	})
}

// FlushStream flushes the stream.
func (b *Bridge) FlushStream(id []byte) int32 {
	return b.call("flush_stream", func(ctx context.Context, _ registry.Owner) error {
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		return b.session.Flush(ctx, streamID)
	})
}

// ReadStream reads up to len(buf) bytes and stores the count in bytesRead.
// A count of 0 with status 1 means end of stream.
func (b *Bridge) ReadStream(id, buf []byte, bytesRead *int32) int32 {
	return b.call("read_stream", func(ctx context.Context, _ registry.Owner) error {
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		if err := requireData(buf, "buffer"); err != nil {
			return err
		}
		if bytesRead == nil {
			return fmt.Errorf("%w: bytes_read is null", session.ErrInvalidParams)
		}
		n, err := b.session.Read(ctx, streamID, buf)
		if err != nil {
			return err
		}
		*bytesRead = int32(n) //nolint:gosec // n <= len(buf), which came from a C int
		return nil
	})
}

// CloseStream closes and forgets the stream.
func (b *Bridge) CloseStream(id []byte) int32 {
	return b.call("close_stream", func(context.Context, registry.Owner) error {
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		return b.session.CloseStream(streamID)
	})
}

// HTTPRequest performs an HTTP request and writes the JSON envelope into
// out. headers and body may be null.
func (b *Bridge) HTTPRequest(circuit, url, method, headers, body, out []byte) int32 {
	return b.call("http_request", func(ctx context.Context, _ registry.Owner) error {
		circuitID, err := cString(circuit, "circuit_id")
		if err != nil {
			return err
		}
		u, err := cString(url, "url")
		if err != nil {
			return err
		}
		m, err := cString(method, "method")
		if err != nil {
			return err
		}
		h, err := optionalCString(headers, "headers")
		if err != nil {
			return err
		}
		payload, err := optionalCString(body, "body")
		if err != nil {
			return err
		}
		if out == nil {
			return fmt.Errorf("%w: output buffer is null", session.ErrInvalidParams)
		}

		resp, err := b.session.HTTPRequest(ctx, circuitID, u, m, h, []byte(payload))
		if err != nil {
			return err
		}
		return writeCString(out, resp)
	})
}

// ConnectTLSStream opens a TLS stream owned by the calling thread.
func (b *Bridge) ConnectTLSStream(circuit, host []byte, port int32, id []byte) int32 {
	return b.call("connect_tls_stream", func(ctx context.Context, owner registry.Owner) error {
		circuitID, err := cString(circuit, "circuit_id")
		if err != nil {
			return err
		}
		h, err := cString(host, "host")
		if err != nil {
			return err
		}
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		return b.session.ConnectTLSStream(ctx, owner, circuitID, h, int(port), streamID)
	})
}

// TLSWrite writes all of data to the calling thread's TLS stream.
func (b *Bridge) TLSWrite(id, data []byte) int32 {
	return b.call("tls_write", func(ctx context.Context, owner registry.Owner) error {
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		if err := requireData(data, "data"); err != nil {
			return err
		}
		_, err = b.session.TLSWrite(ctx, owner, streamID, data)
		return err
	})
}

// FlushTLSStream flushes the calling thread's TLS stream.
func (b *Bridge) FlushTLSStream(id []byte) int32 {
	return b.call("flush_tls_stream", func(ctx context.Context, owner registry.Owner) error {
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		return b.session.TLSFlush(ctx, owner, streamID)
	})
}

// TLSRead reads into buf from the calling thread's TLS stream and returns
// the byte count, 0 at end of stream, or -1 on failure.
func (b *Bridge) TLSRead(id, buf []byte) int32 {
	var n int
	status := b.call("tls_read", func(ctx context.Context, owner registry.Owner) error {
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		if err := requireData(buf, "buffer"); err != nil {
			return err
		}
		n, err = b.session.TLSRead(ctx, owner, streamID, buf)
		return err
	})
	if status != StatusOK {
		return TLSReadFail
	}
	return int32(n) //nolint:gosec // n <= len(buf), which came from a C int
}

// CloseTLSStream closes the calling thread's TLS stream.
func (b *Bridge) CloseTLSStream(id []byte) int32 {
	return b.call("close_tls_stream", func(_ context.Context, owner registry.Owner) error {
		streamID, err := cString(id, "stream_id")
		if err != nil {
			return err
		}
		return b.session.CloseTLSStream(owner, streamID)
	})
}

// LastErrorCode returns the code of the calling thread's last failed call,
// or CodeOK if its last call succeeded.
func (b *Bridge) LastErrorCode() Code {
	return b.lastErr.get(currentThread()).code
}

// LastError writes the calling thread's last error message into buf.
// It does not change the last error itself.
func (b *Bridge) LastError(buf []byte) (status int32) {
	defer func() {
		if recover() != nil {
			status = StatusFail
		}
	}()

	if err := writeCString(buf, b.lastErr.get(currentThread()).msg); err != nil {
		return StatusFail
	}
	return StatusOK
}

// WriteMetrics writes the Prometheus text exposition into buf.
func (b *Bridge) WriteMetrics(buf []byte) int32 {
	return b.call("metrics", func(context.Context, registry.Owner) error {
		if b.metrics == nil {
			return fmt.Errorf("%w: no metrics", session.ErrNotInitialized)
		}
		var text bytes.Buffer
		if err := b.metrics.WriteText(&text); err != nil {
			return fmt.Errorf("%w: %w", session.ErrInternal, err)
		}
		return writeCString(buf, text.String())
	})
}
