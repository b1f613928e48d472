package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/multierr"

	"github.com/nao1215/torbridge/internal/engine"
	"github.com/nao1215/torbridge/internal/journal"
	"github.com/nao1215/torbridge/internal/tor"
)

// plainStream is an open connection in the stream registry.
// readMu serializes reads and writeMu serializes writes and flushes, so a
// blocked read never holds up a write on the same stream.
type plainStream struct {
	id        string
	circuitID string
	target    string
	conn      net.Conn
	client    *clientRef

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// close closes the connection and releases the client reference.
// Closing unblocks any read in progress.
func (p *plainStream) close() error {
	p.closeOnce.Do(func() {
		p.closeErr = multierr.Append(p.conn.Close(), p.client.release())
	})
	return p.closeErr
}

// flusher is implemented by connections that buffer writes.
type flusher interface {
	Flush() error
}

// NewStreamID returns the identifier the next stream on circuitID would get:
// "{circuitID}-stream-{unix_millis}". Two calls within the same millisecond
// return the same identifier.
func (s *Session) NewStreamID(circuitID string) string {
	return fmt.Sprintf("%s-stream-%d", circuitID, s.clock.Now().UnixMilli())
}

// ConnectStream opens a stream through circuitID and returns its generated
// identifier.
func (s *Session) ConnectStream(ctx context.Context, circuitID, host string, port int) (string, error) {
	id := s.NewStreamID(circuitID)
	if err := s.OpenStream(ctx, id, circuitID, host, port); err != nil {
		return "", err
	}
	return id, nil
}

// OpenStream dials host:port through circuitID and stores the connection
// under streamID.
//
// If streamID is already in use the call fails with ErrStreamIDCollision and
// the existing stream is left untouched. This is checked before dialing and
// again when the new stream is stored.
func (s *Session) OpenStream(ctx context.Context, streamID, circuitID, host string, port int) error {
	if streamID == "" {
		return fmt.Errorf("%w: empty stream id", ErrInvalidParams)
	}
	addr, err := tor.ValidateTarget(host, port)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if s.streams.Has(streamID) {
		return fmt.Errorf("%w: %q", ErrStreamIDCollision, streamID)
	}

	eng, err := s.Engine()
	if err != nil {
		return err
	}
	client, err := s.retainCircuit(circuitID)
	if err != nil {
		return err
	}

	conn, err := engine.RunLimited(ctx, eng, func(ctx context.Context) (net.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, s.dialTimeout)
		defer cancel()
		return client.network.DialContext(ctx, "tcp", addr)
	})
	if err != nil {
		_ = client.release()
		return runError(ErrConnectionFailed, "dial "+addr, err)
	}

	st := &plainStream{id: streamID, circuitID: circuitID, target: addr, conn: conn, client: client}
	if err := s.streams.InsertNew(streamID, st); err != nil {
		_ = st.close()
		return fmt.Errorf("%w: %q", ErrStreamIDCollision, streamID)
	}
	s.closedStreams.Revive(streamID)

	s.record(ctx, journal.Event{Kind: journal.KindStreamOpen, Handle: streamID, Detail: addr})
	s.logger.Debug("stream opened", "stream", streamID, "circuit", circuitID, "target", addr)
	return nil
}

func (s *Session) lookupStream(id string) (*plainStream, error) {
	if st, ok := s.streams.Get(id); ok {
		return st, nil
	}
	return nil, s.missingStream(id)
}

func (s *Session) missingStream(id string) error {
	if s.closedStreams.Buried(id) {
		return fmt.Errorf("%w: %q", ErrStreamClosed, id)
	}
	return fmt.Errorf("%w: %q", ErrStreamNotFound, id)
}

// Write writes all of p to the stream. A failed write leaves the stream
// registered; the caller still has to close it.
func (s *Session) Write(ctx context.Context, id string, p []byte) (int, error) {
	st, err := s.lookupStream(id)
	if err != nil {
		return 0, err
	}
	eng, err := s.Engine()
	if err != nil {
		return 0, err
	}

	n, err := engine.Run(ctx, eng, func(context.Context) (int, error) {
		st.writeMu.Lock()
		defer st.writeMu.Unlock()
		return st.conn.Write(p)
	})
	if err != nil {
		return n, runError(ErrIOFailed, "write "+id, err)
	}
	return n, nil
}

// Flush pushes buffered data to the network. Plain connections do not
// buffer, so this only waits for writes in progress.
func (s *Session) Flush(ctx context.Context, id string) error {
	st, err := s.lookupStream(id)
	if err != nil {
		return err
	}
	eng, err := s.Engine()
	if err != nil {
		return err
	}

	err = eng.BlockOn(ctx, func(context.Context) error {
		st.writeMu.Lock()
		defer st.writeMu.Unlock()
		if f, ok := st.conn.(flusher); ok {
			return f.Flush()
		}
		return nil
	})
	if err != nil {
		return runError(ErrIOFailed, "flush "+id, err)
	}
	return nil
}

// Read reads up to len(buf) bytes. It returns 0 and no error at end of stream.
func (s *Session) Read(ctx context.Context, id string, buf []byte) (int, error) {
	st, err := s.lookupStream(id)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}
	eng, err := s.Engine()
	if err != nil {
		return 0, err
	}

	n, err := engine.Run(ctx, eng, func(context.Context) (int, error) {
		st.readMu.Lock()
		defer st.readMu.Unlock()
		return readSome(st.conn, buf)
	})
	if err != nil {
		return 0, runError(ErrIOFailed, "read "+id, err)
	}
	return n, nil
}

// readSome performs one read, reporting end of stream as a zero count.
func readSome(r io.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if n > 0 || errors.Is(err, io.EOF) {
		return n, nil
	}
	return n, err
}

// CloseStream removes a stream and closes its connection.
func (s *Session) CloseStream(id string) error {
	st, ok := s.streams.Remove(id)
	if !ok {
		return s.missingStream(id)
	}
	s.closedStreams.Bury(id)

	if err := st.close(); err != nil {
		s.logger.Debug("error closing stream", "stream", id, "error", err)
	}

	s.record(context.Background(), journal.Event{Kind: journal.KindStreamClose, Handle: id})
	s.logger.Debug("stream closed", "stream", id)
	return nil
}

// Streams returns the ids of all open plain streams, sorted.
func (s *Session) Streams() []string {
	return s.streams.Keys()
}
