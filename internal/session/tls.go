package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/nao1215/torbridge/internal/engine"
	"github.com/nao1215/torbridge/internal/journal"
	"github.com/nao1215/torbridge/internal/registry"
	"github.com/nao1215/torbridge/internal/tor"
)

// Owner identifies who may use a TLS stream. The bridge passes the calling
// OS thread.
type Owner = registry.Owner

// tlsStream is an open TLS connection. Every I/O call takes mu, so
// operations on one stream are fully serialized.
type tlsStream struct {
	id        string
	owner     Owner
	circuitID string
	target    string
	conn      *tls.Conn
	client    *clientRef

	mu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

func (t *tlsStream) close() error {
	t.closeOnce.Do(func() {
		t.closeErr = multierr.Append(t.conn.Close(), t.client.release())
	})
	return t.closeErr
}

func tlsKey(owner Owner, id string) string {
	return strconv.FormatInt(int64(owner), 10) + "/" + id
}

// clientTLSConfig returns the trust configuration shared by every TLS
// stream of the session: the system roots (or WithRootCAs), TLS 1.2 or
// newer, no client certificate. Certificate verification is always on.
func (s *Session) clientTLSConfig() *tls.Config {
	s.tlsOnce.Do(func() {
		s.tlsConfig = &tls.Config{
			RootCAs:    s.rootCAs,
			MinVersion: tls.VersionTLS12,
		}
	})
	return s.tlsConfig
}

// ConnectTLSStream dials host:port through circuitID, performs a TLS
// handshake that verifies the server certificate for host, and stores the
// stream under (owner, id). Only owner can use the stream afterwards.
//
// An existing stream with the same owner and id is replaced and closed.
func (s *Session) ConnectTLSStream(ctx context.Context, owner Owner, circuitID, host string, port int, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty stream id", ErrInvalidParams)
	}
	addr, err := tor.ValidateTarget(host, port)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	serverName, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	eng, err := s.Engine()
	if err != nil {
		return err
	}
	client, err := s.retainCircuit(circuitID)
	if err != nil {
		return err
	}

	conn, err := engine.RunLimited(ctx, eng, func(ctx context.Context) (*tls.Conn, error) {
		ctx, cancel := context.WithTimeout(ctx, s.dialTimeout)
		defer cancel()

		raw, err := client.network.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, addr, err)
		}

		cfg := s.clientTLSConfig().Clone()
		cfg.ServerName = serverName
		conn := tls.Client(raw, cfg)
		if err := conn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("%w: %s: %w", ErrHandshakeFailed, addr, err)
		}
		return conn, nil
	})
	if err != nil {
		_ = client.release()
		if errors.Is(err, ErrConnectionFailed) || errors.Is(err, ErrHandshakeFailed) {
			return err
		}
		return runError(ErrConnectionFailed, "dial "+addr, err)
	}

	st := &tlsStream{id: id, owner: owner, circuitID: circuitID, target: addr, conn: conn, client: client}
	if old, replaced := s.tlsStreams.Put(owner, id, st); replaced {
		if err := old.close(); err != nil {
			s.logger.Debug("error closing replaced TLS stream", "stream", id, "error", err)
		}
	}
	s.closedTLSStreams.Revive(tlsKey(owner, id))

	s.record(ctx, journal.Event{Kind: journal.KindTLSOpen, Handle: id, Owner: int64(owner), Detail: addr})
	s.logger.Debug("TLS stream opened", "stream", id, "owner", int64(owner), "circuit", circuitID, "target", addr)
	return nil
}

func (s *Session) tlsError(owner Owner, id string, err error) error {
	if errors.Is(err, registry.ErrNotOwner) {
		return fmt.Errorf("%w: %q", ErrNotOwner, id)
	}
	if s.closedTLSStreams.Buried(tlsKey(owner, id)) {
		return fmt.Errorf("%w: %q", ErrStreamClosed, id)
	}
	return fmt.Errorf("%w: %q", ErrStreamNotFound, id)
}

func (s *Session) lookupTLSStream(owner Owner, id string) (*tlsStream, error) {
	st, err := s.tlsStreams.Get(owner, id)
	if err != nil {
		return nil, s.tlsError(owner, id, err)
	}
	return st, nil
}

// TLSWrite writes all of p to owner's TLS stream id.
func (s *Session) TLSWrite(ctx context.Context, owner Owner, id string, p []byte) (int, error) {
	st, err := s.lookupTLSStream(owner, id)
	if err != nil {
		return 0, err
	}
	eng, err := s.Engine()
	if err != nil {
		return 0, err
	}

	n, err := engine.Run(ctx, eng, func(context.Context) (int, error) {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.conn.Write(p)
	})
	if err != nil {
		return n, runError(ErrIOFailed, "TLS write "+id, err)
	}
	return n, nil
}

// TLSFlush waits for writes in progress on owner's TLS stream id.
// tls.Conn sends each record as it is written.
func (s *Session) TLSFlush(ctx context.Context, owner Owner, id string) error {
	st, err := s.lookupTLSStream(owner, id)
	if err != nil {
		return err
	}
	eng, err := s.Engine()
	if err != nil {
		return err
	}

	err = eng.BlockOn(ctx, func(context.Context) error {
		st.mu.Lock()
		defer st.mu.Unlock()
		return nil
	})
	if err != nil {
		return runError(ErrIOFailed, "TLS flush "+id, err)
	}
	return nil
}

// TLSRead reads up to len(buf) bytes from owner's TLS stream id.
// It returns 0 and no error at end of stream.
func (s *Session) TLSRead(ctx context.Context, owner Owner, id string, buf []byte) (int, error) {
	st, err := s.lookupTLSStream(owner, id)
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
		st.mu.Lock()
		defer st.mu.Unlock()
		return readSome(st.conn, buf)
	})
	if err != nil {
		return 0, runError(ErrIOFailed, "TLS read "+id, err)
	}
	return n, nil
}

// CloseTLSStream removes owner's TLS stream id and closes it.
func (s *Session) CloseTLSStream(owner Owner, id string) error {
	st, err := s.tlsStreams.Remove(owner, id)
	if err != nil {
		return s.tlsError(owner, id, err)
	}
	s.closedTLSStreams.Bury(tlsKey(owner, id))

	if err := st.close(); err != nil {
		s.logger.Debug("error closing TLS stream", "stream", id, "error", err)
	}

	s.record(context.Background(), journal.Event{Kind: journal.KindTLSClose, Handle: id, Owner: int64(owner)})
	s.logger.Debug("TLS stream closed", "stream", id, "owner", int64(owner))
	return nil
}
