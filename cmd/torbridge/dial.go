package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"

	"github.com/nao1215/torbridge/internal/session"
	"github.com/spf13/cobra"
)

// dialCircuit is the circuit the dial command opens its stream on.
const dialCircuit = "dial"

// dialReadSize is the buffer size used to copy the response.
const dialReadSize = 32 * 1024

// NewDialCmd creates the dial command.
func NewDialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dial HOST:PORT",
		Short: "Open a stream through Tor and relay stdin and stdout",
		Long: `Dial opens a stream to HOST:PORT through Tor, sends everything read from
stdin, and prints what the remote end sends back until it closes the stream.

Examples:
  # Plain HTTP request to an onion service
  printf 'GET / HTTP/1.0\r\nHost: example.onion\r\n\r\n' | torbridge dial example.onion:80

  # The same over TLS
  printf 'GET / HTTP/1.0\r\nHost: example.com\r\n\r\n' | torbridge dial --tls example.com:443`,
		Args: cobra.ExactArgs(1),
		RunE: runDialCmd,
	}

	addTorFlags(cmd)
	cmd.Flags().Bool("tls", false, "Wrap the stream in TLS")

	return cmd
}

func runDialCmd(cmd *cobra.Command, args []string) error {
	host, port, err := splitTarget(args[0])
	if err != nil {
		return err
	}
	useTLS, err := cmd.Flags().GetBool("tls")
	if err != nil {
		return err
	}

	s, cleanup, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	// Closing the session unblocks a pending read.
	ctx, cancel := signalContext(cmd.Context(), s.Logger(), func() { _ = s.Close() })
	defer cancel()

	if err := s.Init(ctx, ""); err != nil {
		return err
	}
	return runDial(ctx, s, cmd.InOrStdin(), cmd.OutOrStdout(), host, port, useTLS)
}

// splitTarget parses HOST:PORT.
func splitTarget(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("invalid target %q: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in target %q", target)
	}
	return host, port, nil
}

// streamIO is the subset of stream calls shared by plain and TLS streams.
type streamIO struct {
	write func([]byte) (int, error)
	flush func() error
	read  func([]byte) (int, error)
	close func() error
}

// openDialStream opens a plain or TLS stream on an initialized session.
// On failure the circuit it created is destroyed again.
func openDialStream(ctx context.Context, s *session.Session, host string, port int, useTLS bool) (*streamIO, error) {
	if err := s.CreateCircuit(dialCircuit); err != nil {
		return nil, err
	}
	st, err := connectDialStream(ctx, s, host, port, useTLS)
	if err != nil {
		return nil, errors.Join(err, s.DestroyCircuit(dialCircuit))
	}
	return st, nil
}

func connectDialStream(ctx context.Context, s *session.Session, host string, port int, useTLS bool) (*streamIO, error) {
	if useTLS {
		owner := session.Owner(os.Getpid())
		id := s.NewStreamID(dialCircuit)
		if err := s.ConnectTLSStream(ctx, owner, dialCircuit, host, port, id); err != nil {
			return nil, err
		}
		return &streamIO{
			write: func(p []byte) (int, error) { return s.TLSWrite(ctx, owner, id, p) },
			flush: func() error { return s.TLSFlush(ctx, owner, id) },
			read:  func(p []byte) (int, error) { return s.TLSRead(ctx, owner, id, p) },
			close: func() error { return s.CloseTLSStream(owner, id) },
		}, nil
	}

	id, err := s.ConnectStream(ctx, dialCircuit, host, port)
	if err != nil {
		return nil, err
	}
	return &streamIO{
		write: func(p []byte) (int, error) { return s.Write(ctx, id, p) },
		flush: func() error { return s.Flush(ctx, id) },
		read:  func(p []byte) (int, error) { return s.Read(ctx, id, p) },
		close: func() error { return s.CloseStream(id) },
	}, nil
}

// runDial relays in to a new stream and the stream's response to out.
func runDial(ctx context.Context, s *session.Session, in io.Reader, out io.Writer, host string, port int, useTLS bool) (err error) {
	st, err := openDialStream(ctx, s, host, port, useTLS)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, st.close(), s.DestroyCircuit(dialCircuit))
	}()

	request, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(request) > 0 {
		if _, err := st.write(request); err != nil {
			return err
		}
		if err := st.flush(); err != nil {
			return err
		}
	}

	buf := make([]byte, dialReadSize)
	for {
		n, err := st.read(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
}
