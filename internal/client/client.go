// Package client implements the client side of the line protocol.
//
// Concurrency
// -----------
//
// A Strategy moves lines between the server connection and the local UI.  Two
// are provided and both satisfy the same contract, so the server can make no
// assumption about how promptly a client reads:
//
//	Concurrent – one reader goroutine and one writer goroutine.
//	Polling    – a single loop that alternates a non-blocking send with a read
//	             bounded by a short deadline.
package client

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"roomchat/internal/transport"
)

// DefaultPollInterval is how long Polling waits for input per iteration.
const DefaultPollInterval = 20 * time.Millisecond

// Strategy runs a connection until ctx is cancelled, the server hangs up, or
// outbound is closed.  Lines received from the server are sent on inbound
// without their terminator; Run closes inbound before it returns.  A clean
// hangup by the server is reported as io.EOF.
type Strategy interface {
	Run(ctx context.Context, conn net.Conn, outbound <-chan string, inbound chan<- string) error
}

// Dial connects to a chat server.
func Dial(addr string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", addr, timeout)
}

// ---------------------------------------------------------------------------
// Concurrent
// ---------------------------------------------------------------------------

// Concurrent reads and writes on separate goroutines.
type Concurrent struct {
	MaxLine int
}

func (s Concurrent) Run(ctx context.Context, conn net.Conn, outbound <-chan string, inbound chan<- string) error {
	defer close(inbound)

	g, ctx := errgroup.WithContext(ctx)

	// Closing the connection is the only way to unblock the reader.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	g.Go(func() error {
		lc := transport.NewTCPConn(conn, s.MaxLine)
		for {
			line, err := lc.ReadLine()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			select {
			case inbound <- line:
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		for {
			select {
			case line, ok := <-outbound:
				if !ok {
					return errOutboundClosed
				}
				if _, err := io.WriteString(conn, line+"\n"); err != nil {
					return err
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	return normalize(g.Wait())
}

// ---------------------------------------------------------------------------
// Polling
// ---------------------------------------------------------------------------

// Polling serves the connection from a single loop.  Each iteration writes at
// most one queued outbound line, then reads for up to Interval.
type Polling struct {
	Interval time.Duration
	MaxLine  int
}

func (s Polling) Run(ctx context.Context, conn net.Conn, outbound <-chan string, inbound chan<- string) error {
	defer close(inbound)

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	framer := transport.NewFramer(s.MaxLine)
	buf := make([]byte, 1024)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		select {
		case line, ok := <-outbound:
			if !ok {
				return nil
			}
			if _, err := io.WriteString(conn, line+"\n"); err != nil {
				return err
			}
		default:
		}

		conn.SetReadDeadline(time.Now().Add(interval))
		n, err := conn.Read(buf)
		if n > 0 {
			lines, ferr := framer.Feed(buf[:n])
			for _, line := range lines {
				select {
				case inbound <- line:
				case <-ctx.Done():
					return nil
				}
			}
			if ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return err
		}
	}
}

var errOutboundClosed = errors.New("outbound closed")

// normalize maps the ways a connection ends on purpose to nil.
func normalize(err error) error {
	if errors.Is(err, errOutboundClosed) {
		return nil
	}
	return err
}

// ---------------------------------------------------------------------------
// Input
// ---------------------------------------------------------------------------

// ReadLines sends each line of r on out until r is exhausted or ctx is
// cancelled, then closes out.
func ReadLines(ctx context.Context, r io.Reader, out chan<- string) error {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		select {
		case out <- strings.TrimSuffix(sc.Text(), "\r"):
		case <-ctx.Done():
			return nil
		}
	}
	return sc.Err()
}
