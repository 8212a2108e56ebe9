package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory transport.LineConn for tests that do not need a
// socket.
type fakeConn struct {
	mu      sync.Mutex
	written []string
	closed  bool
	done    chan struct{}
}

func newFakeConn() *fakeConn { return &fakeConn{done: make(chan struct{})} }

func (f *fakeConn) ReadLine() (string, error) {
	<-f.done
	return "", io.EOF
}

func (f *fakeConn) WriteLine(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return net.ErrClosed
	}
	f.written = append(f.written, line)
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) RemoteAddr() string               { return "fake" }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// drain returns every line currently queued on c without blocking.
func drain(c *Client) []string {
	var out []string
	for {
		select {
		case line := <-c.send:
			out = append(out, line)
		default:
			return out
		}
	}
}

// ---------------------------------------------------------------------------
// End-to-end helpers
// ---------------------------------------------------------------------------

func startServer(t *testing.T, cfg Config) (*Server, string) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	srv := New(cfg)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		<-served
	})
	return srv, ln.Addr().String()
}

// peer is a raw line-protocol client used to drive the server in tests.
type peer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *peer {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &peer{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (p *peer) send(line string) {
	p.t.Helper()
	_, err := io.WriteString(p.conn, line+"\n")
	require.NoError(p.t, err)
}

// next reads one line, failing the test after two seconds.
func (p *peer) next() string {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := p.r.ReadString('\n')
	require.NoError(p.t, err, "waiting for a line from the server")
	return strings.TrimSuffix(line, "\n")
}

func (p *peer) expect(want ...string) {
	p.t.Helper()
	for _, w := range want {
		require.Equal(p.t, w, p.next())
	}
}

// join performs the handshake and consumes the acknowledgement and roster.
func (p *peer) join(name, room, roster string) {
	p.t.Helper()
	p.expect("enter username")
	p.send(name)
	p.expect("enter room")
	p.send(room)
	p.expect("OK joined "+room+" as "+name, roster)
}

// expectClosed waits for the server to close the connection.
func (p *peer) expectClosed() {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, err := p.r.ReadString('\n')
		if err != nil {
			// Unread input on the server side turns its close into a reset.
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.ECONNRESET) {
				p.t.Fatalf("expected connection to close, got %v", err)
			}
			return
		}
	}
}
