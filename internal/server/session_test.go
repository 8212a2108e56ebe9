package server

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stuckConn replays scripted input and blocks every write until closed, like
// a peer that has stopped reading.
type stuckConn struct {
	input  chan string
	closed chan struct{}
	once   sync.Once
}

func newStuckConn(lines ...string) *stuckConn {
	in := make(chan string, len(lines))
	for _, l := range lines {
		in <- l
	}
	return &stuckConn{input: in, closed: make(chan struct{})}
}

func (s *stuckConn) ReadLine() (string, error) {
	select {
	case l := <-s.input:
		return l, nil
	case <-s.closed:
		return "", io.EOF
	}
}

func (s *stuckConn) WriteLine(string) error {
	<-s.closed
	return net.ErrClosed
}

func (s *stuckConn) SetReadDeadline(time.Time) error  { return nil }
func (s *stuckConn) SetWriteDeadline(time.Time) error { return nil }
func (s *stuckConn) RemoteAddr() string               { return "stuck" }

func (s *stuckConn) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func TestOwnRepliesOverflowDisconnects(t *testing.T) {
	srv := New(Config{SendBuffer: 2, Logger: quietLogger()})

	lines := []string{"alice", "lobby"}
	for i := 0; i < 10; i++ {
		lines = append(lines, "/help")
	}
	conn := newStuckConn(lines...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(conn)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection with an overflowing queue stayed open")
	}
	select {
	case <-conn.closed:
	default:
		require.Fail(t, "connection was not closed")
	}
	assert.Empty(t, srv.Online())
	assert.Empty(t, srv.Rooms())
}
