// Package transport turns raw connections into streams of discrete text lines.
// The server core only ever sees complete lines; partial input is buffered here.
package transport

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// DefaultMaxLine bounds a single line in bytes, excluding the terminator.
const DefaultMaxLine = 4096

var (
	ErrLineTooLong = errors.New("transport: line too long")
	ErrBinaryFrame = errors.New("transport: binary frames are not supported")
)

// LineConn is a bidirectional, line-oriented connection to one peer.
//
// ReadLine must only be called from one goroutine, and WriteLine from one
// goroutine.  Close may be called from any goroutine and unblocks both.
type LineConn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

// tcpConn frames a stream connection on '\n'.
type tcpConn struct {
	conn    net.Conn
	scanner *bufio.Scanner
}

// NewTCPConn wraps conn.  maxLine <= 0 selects DefaultMaxLine.
func NewTCPConn(conn net.Conn, maxLine int) LineConn {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	sc := bufio.NewScanner(conn)
	// +2 leaves room for "\r\n" on a line of exactly maxLine bytes.
	sc.Buffer(make([]byte, 0, min(maxLine+2, 4096)), maxLine+2)
	return &tcpConn{conn: conn, scanner: sc}
}

func (c *tcpConn) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
	}
	err := c.scanner.Err()
	if errors.Is(err, bufio.ErrTooLong) {
		return "", ErrLineTooLong
	}
	if err == nil {
		err = io.EOF
	}
	return "", err
}

func (c *tcpConn) WriteLine(line string) error {
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *tcpConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *tcpConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
func (c *tcpConn) Close() error                       { return c.conn.Close() }
func (c *tcpConn) RemoteAddr() string                 { return c.conn.RemoteAddr().String() }
