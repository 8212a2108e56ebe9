package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"roomchat/internal/transport"
)

// ConnID identifies one connection for the lifetime of the process.
type ConnID string

func newConnID() ConnID { return ConnID(uuid.NewString()) }

var (
	errQueueFull = errors.New("outbound queue full")
	errClosed    = errors.New("connection closed")
)

// Client represents one peer connection.
//
// Two goroutines serve each client:
//
//	session   – reads lines from the connection and drives the lifecycle
//	            state machine (see session.go).
//	writePump – drains the send channel and writes lines to the connection.
//
// The registries only hold a Client's ID; the Client itself is owned by its
// session and reachable by others through the Server's connection table.
type Client struct {
	id           ConnID
	conn         transport.LineConn
	send         chan string // outbound lines, FIFO
	done         chan struct{}
	writeTimeout time.Duration
	idleTimeout  time.Duration // extended on every successful write; 0 disables

	// ctx is cancelled by kick so that waits on this client's behalf end with
	// the connection.
	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	kickOnce  sync.Once

	// Identity and placement.  Written only by the session goroutine, read by
	// others, hence the lock.
	mu       sync.RWMutex
	username string
	room     string
	state    connState
}

func newClient(id ConnID, conn transport.LineConn, sendBuf int, writeTimeout time.Duration) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:           id,
		conn:         conn,
		send:         make(chan string, sendBuf),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *Client) ID() ConnID { return c.id }

func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

func (c *Client) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) State() connState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// setUsername records the handshake identity.  It is a no-op once a name has
// been set.
func (c *Client) setUsername(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.username == "" {
		c.username = name
	}
}

func (c *Client) setRoom(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
}

func (c *Client) setState(s connState) (prev connState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, c.state = c.state, s
	return prev
}

// enqueue queues line for the writer without blocking.
func (c *Client) enqueue(line string) error {
	select {
	case <-c.done:
		return errClosed
	default:
	}
	select {
	case c.send <- line:
		return nil
	default:
		return errQueueFull
	}
}

// close stops the writer after it has flushed whatever is already queued.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// kick closes the underlying connection, which unblocks the session's read
// and moves it to Disconnecting.
func (c *Client) kick() {
	c.kickOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

// writePump drains the send channel and writes each line to the connection.
// A write deadline is set for every write to prevent blocking indefinitely on
// a stuck peer.  A failed write closes the connection; the session notices on
// its next read.
func (c *Client) writePump(logger *log.Logger) {
	defer c.kick()

	for {
		select {
		case line := <-c.send:
			if !c.write(line, logger) {
				return
			}
		case <-c.done:
			for {
				select {
				case line := <-c.send:
					if !c.write(line, logger) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (c *Client) write(line string, logger *log.Logger) bool {
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteLine(line); err != nil {
		logger.Printf("[client] write to %s failed: %v", c.id, err)
		return false
	}
	// A peer that is only listening is not idle.
	if c.idleTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
	return true
}
