// Package server implements the multi-room chat server.
//
// Concurrency overview
// --------------------
//
//	┌─────────────────────────────────────────────────────────┐
//	│  Listener goroutine (TCP, optionally WebSocket)          │
//	│  Accepts connections; runs one session goroutine and     │
//	│  one writePump goroutine per Client.                     │
//	└───────────────────┬─────────────────────────────────────┘
//	                    │  Register / Join / Leave / Route
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  NameRegistry (sync.Mutex)   RoomRegistry (sync.RWMutex) │
//	│  name → ConnID               room → {ConnID → name}      │
//	└───────────────────┬─────────────────────────────────────┘
//	                    │  member snapshot, lock released
//	                    ▼
//	┌─────────────────────────────────────────────────────────┐
//	│  Router                                                  │
//	│  Resolves IDs via the connection table and enqueues on   │
//	│  each recipient's bounded send channel (never blocks).   │
//	└─────────────────────────────────────────────────────────┘
//
// Registries hold connection IDs only.  Every Client is owned by its session;
// nothing else keeps it alive once the session has torn it down.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"

	"roomchat/internal/protocol"
	"roomchat/internal/transport"
)

// Server ties together the registries, the router and the listeners.
type Server struct {
	cfg    Config
	logger *log.Logger

	names  *NameRegistry
	rooms  *RoomRegistry
	conns  *connTable
	router *Router

	mu        sync.Mutex
	closing   bool
	listeners []net.Listener
	httpSrv   *http.Server
	wg        sync.WaitGroup // one per live connection
}

// New creates a Server.  Zero-valued Config fields take their defaults.
func New(cfg Config) *Server {
	cfg = cfg.sanitize()
	rooms := NewRoomRegistry(cfg.Logger)
	conns := newConnTable()
	return &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		names:  NewNameRegistry(),
		rooms:  rooms,
		conns:  conns,
		router: newRouter(rooms, conns, cfg.Logger),
	}
}

// ListenAndServe accepts TCP connections on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown closes it.  It returns nil
// after Shutdown and the accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.listeners = append(s.listeners, ln)
	s.mu.Unlock()

	s.logger.Printf("[server] listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			return err
		}
		lc := transport.NewTCPConn(conn, s.cfg.MaxLineLength)
		if !s.track(func() { s.ServeConn(lc) }) {
			lc.Close()
		}
	}
}

// WebSocketHandler returns an http.Handler that upgrades requests and serves
// each WebSocket as a chat connection, one line per text frame.
func (s *Server) WebSocketHandler() http.Handler {
	return transport.WebSocketHandler(s.cfg.AllowedOrigins, s.cfg.MaxLineLength, func(lc transport.LineConn) {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			lc.Close()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()
		s.ServeConn(lc)
	})
}

// ListenAndServeWebSocket serves WebSocket clients on addr at /ws until
// Shutdown.
func (s *Server) ListenAndServeWebSocket(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", s.WebSocketHandler())

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	srv := s.httpSrv
	s.mu.Unlock()

	s.logger.Printf("[server] websocket listening on %s/ws", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// track runs fn on a new goroutine counted by the connection WaitGroup.  It
// reports false without running fn once Shutdown has begun.
func (s *Server) track(fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
	return true
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// ServeConn runs the full lifecycle of one connection and returns once it is
// Closed: out of every registry, writer stopped, connection closed.
func (s *Server) ServeConn(lc transport.LineConn) {
	c := newClient(newConnID(), lc, s.cfg.SendBuffer, s.cfg.WriteTimeout)
	c.idleTimeout = s.cfg.IdleTimeout
	s.conns.add(c)
	s.logger.Printf("[server] +conn %s from %s  total=%d", c.id, lc.RemoteAddr(), s.conns.len())
	if s.isClosing() {
		// Shutdown may have swept the table before this add.
		c.kick()
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(s.logger)
	}()

	sess := newSession(s, c)
	sess.run()

	c.close()
	<-writerDone
	s.conns.remove(c.id)
	if c.State() != stateClosed {
		sess.transition(stateClosed, nil)
	}
	s.logger.Printf("[server] -conn %s  total=%d", c.id, s.conns.len())
}

// Shutdown stops the listeners, disconnects every peer and waits for their
// sessions to finish or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	listeners := s.listeners
	s.listeners = nil
	httpSrv := s.httpSrv
	s.mu.Unlock()

	s.logger.Println("[server] shutting down…")
	for _, ln := range listeners {
		ln.Close()
	}
	if httpSrv != nil {
		if err := httpSrv.Shutdown(ctx); err != nil {
			s.logger.Printf("[server] websocket shutdown: %v", err)
		}
	}
	for _, c := range s.conns.all() {
		c.kick()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---------------------------------------------------------------------------
// Introspection
// ---------------------------------------------------------------------------

// Rooms lists the live rooms and their occupancy.
func (s *Server) Rooms() []protocol.RoomInfo { return s.rooms.Rooms() }

// Members returns the usernames in room, sorted.
func (s *Server) Members(room string) []string { return usernames(s.rooms.Members(room)) }

// Online returns every registered username, sorted.
func (s *Server) Online() []string { return s.names.Names() }
