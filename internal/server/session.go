package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"roomchat/internal/protocol"
	"roomchat/internal/transport"
)

// connState is a connection's position in its lifecycle:
//
//	Connecting → AwaitingHandshake → Active → Disconnecting → Closed
//
// A connection lost during the handshake goes straight to Closed.
type connState int

const (
	stateConnecting connState = iota
	stateAwaitingHandshake
	stateActive
	stateDisconnecting
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "Connecting"
	case stateAwaitingHandshake:
		return "AwaitingHandshake"
	case stateActive:
		return "Active"
	case stateDisconnecting:
		return "Disconnecting"
	case stateClosed:
		return "Closed"
	}
	return fmt.Sprintf("connState(%d)", int(s))
}

// errQuit marks a client-requested disconnect.
var errQuit = errors.New("quit")

// session drives one Client from accept to Closed.  It runs on the goroutine
// that reads from the connection; every registry mutation for this client
// happens here.
type session struct {
	srv     *Server
	c       *Client
	limiter *rate.Limiter // paces chat lines; nil when disabled
}

func newSession(srv *Server, c *Client) *session {
	s := &session{srv: srv, c: c}
	if r := srv.cfg.MessageRate; r > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(r), srv.cfg.MessageBurst)
	}
	return s
}

func (s *session) run() {
	s.transition(stateAwaitingHandshake, nil)
	if err := s.handshake(); err != nil {
		s.releaseName()
		s.transition(stateClosed, err)
		return
	}
	s.transition(stateActive, nil)
	err := s.serve()
	s.transition(stateDisconnecting, err)
	s.teardown()
}

func (s *session) transition(to connState, cause error) {
	from := s.c.setState(to)
	name := s.c.Username()
	if name == "" {
		name = "-"
	}
	switch {
	case cause == nil:
		s.srv.logger.Printf("[session] %s %s: %s → %s", s.c.id, name, from, to)
	case isExpectedClose(cause):
		s.srv.logger.Printf("[session] %s %s: %s → %s (%v)", s.c.id, name, from, to, cause)
	default:
		s.srv.logger.Printf("[session] %s %s: %s → %s, error: %v", s.c.id, name, from, to, cause)
	}
}

// send queues a line for this client.  A full queue disconnects the client,
// as it would for a line routed from another member.
func (s *session) send(line string) {
	if err := s.c.enqueue(line); errors.Is(err, errQueueFull) {
		s.srv.logger.Printf("[session] %s: outbound queue full, disconnecting", s.c.id)
		s.c.kick()
	}
}

func (s *session) readLine() (string, error) {
	s.c.conn.SetReadDeadline(time.Now().Add(s.srv.cfg.IdleTimeout))
	line, err := s.c.conn.ReadLine()
	if errors.Is(err, transport.ErrLineTooLong) {
		s.send(protocol.Errorf("line too long (max %d bytes)", s.srv.cfg.MaxLineLength))
	}
	return line, err
}

// ---------------------------------------------------------------------------
// AwaitingHandshake
// ---------------------------------------------------------------------------

// handshake obtains a unique username and then a room.  Name collisions and
// invalid input re-prompt; only a lost connection or /quit ends it.
func (s *session) handshake() error {
	name, err := s.claimName()
	if err != nil {
		return err
	}
	s.c.setUsername(name)

	for {
		s.send(protocol.PromptRoom)
		line, err := s.readLine()
		if err != nil {
			return err
		}
		if isQuit(line) {
			s.send(protocol.Bye())
			return errQuit
		}
		if err := s.join(strings.TrimSpace(line)); err != nil {
			s.send(protocol.Error(err.Error()))
			continue
		}
		return nil
	}
}

func (s *session) claimName() (string, error) {
	for {
		s.send(protocol.PromptUsername)
		line, err := s.readLine()
		if err != nil {
			return "", err
		}
		if isQuit(line) {
			s.send(protocol.Bye())
			return "", errQuit
		}
		name := strings.TrimSpace(line)
		if err := protocol.ValidateName(name); err != nil {
			s.send(protocol.Error(err.Error()))
			continue
		}
		if err := s.srv.names.Register(name, s.c.id); err != nil {
			if errors.Is(err, ErrNameTaken) {
				s.send(protocol.NameTaken(name))
			} else {
				s.send(protocol.Error(err.Error()))
			}
			continue
		}
		return name, nil
	}
}

func (s *session) releaseName() {
	s.srv.names.Unregister(s.c.id)
}

func isQuit(line string) bool {
	cmd, err := protocol.ParseCommand(strings.TrimSpace(line))
	return err == nil && cmd.Type == protocol.TypeQuit
}

// join places the client in room, announces it to the existing members and
// sends the joiner its acknowledgement and roster.
func (s *session) join(room string) error {
	if err := protocol.ValidateRoom(room); err != nil {
		return fmt.Errorf("%w: %v", ErrRoomJoin, err)
	}
	name := s.c.Username()
	s.send(protocol.Welcome(room, name))
	others, err := s.srv.rooms.Join(room, Member{ID: s.c.id, Username: name})
	if err != nil {
		return err
	}
	s.c.setRoom(room)
	s.srv.router.Route(s.c.id, room, protocol.Joined(name))
	s.send(protocol.Roster(room, usernames(others)))
	return nil
}

// ---------------------------------------------------------------------------
// Active
// ---------------------------------------------------------------------------

// serve handles lines until the connection fails or the client quits.
func (s *session) serve() error {
	for {
		line, err := s.readLine()
		if err != nil {
			return err
		}

		cmd, err := protocol.ParseCommand(line)
		switch {
		case errors.Is(err, protocol.ErrEmptyLine):
			continue
		case err != nil:
			s.send(protocol.Error(err.Error()))
			continue
		}

		switch cmd.Type {
		case protocol.TypeChat:
			s.chat(cmd.Arg)
		case protocol.TypeRoom:
			s.switchRoom(cmd.Arg)
		case protocol.TypeWho:
			room := s.c.Room()
			others := s.srv.rooms.Members(room)
			s.send(protocol.Roster(room, usernames(without(others, s.c.id))))
		case protocol.TypeRooms:
			s.send(protocol.RoomList(s.srv.rooms.Rooms()))
		case protocol.TypeHelp:
			s.send(protocol.Help())
		case protocol.TypeQuit:
			s.send(protocol.Bye())
			return errQuit
		}
	}
}

func (s *session) chat(text string) {
	// Wait, not Allow: the sender is paced by not reading, and loses nothing.
	if s.limiter != nil {
		if err := s.limiter.Wait(s.c.ctx); err != nil {
			return
		}
	}
	s.srv.router.Route(s.c.id, s.c.Room(), protocol.Chat(s.c.Username(), text))
}

func (s *session) switchRoom(target string) {
	if err := protocol.ValidateRoom(target); err != nil {
		s.send(protocol.Error(fmt.Errorf("%w: %v", ErrRoomJoin, err).Error()))
		return
	}
	old := s.c.Room()
	if target == old {
		s.send(protocol.Errorf("already in %s", old))
		return
	}

	name := s.c.Username()
	s.srv.rooms.Leave(old, s.c.id)
	s.c.setRoom("")
	s.srv.router.Route(s.c.id, old, protocol.Left(name))

	if err := s.join(target); err != nil {
		s.send(protocol.Error(err.Error()))
	}
}

func without(members []Member, id ConnID) []Member {
	out := members[:0:0]
	for _, m := range members {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Disconnecting
// ---------------------------------------------------------------------------

// teardown removes the client from both registries and tells the rest of the
// room.  It never waits on another peer.
func (s *session) teardown() {
	if room := s.c.Room(); room != "" {
		s.srv.rooms.Leave(room, s.c.id)
		s.c.setRoom("")
		s.srv.router.Route(s.c.id, room, protocol.Left(s.c.Username()))
	}
	s.releaseName()
}

// isExpectedClose reports errors that are a normal end of a connection rather
// than something worth logging loudly.
func isExpectedClose(err error) bool {
	return err == nil || errors.Is(err, errQuit) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
