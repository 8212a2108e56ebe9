package server

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"roomchat/internal/protocol"
)

var (
	ErrRoomJoin      = errors.New("room join failed")
	ErrAlreadyInRoom = errors.New("already in a room")
)

// Member is one occupant of a room as seen in a snapshot.
type Member struct {
	ID       ConnID
	Username string
}

// RoomRegistry maps room names to their members.  Rooms are created on first
// join and removed as soon as the last member leaves; an empty room never
// stays in the map.
//
// A connection is a member of at most one room.  Moving between rooms is a
// Leave followed by a Join, so an observer may briefly see the connection in
// neither room but never in both.
type RoomRegistry struct {
	mu     sync.RWMutex
	rooms  map[string]map[ConnID]string // room → id → username
	where  map[ConnID]string            // id → room
	logger *log.Logger
}

func NewRoomRegistry(logger *log.Logger) *RoomRegistry {
	if logger == nil {
		logger = log.Default()
	}
	return &RoomRegistry{
		rooms:  make(map[string]map[ConnID]string),
		where:  make(map[ConnID]string),
		logger: logger,
	}
}

// Join adds m to room and returns the members that were present before the
// join, sorted by username.  Joining the room m is already in is a no-op that
// still returns the other members.
func (r *RoomRegistry) Join(room string, m Member) ([]Member, error) {
	if err := protocol.ValidateRoom(room); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRoomJoin, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.where[m.ID]; ok && cur != room {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInRoom, cur)
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[ConnID]string)
		r.rooms[room] = members
		r.logger.Printf("[rooms] created %s", room)
	}
	before := snapshot(members, m.ID)
	members[m.ID] = m.Username
	r.where[m.ID] = room
	return before, nil
}

// Leave removes id from room and returns how many members remain.  It is a
// no-op when id is not in room.
func (r *RoomRegistry) Leave(room string, id ConnID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return 0
	}
	if _, in := members[id]; in {
		delete(members, id)
		delete(r.where, id)
	}
	if len(members) == 0 {
		delete(r.rooms, room)
		r.logger.Printf("[rooms] %s is empty, removing", room)
	}
	return len(members)
}

// Members returns a consistent snapshot of room's occupants, sorted by
// username.  It returns nil for a room that does not exist.
func (r *RoomRegistry) Members(room string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}
	return snapshot(members, "")
}

// RoomOf reports the room id is currently in.
func (r *RoomRegistry) RoomOf(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.where[id]
	return room, ok
}

// Rooms lists every live room with its occupancy, sorted by name.
func (r *RoomRegistry) Rooms() []protocol.RoomInfo {
	r.mu.RLock()
	out := make([]protocol.RoomInfo, 0, len(r.rooms))
	for name, members := range r.rooms {
		out = append(out, protocol.RoomInfo{Name: name, Members: len(members)})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// snapshot copies members, skipping exclude.  Caller holds the lock.
func snapshot(members map[ConnID]string, exclude ConnID) []Member {
	out := make([]Member, 0, len(members))
	for id, name := range members {
		if id == exclude {
			continue
		}
		out = append(out, Member{ID: id, Username: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func usernames(members []Member) []string {
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Username
	}
	return out
}
