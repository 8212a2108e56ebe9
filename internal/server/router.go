package server

import (
	"errors"
	"log"
	"sync"
)

// connTable resolves connection IDs to live Clients.  Registries store IDs
// only; this is the one place that maps an ID back to its handle.
type connTable struct {
	mu sync.RWMutex
	m  map[ConnID]*Client
}

func newConnTable() *connTable {
	return &connTable{m: make(map[ConnID]*Client)}
}

func (t *connTable) add(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[c.id] = c
}

func (t *connTable) remove(id ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, id)
}

func (t *connTable) get(id ConnID) (*Client, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.m[id]
	return c, ok
}

func (t *connTable) all() []*Client {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Client, 0, len(t.m))
	for _, c := range t.m {
		out = append(out, c)
	}
	return out
}

func (t *connTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Router fans a line out to the members of one room.
//
// Route takes the room lock only long enough to snapshot the member list and
// enqueues after releasing it.  Enqueueing never blocks: when a recipient's
// outbound queue is full the line is dropped for that recipient and the
// recipient is evicted, so one slow reader cannot stall its room.  Senders are
// never told about drops.
//
// Lines routed one after another by the same caller reach every recipient in
// that order.  Concurrent Route calls for the same room may interleave across
// recipients; each recipient's queue is still FIFO.
type Router struct {
	rooms  *RoomRegistry
	conns  *connTable
	logger *log.Logger
}

func newRouter(rooms *RoomRegistry, conns *connTable, logger *log.Logger) *Router {
	return &Router{rooms: rooms, conns: conns, logger: logger}
}

// Route queues line for every member of room except sender and returns how
// many recipients accepted it.  Pass an empty sender to include everyone.
func (rt *Router) Route(sender ConnID, room, line string) int {
	members := rt.rooms.Members(room)

	delivered := 0
	for _, m := range members {
		if m.ID == sender {
			continue
		}
		c, ok := rt.conns.get(m.ID)
		if !ok {
			continue
		}
		err := c.enqueue(line)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, errQueueFull):
			rt.logger.Printf("[router] dropped slow client %s (%s) in %s", m.Username, m.ID, room)
			c.kick()
		}
	}
	return delivered
}
