package server

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNameTaken    = errors.New("name taken")
	ErrAlreadyNamed = errors.New("connection already has a name")
)

// NameRegistry enforces global uniqueness of display names, independent of
// room membership.  Names are case-sensitive.
type NameRegistry struct {
	mu     sync.Mutex
	byName map[string]ConnID
	byID   map[ConnID]string
}

func NewNameRegistry() *NameRegistry {
	return &NameRegistry{
		byName: make(map[string]ConnID),
		byID:   make(map[ConnID]string),
	}
}

// Register claims name for id as a single check-and-insert.  Registering the
// name id already holds succeeds without change.
func (r *NameRegistry) Register(name string, id ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.byName[name]; ok {
		if holder == id {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrNameTaken, name)
	}
	if old, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyNamed, old)
	}
	r.byName[name] = id
	r.byID[id] = name
	return nil
}

// Unregister releases whatever name id holds.  It is a no-op when id holds
// none.
func (r *NameRegistry) Unregister(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.byID[id]; ok {
		delete(r.byID, id)
		delete(r.byName, name)
	}
}

func (r *NameRegistry) Lookup(name string) (ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	return id, ok
}

func (r *NameRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}

// Names returns every registered name in sorted order.
func (r *NameRegistry) Names() []string {
	r.mu.Lock()
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	r.mu.Unlock()

	sort.Strings(out)
	return out
}
