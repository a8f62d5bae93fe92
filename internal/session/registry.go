package session

import (
	"context"
	"sync"
	"time"

	"notecollab/internal/models"
)

// JanitorInterval is how often empty rooms are swept.
const JanitorInterval = 30 * time.Second

// Registry owns the room map and the connection-to-room assignment. A
// connection is in at most one room at a time.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	current map[string]*Room // connection id -> room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		current: make(map[string]*Room),
	}
}

// Join moves the client into the room for noteID, creating it if absent. It
// returns the room, its presence after the insert, and the previous room when
// the client switched so callers can notify it. Permission checks happen
// before this is called.
func (reg *Registry) Join(c *Client, noteID string) (room *Room, presence []models.PresenceEntry, prev *Room) {
	reg.mu.Lock()
	if old, ok := reg.current[c.ID]; ok && old.ID != noteID {
		prev = old
	}

	room, ok := reg.rooms[noteID]
	if !ok {
		room = NewRoom(noteID)
		reg.rooms[noteID] = room
	}
	reg.current[c.ID] = room
	if prev != nil {
		prev.Leave(c)
	}
	room.Join(c)
	reg.mu.Unlock()

	return room, room.Presence(), prev
}

// Leave removes the client from its current room, if any. The room is
// returned so callers can notify the remaining members; an emptied room stays
// registered until the janitor sweeps it.
func (reg *Registry) Leave(c *Client) (*Room, bool) {
	reg.mu.Lock()
	room, ok := reg.current[c.ID]
	if ok {
		delete(reg.current, c.ID)
	}
	reg.mu.Unlock()

	if !ok {
		return nil, false
	}
	room.Leave(c)
	return room, true
}

// RoomOf reports which note the client currently occupies.
func (reg *Registry) RoomOf(clientID string) (string, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.current[clientID]
	if !ok {
		return "", false
	}
	return room.ID, true
}

// Room returns the live room for a note id.
func (reg *Registry) Room(noteID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	room, ok := reg.rooms[noteID]
	return room, ok
}

// Presence returns the presence summaries for a note. Missing rooms yield an
// empty list.
func (reg *Registry) Presence(noteID string) []models.PresenceEntry {
	room, ok := reg.Room(noteID)
	if !ok {
		return []models.PresenceEntry{}
	}
	return room.Presence()
}

// RoomCount reports the number of registered rooms, empty ones included.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Sweep removes rooms with no members and returns how many were removed.
// This is the only path that deletes a room.
func (reg *Registry) Sweep() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	removed := 0
	for id, room := range reg.rooms {
		if room.Size() == 0 {
			delete(reg.rooms, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps empty rooms on the given interval until ctx is done.
func (reg *Registry) RunJanitor(ctx context.Context, interval time.Duration, onSweep func(removed, remaining int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := reg.Sweep()
			if onSweep != nil {
				onSweep(removed, reg.RoomCount())
			}
		case <-ctx.Done():
			return
		}
	}
}
