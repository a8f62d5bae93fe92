package session

import (
	"sort"
	"sync"
	"time"

	"notecollab/internal/models"
)

// Room tracks the connections currently viewing one note, keyed by
// connection id.
type Room struct {
	ID string

	mu      sync.Mutex
	members map[string]*member
}

type member struct {
	client   *Client
	joinedAt time.Time
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[string]*member),
	}
}

func (r *Room) Join(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[c.ID] = &member{client: c, joinedAt: time.Now().UTC()}
}

// Leave removes the client and returns the remaining member count.
func (r *Room) Leave(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, c.ID)
	return len(r.members)
}

func (r *Room) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Presence lists the current membership in join order.
func (r *Room) Presence() []models.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]models.PresenceEntry, 0, len(r.members))
	for _, m := range r.members {
		entries = append(entries, models.PresenceEntry{User: m.client.User, JoinedAt: m.joinedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].User.ID < entries[j].User.ID
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})
	return entries
}

// Broadcast sends a frame to every member except the sender. A nil sender
// reaches everyone.
func (r *Room) Broadcast(sender *Client, frame models.WSFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members {
		if sender != nil && m.client.ID == sender.ID {
			continue
		}
		m.client.Send(frame)
	}
}

// BroadcastAll sends a frame to every member including the sender.
func (r *Room) BroadcastAll(frame models.WSFrame) {
	r.Broadcast(nil, frame)
}
