// Package registry tracks connected participants and which room each one
// belongs to. It is the shared index between the transport layer and the
// room coordinator.
package registry

import (
	"sync"
	"time"
)

// Participant is one connected client. ID is the connection-scoped identity;
// UserID is the durable identity supplied by the auth collaborator, or a
// synthetic guest id when absent.
type Participant struct {
	ID       string
	UserID   string
	Name     string
	Avatar   string
	IsGuest  bool
	JoinedAt time.Time
	RoomID   string
}

// Registry is a concurrency-safe participant index.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*Participant
}

func New() *Registry {
	return &Registry{
		participants: make(map[string]*Participant),
	}
}

// Add registers a participant, replacing any previous entry with the same ID.
// JoinedAt is stamped on entry unless the caller already set it.
func (r *Registry) Add(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now()
	}
	r.participants[p.ID] = &p
}

// Get returns a copy of the participant, if connected.
func (r *Registry) Get(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Remove deletes the participant and returns its last known state.
func (r *Registry) Remove(id string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false
	}
	delete(r.participants, id)
	return *p, true
}

// SetProfile replaces the identity behind a connection. An empty userID
// marks the participant as a guest.
func (r *Registry) SetProfile(id, name, avatar, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[id]; ok {
		p.Name = name
		p.Avatar = avatar
		p.UserID = userID
		p.IsGuest = userID == ""
	}
}

// SetRoom records which room the participant currently occupies. An empty
// roomID clears the association.
func (r *Registry) SetRoom(id, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[id]; ok {
		p.RoomID = roomID
	}
}

// Count reports the number of connected participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// IDs returns the ids of every connected participant.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.participants))
	for id := range r.participants {
		ids = append(ids, id)
	}
	return ids
}
