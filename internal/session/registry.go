package session

import (
	"iter"
	"log"
	"slices"
	"sync"
	"time"

	"chatconnect/pkg/types"
)

// Registry is the single source of truth for who is connected and where
// ARCHITECTURAL DISCOVERY: Sessions are indexed by connection id only; room
// membership is always a filter over live sessions, never a stored list.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*types.Session // connID -> Session
	order       []string                  // connection order for stable membership views
	defaultRoom string
}

// NewRegistry creates an empty registry; sessions without a room land in defaultRoom
func NewRegistry(defaultRoom string) *Registry {
	if defaultRoom == "" {
		defaultRoom = types.DefaultRoom
	}
	return &Registry{
		sessions:    make(map[string]*types.Session),
		defaultRoom: defaultRoom,
	}
}

// Register creates the session for connID, overwriting any earlier one
// FUNCTIONAL DISCOVERY: Re-registration on the same connection is not an error;
// the previous session is returned so callers can refresh its old room.
func (r *Registry) Register(connID, username, room string) (types.Session, bool) {
	if room == "" {
		room = r.defaultRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var previous types.Session
	existing, replaced := r.sessions[connID]
	if replaced {
		previous = *existing
		existing.Username = username
		existing.CurrentRoom = room
		return previous, true
	}

	r.sessions[connID] = &types.Session{
		ConnectionID: connID,
		Username:     username,
		CurrentRoom:  room,
		ConnectedAt:  time.Now(),
	}
	r.order = append(r.order, connID)
	return previous, false
}

// SetRoom moves an existing session and returns the room it left
func (r *Registry) SetRoom(connID, room string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[connID]
	if !exists {
		log.Printf("SetRoom ignored: no session for connection %s", connID)
		return "", false
	}
	previous := session.CurrentRoom
	session.CurrentRoom = room
	return previous, true
}

// Remove deletes the session and returns it so callers can emit leave notices
// Idempotent - removing an unknown connection returns false.
func (r *Registry) Remove(connID string) (types.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, exists := r.sessions[connID]
	if !exists {
		return types.Session{}, false
	}
	delete(r.sessions, connID)
	if idx := slices.Index(r.order, connID); idx >= 0 {
		r.order = slices.Delete(r.order, idx, idx+1)
	}
	return *session, true
}

// Get returns a copy of the session bound to connID
func (r *Registry) Get(connID string) (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[connID]
	if !exists {
		return types.Session{}, false
	}
	return *session, true
}

// Members yields the sessions currently in room, in connection order
// The view is a snapshot taken when iteration starts, so yield may call back into the registry.
func (r *Registry) Members(room string) iter.Seq[types.Session] {
	return func(yield func(types.Session) bool) {
		for _, session := range r.snapshot() {
			if session.CurrentRoom != room {
				continue
			}
			if !yield(session) {
				return
			}
		}
	}
}

// UsersInRoom returns usernames whose session is currently in room
func (r *Registry) UsersInRoom(room string) []string {
	users := make([]string, 0)
	for session := range r.Members(room) {
		users = append(users, session.Username)
	}
	return users
}

// ConnectionsInRoom returns the connection ids currently in room
func (r *Registry) ConnectionsInRoom(room string) []string {
	conns := make([]string, 0)
	for session := range r.Members(room) {
		conns = append(conns, session.ConnectionID)
	}
	return conns
}

// FindConnectionByUsername returns the first connection whose session carries username
func (r *Registry) FindConnectionByUsername(username string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, connID := range r.order {
		if r.sessions[connID].Username == username {
			return connID, true
		}
	}
	return "", false
}

// Rooms returns every distinct room referenced by a live session, in connection order
func (r *Registry) Rooms() []string {
	var rooms []string
	for _, session := range r.snapshot() {
		if !slices.Contains(rooms, session.CurrentRoom) {
			rooms = append(rooms, session.CurrentRoom)
		}
	}
	return rooms
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) snapshot() []types.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]types.Session, 0, len(r.order))
	for _, connID := range r.order {
		sessions = append(sessions, *r.sessions[connID])
	}
	return sessions
}
