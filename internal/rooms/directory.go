package rooms

import (
	"slices"
	"sync"

	"chatconnect/pkg/types"
)

// DefaultRooms seeds every new directory unless configuration overrides it
var DefaultRooms = []string{"general", "nairobi", "mombasa", "kisumu", "coastal"}

// Membership is the live view the directory derives counts from
type Membership interface {
	UsersInRoom(room string) []string
	Rooms() []string
}

// RoomInfo is a room name with its live user count
type RoomInfo struct {
	Name      string `json:"name"`
	UserCount int    `json:"userCount"`
}

// Directory holds well-known and dynamically created room names
// FUNCTIONAL DISCOVERY: Counts are recomputed from Membership on every call so
// they can never drift from the actual connection set.
type Directory struct {
	mu      sync.RWMutex
	names   []string // creation order
	members Membership
}

// NewDirectory creates a directory seeded with seed (DefaultRooms when empty)
func NewDirectory(members Membership, seed []string) *Directory {
	if len(seed) == 0 {
		seed = DefaultRooms
	}
	d := &Directory{members: members}
	for _, name := range seed {
		if name, err := types.ValidateRoomName(name); err == nil && !slices.Contains(d.names, name) {
			d.names = append(d.names, name)
		}
	}
	return d
}

// Create adds a room, failing with types.ErrDuplicateRoom when it already exists
// A room that exists only implicitly (some session sits in it) counts as existing.
func (d *Directory) Create(name string) (string, error) {
	name, err := types.ValidateRoomName(name)
	if err != nil {
		return "", err
	}

	if d.members != nil && slices.Contains(d.members.Rooms(), name) {
		return "", types.ErrDuplicateRoom
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if slices.Contains(d.names, name) {
		return "", types.ErrDuplicateRoom
	}
	d.names = append(d.names, name)
	return name, nil
}

// Exists reports whether name is known, explicitly or through a live session
func (d *Directory) Exists(name string) bool {
	return slices.Contains(d.List(), name)
}

// List returns known rooms in creation order, then rooms referenced only by sessions
func (d *Directory) List() []string {
	d.mu.RLock()
	rooms := slices.Clone(d.names)
	d.mu.RUnlock()

	if d.members == nil {
		return rooms
	}
	for _, room := range d.members.Rooms() {
		if !slices.Contains(rooms, room) {
			rooms = append(rooms, room)
		}
	}
	return rooms
}

// Counts lists every room with its current user count
func (d *Directory) Counts() []RoomInfo {
	rooms := d.List()
	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		count := 0
		if d.members != nil {
			count = len(d.members.UsersInRoom(room))
		}
		infos = append(infos, RoomInfo{Name: room, UserCount: count})
	}
	return infos
}
