package presence

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatconnect/internal/rooms"
	"chatconnect/internal/session"
	"chatconnect/pkg/interfaces"
	"chatconnect/pkg/types"
)

// Tracker owns session lifecycle, room moves and typing state
// ARCHITECTURAL DISCOVERY: Every membership broadcast is recomputed from the
// registry after the mutation it reports, so a departed user can never appear
// in the snapshot announcing their departure.
type Tracker struct {
	registry  *session.Registry
	directory *rooms.Directory
	store     interfaces.MessageStore
	emitter   interfaces.Emitter

	mu     sync.Mutex
	typing map[string]types.UserSet // room -> usernames
}

var _ interfaces.PresenceTracker = (*Tracker)(nil)

// NewTracker creates a tracker over the shared registry
func NewTracker(registry *session.Registry, directory *rooms.Directory, store interfaces.MessageStore, emitter interfaces.Emitter) *Tracker {
	return &Tracker{
		registry:  registry,
		directory: directory,
		store:     store,
		emitter:   emitter,
		typing:    make(map[string]types.UserSet),
	}
}

// Register binds username to connID and places the session in room
// FUNCTIONAL DISCOVERY: A username held by another live connection is taken
// over by the newest one. This is how a client that reconnects before the
// server notices its old socket died gets its identity back.
func (t *Tracker) Register(ctx context.Context, connID, username, room string) error {
	username, err := types.ValidateUsername(username)
	if err != nil {
		return err
	}
	if room != "" {
		if room, err = types.ValidateRoomName(room); err != nil {
			return err
		}
	}

	for {
		holder, ok := t.registry.FindConnectionByUsername(username)
		if !ok || holder == connID {
			break
		}
		t.supersede(holder)
	}

	previous, replaced := t.registry.Register(connID, username, room)
	current, _ := t.registry.Get(connID)
	log.Printf("User registered: %s on connection %s in %s", username, connID, current.CurrentRoom)

	if replaced {
		if previous.Username != username {
			t.purgeTyping(previous.Username)
		}
		if previous.CurrentRoom != current.CurrentRoom {
			t.clearTyping(previous.CurrentRoom, previous.Username)
			t.broadcastMembership(previous.CurrentRoom)
		}
	}

	t.broadcastMembership(current.CurrentRoom)
	t.announce(ctx, current.CurrentRoom, fmt.Sprintf("%s joined the room", username))

	t.send(connID, types.EventRoomList, types.RoomListPayload{Rooms: t.directory.List()})
	t.send(connID, types.EventRoomChanged, types.RoomPayload{Room: current.CurrentRoom})
	return nil
}

// Join moves the connection's session into room
func (t *Tracker) Join(ctx context.Context, connID, room string) error {
	room, err := types.ValidateRoomName(room)
	if err != nil {
		return err
	}
	sess, ok := t.registry.Get(connID)
	if !ok {
		return types.ErrNotRegistered
	}
	if sess.CurrentRoom == room {
		return nil
	}

	previousRoom, ok := t.registry.SetRoom(connID, room)
	if !ok {
		return types.ErrNotRegistered
	}
	log.Printf("User %s moved from %s to %s", sess.Username, previousRoom, room)

	t.clearTyping(previousRoom, sess.Username)
	t.broadcastMembership(previousRoom)
	t.broadcastMembership(room)
	t.announce(ctx, room, fmt.Sprintf("%s entered the room", sess.Username))

	t.send(connID, types.EventRoomChanged, types.RoomPayload{Room: room})
	return nil
}

// Disconnect removes the session, clears its typing state everywhere and announces the departure
// Unknown or already removed connections are ignored.
func (t *Tracker) Disconnect(ctx context.Context, connID string) error {
	sess, ok := t.registry.Remove(connID)
	if !ok {
		return nil
	}
	log.Printf("User disconnected: %s from %s", sess.Username, sess.CurrentRoom)

	t.purgeTyping(sess.Username)
	t.broadcastMembership(sess.CurrentRoom)
	t.announce(ctx, sess.CurrentRoom, fmt.Sprintf("%s left the room", sess.Username))
	return nil
}

// Typing adds the connection's user to room's typing set and broadcasts the set
// Only the session's current room is accepted; Join clears the room it leaves.
func (t *Tracker) Typing(ctx context.Context, connID, room string) error {
	sess, room, err := t.typingTarget(connID, room)
	if err != nil {
		return err
	}
	if room != sess.CurrentRoom {
		return fmt.Errorf("%w: %s is not in %s", types.ErrInvalidRoom, sess.Username, room)
	}

	t.mu.Lock()
	set := t.typing[room]
	set.Add(sess.Username)
	t.typing[room] = set
	t.mu.Unlock()

	t.broadcastTyping(room)
	return nil
}

// StopTyping removes the connection's user from room's typing set and broadcasts the set
func (t *Tracker) StopTyping(ctx context.Context, connID, room string) error {
	sess, room, err := t.typingTarget(connID, room)
	if err != nil {
		return err
	}
	t.clearTyping(room, sess.Username)
	t.broadcastTyping(room)
	return nil
}

// TypingUsers returns a copy of room's typing set
func (t *Tracker) TypingUsers(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return []string(t.typing[room].Clone())
}

func (t *Tracker) typingTarget(connID, room string) (types.Session, string, error) {
	sess, ok := t.registry.Get(connID)
	if !ok {
		return sess, "", types.ErrNotRegistered
	}
	if room == "" {
		room = sess.CurrentRoom
	}
	return sess, room, nil
}

// supersede evicts an older connection holding a username that is being re-registered
func (t *Tracker) supersede(connID string) {
	old, ok := t.registry.Remove(connID)
	if !ok {
		return
	}
	log.Printf("Session for %s on connection %s superseded", old.Username, connID)

	t.purgeTyping(old.Username)
	t.broadcastMembership(old.CurrentRoom)
	t.send(connID, types.EventSessionReplaced, types.SessionReplacedPayload{Username: old.Username})
}

// clearTyping removes username from one room, rebroadcasting only if it was there
func (t *Tracker) clearTyping(room, username string) {
	t.mu.Lock()
	set, ok := t.typing[room]
	changed := ok && set.Remove(username)
	if ok && len(set) == 0 {
		delete(t.typing, room)
	} else if ok {
		t.typing[room] = set
	}
	t.mu.Unlock()

	if changed {
		t.broadcastTyping(room)
	}
}

// purgeTyping removes username from every room's typing set
func (t *Tracker) purgeTyping(username string) {
	t.mu.Lock()
	var affected []string
	for room, set := range t.typing {
		if set.Contains(username) {
			affected = append(affected, room)
		}
	}
	t.mu.Unlock()

	slices.Sort(affected)
	for _, room := range affected {
		t.clearTyping(room, username)
	}
}

func (t *Tracker) broadcastTyping(room string) {
	payload := types.TypingUsersPayload{Room: room, Users: t.TypingUsers(room)}
	for _, connID := range t.registry.ConnectionsInRoom(room) {
		t.send(connID, types.EventTypingUsers, payload)
	}
}

func (t *Tracker) broadcastMembership(room string) {
	payload := types.RoomUsersPayload{Room: room, Users: t.registry.UsersInRoom(room)}
	for _, connID := range t.registry.ConnectionsInRoom(room) {
		t.send(connID, types.EventRoomUsers, payload)
	}
}

// announce stores a System message in room and delivers it to the room's members
func (t *Tracker) announce(ctx context.Context, room, text string) {
	message := &types.Message{
		ID:        uuid.NewString(),
		Sender:    types.SystemSender,
		Text:      text,
		Room:      room,
		Timestamp: time.Now(),
		System:    true,
		Reactions: make(map[string]types.UserSet),
		ReadBy:    types.UserSet{},
	}
	if err := t.store.StoreMessage(ctx, message); err != nil {
		log.Printf("Failed to store system message for %s: %v", room, err)
	}
	for _, connID := range t.registry.ConnectionsInRoom(room) {
		t.send(connID, types.EventReceiveMessage, message)
	}
}

func (t *Tracker) send(connID, event string, payload interface{}) {
	if err := t.emitter.Emit(connID, event, payload); err != nil {
		log.Printf("Failed to deliver %s to %s: %v", event, connID, err)
	}
}
