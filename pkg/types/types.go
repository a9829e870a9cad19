package types

import (
	"sort"
	"time"
)

// Inbound event names accepted on the WebSocket channel
const (
	EventUserJoin         = "user_join"
	EventChangeRoom       = "change_room"
	EventSendMessage      = "send_message"
	EventSendFileMessage  = "send_file_message"
	EventPrivateMessage   = "private_message"
	EventTyping           = "typing"
	EventStopTyping       = "stop_typing"
	EventAddReaction      = "add_reaction"
	EventRemoveReaction   = "remove_reaction"
	EventMarkMessageRead  = "mark_message_read"
	// EventMarkPrivateRead is the older name for marking a private message read
	EventMarkPrivateRead  = "mark_private_message_read"
	EventMarkAllRead      = "mark_all_read"
	EventCreateRoom       = "create_room"
	EventLoadMoreMessages = "load_more_messages"
)

// Outbound event names emitted by the server
const (
	EventRoomUsers           = "room_users"
	EventRoomList            = "room_list"
	EventRoomCreated         = "room_created"
	EventRoomChanged         = "room_changed"
	EventReceiveMessage      = "receive_message"
	EventTypingUsers         = "typing_users"
	EventReactionUpdated     = "reaction_updated"
	EventReadReceiptUpdated  = "read_receipt_updated"
	EventAllMessagesRead     = "all_messages_read"
	EventMoreMessagesLoaded  = "more_messages_loaded"
	EventSessionReplaced     = "session_replaced"
	EventPrivateMessageError = "private_message_error"
	EventRoomError           = "room_error"
	EventReactionError       = "reaction_error"
	EventMessageError        = "message_error"
)

const (
	// SystemSender is the sender name stamped on join/leave notices.
	SystemSender = "System"

	// DefaultRoom is used when a registration names no room.
	DefaultRoom = "general"

	// MaxFileSize is the ceiling for inline file payloads (10 MiB).
	MaxFileSize = 10 << 20
)

// Session binds one live connection to a display name and its current room.
// Owned exclusively by session.Registry; callers only ever see copies.
type Session struct {
	ConnectionID string    `json:"connectionId"`
	Username     string    `json:"username"`
	CurrentRoom  string    `json:"currentRoom"`
	ConnectedAt  time.Time `json:"connectedAt"`
}

// FileRef carries the metadata and inline body of a shared file.
type FileRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Data string `json:"data,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Message is a room message (text, file, or system notice).
// Text, sender and timestamp never change after creation; only Reactions
// and ReadBy are mutated, and only through set operations.
type Message struct {
	ID        string             `json:"id"`
	Sender    string             `json:"sender"`
	Text      string             `json:"text,omitempty"`
	File      *FileRef           `json:"file,omitempty"`
	Room      string             `json:"room"`
	Timestamp time.Time          `json:"timestamp"`
	System    bool               `json:"system,omitempty"`
	Private   bool               `json:"private,omitempty"`
	To        string             `json:"to,omitempty"`
	Reactions map[string]UserSet `json:"reactions"`
	ReadBy    UserSet            `json:"readBy"`
}

// PrivateMessage is the wire shape of a direct message between two users.
type PrivateMessage struct {
	ID        string             `json:"id"`
	From      string             `json:"from"`
	To        string             `json:"to"`
	Text      string             `json:"text"`
	Timestamp time.Time          `json:"timestamp"`
	Reactions map[string]UserSet `json:"reactions,omitempty"`
	ReadBy    UserSet            `json:"readBy,omitempty"`
}

// FileMessage is the inbound payload of send_file_message.
type FileMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	Data      string    `json:"data"`
	Sender    string    `json:"sender"`
	Room      string    `json:"room"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	privateRoomPrefix   = "dm:"
	privateKeySeparator = ":"
)

// PrivateRoomKey names the conceptual room shared by two participants.
// The pair is unordered: PrivateRoomKey(a, b) == PrivateRoomKey(b, a).
func PrivateRoomKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return privateRoomPrefix + pair[0] + privateKeySeparator + pair[1]
}

// Participants returns the usernames allowed to see a stored message.
// Room messages return nil; the audience is the room membership instead.
func (m *Message) Participants() []string {
	if !m.Private {
		return nil
	}
	if m.Sender == m.To {
		return []string{m.Sender}
	}
	return []string{m.Sender, m.To}
}

// AsPrivate converts a stored private message back to its wire shape.
func (m *Message) AsPrivate() *PrivateMessage {
	return &PrivateMessage{
		ID:        m.ID,
		From:      m.Sender,
		To:        m.To,
		Text:      m.Text,
		Timestamp: m.Timestamp,
		Reactions: m.Reactions,
		ReadBy:    m.ReadBy,
	}
}

// AddReaction records username under emoji. It reports whether the set changed.
func (m *Message) AddReaction(emoji, username string) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string]UserSet)
	}
	set := m.Reactions[emoji]
	changed := set.Add(username)
	m.Reactions[emoji] = set
	return changed
}

// RemoveReaction drops username from emoji, deleting the emoji key once empty.
func (m *Message) RemoveReaction(emoji, username string) bool {
	set, ok := m.Reactions[emoji]
	if !ok {
		return false
	}
	changed := set.Remove(username)
	if len(set) == 0 {
		delete(m.Reactions, emoji)
	} else {
		m.Reactions[emoji] = set
	}
	return changed
}

// MarkReadBy adds username to the readBy set.
func (m *Message) MarkReadBy(username string) bool {
	return m.ReadBy.Add(username)
}
