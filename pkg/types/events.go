package types

import "encoding/json"

// Envelope is the frame exchanged over the WebSocket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEnvelope is the write-side twin of Envelope; Data is marshaled lazily.
type OutboundEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Inbound payloads

type JoinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room,omitempty"`
}

// ChangeRoomPayload accepts both "room" and the older "newRoom" key.
type ChangeRoomPayload struct {
	Username string `json:"username,omitempty"`
	Room     string `json:"room,omitempty"`
	NewRoom  string `json:"newRoom,omitempty"`
}

// Target returns whichever room key the client populated.
func (p ChangeRoomPayload) Target() string {
	if p.Room != "" {
		return p.Room
	}
	return p.NewRoom
}

type TypingPayload struct {
	Username string `json:"username,omitempty"`
	Room     string `json:"room"`
}

type ReactionPayload struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
	// ReactionType is the name form (like, love, ...) used by older clients.
	ReactionType string `json:"reactionType,omitempty"`
	Username     string `json:"username,omitempty"`
}

// Key resolves the reaction key, translating named reactions to their emoji.
func (p ReactionPayload) Key() string {
	if p.Emoji != "" {
		return p.Emoji
	}
	if emoji, ok := ReactionTypes[p.ReactionType]; ok {
		return emoji
	}
	return p.ReactionType
}

type ReadPayload struct {
	MessageID string `json:"messageId"`
	Username  string `json:"username,omitempty"`
}

type MarkAllReadPayload struct {
	Room string `json:"room"`
}

type CreateRoomPayload struct {
	RoomName string `json:"roomName"`
}

type LoadMorePayload struct {
	Room  string `json:"room"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// Outbound payloads

type RoomUsersPayload struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

type RoomListPayload struct {
	Rooms []string `json:"rooms"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type TypingUsersPayload struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

type ReactionUpdatedPayload struct {
	MessageID string             `json:"messageId"`
	Room      string             `json:"room"`
	Reactions map[string]UserSet `json:"reactions"`
}

type ReadReceiptUpdatedPayload struct {
	MessageID string  `json:"messageId"`
	Room      string  `json:"room"`
	ReadBy    UserSet `json:"readBy"`
}

type AllMessagesReadPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

type MoreMessagesPayload struct {
	Room     string     `json:"room"`
	Page     int        `json:"page"`
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"hasMore"`
}

type SessionReplacedPayload struct {
	Username string `json:"username"`
}

// ErrorPayload is returned to the originating connection only.
type ErrorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
	Code  string `json:"code"`
	To    string `json:"to,omitempty"`
}

// ReactionTypes maps reaction names to the emoji stored on messages.
var ReactionTypes = map[string]string{
	"like":  "👍",
	"love":  "❤️",
	"laugh": "😂",
	"wow":   "😮",
	"sad":   "😢",
	"angry": "😠",
}
