package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatconnect/pkg/types"
)

// Status is the connection state seen by the user
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// transitions lists the legal status changes; anything else is ignored
var transitions = map[Status][]Status{
	StatusDisconnected: {StatusConnecting},
	StatusConnecting:   {StatusConnected, StatusReconnecting, StatusDisconnected},
	StatusConnected:    {StatusReconnecting, StatusDisconnected},
	StatusReconnecting: {StatusConnected, StatusReconnecting, StatusDisconnected},
}

// Sender delivers one outbound event to the server
type Sender interface {
	Send(event string, payload interface{}) error
}

// PageFetcher loads one page of room history out of band
type PageFetcher interface {
	FetchPage(ctx context.Context, room string, page, limit int) (*Page, error)
}

// Page mirrors the GET /messages/{room} response
type Page struct {
	Room     string           `json:"room"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Messages []*types.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

// Options tune the client state
type Options struct {
	WindowSize     int
	TypingDebounce time.Duration
	PageLimit      int
	// OnChange, when set, is called after each applied inbound event or status change
	OnChange func(event string)
}

// DefaultOptions returns the display defaults
func DefaultOptions() Options {
	return Options{
		WindowSize:     50,
		TypingDebounce: time.Second,
		PageLimit:      20,
	}
}

// StatusEvent is the OnChange name used for connection status changes
const StatusEvent = "status"

// State is the client-side mirror of the server's view
// ARCHITECTURAL DISCOVERY: The subscription table is built once in NewState and
// lives as long as the State; reconnecting never re-registers handlers, it only
// replays the join.
type State struct {
	sender   Sender
	options  Options
	handlers map[string]func(json.RawMessage) error

	mu        sync.Mutex
	status    Status
	closed    bool
	username  string
	room      string
	rooms     map[string]*roomHistory
	private   []*types.PrivateMessage
	privateID map[string]*types.PrivateMessage
	roomList  []string
	users     map[string][]string
	typing    map[string][]string
	lastError error

	typingActive bool
	typingRoom   string
	typingTimer  *time.Timer
	typingGen    uint64
}

// NewState creates a disconnected client state that sends through sender
func NewState(sender Sender, options Options) *State {
	defaults := DefaultOptions()
	if options.WindowSize <= 0 {
		options.WindowSize = defaults.WindowSize
	}
	if options.TypingDebounce <= 0 {
		options.TypingDebounce = defaults.TypingDebounce
	}
	if options.PageLimit <= 0 {
		options.PageLimit = defaults.PageLimit
	}

	s := &State{
		sender:    sender,
		options:   options,
		room:      types.DefaultRoom,
		rooms:     make(map[string]*roomHistory),
		privateID: make(map[string]*types.PrivateMessage),
		users:     make(map[string][]string),
		typing:    make(map[string][]string),
	}
	s.handlers = map[string]func(json.RawMessage) error{
		types.EventRoomUsers:           s.onRoomUsers,
		types.EventRoomList:            s.onRoomList,
		types.EventRoomCreated:         s.onRoomCreated,
		types.EventRoomChanged:         s.onRoomChanged,
		types.EventReceiveMessage:      s.onReceiveMessage,
		types.EventPrivateMessage:      s.onPrivateMessage,
		types.EventTypingUsers:         s.onTypingUsers,
		types.EventReactionUpdated:     s.onReactionUpdated,
		types.EventReadReceiptUpdated:  s.onReadReceiptUpdated,
		types.EventAllMessagesRead:     s.onAllMessagesRead,
		types.EventMoreMessagesLoaded:  s.onMoreMessagesLoaded,
		types.EventSessionReplaced:     s.onSessionReplaced,
		types.EventPrivateMessageError: s.onServerError,
		types.EventRoomError:           s.onServerError,
		types.EventReactionError:       s.onServerError,
		types.EventMessageError:        s.onServerError,
	}
	return s
}

// Transport callbacks

// OnConnecting marks the first dial
func (s *State) OnConnecting() {
	s.transition(StatusConnecting)
}

// OnConnect enters connected and replays the join for the last known identity
// FUNCTIONAL DISCOVERY: The server forgets a session the moment its connection
// drops, so every reconnect is a fresh join, never a resume.
func (s *State) OnConnect() {
	s.mu.Lock()
	if !s.setStatus(StatusConnected) {
		s.mu.Unlock()
		return
	}
	if errors.Is(s.lastError, types.ErrTransport) {
		s.lastError = nil
	}
	username, room := s.username, s.room
	s.mu.Unlock()

	s.notify(StatusEvent)
	if username != "" {
		s.send(types.EventUserJoin, types.JoinPayload{Username: username, Room: room})
	}
}

// OnDisconnect leaves connected; the transport is expected to retry
func (s *State) OnDisconnect(reason string) {
	s.mu.Lock()
	s.cancelTypingLocked()
	s.users = make(map[string][]string)
	s.typing = make(map[string][]string)
	changed := s.setStatus(StatusReconnecting)
	s.mu.Unlock()

	log.Printf("Disconnected from server: %s", reason)
	if changed {
		s.notify(StatusEvent)
	}
}

// OnReconnectAttempt records a redial
func (s *State) OnReconnectAttempt(attempt int) {
	log.Printf("Reconnection attempt %d", attempt)
	s.transition(StatusReconnecting)
}

// OnError records a transport failure; it is surfaced as status, never as data
func (s *State) OnError(err error) {
	s.mu.Lock()
	s.lastError = fmt.Errorf("%w: %v", types.ErrTransport, err)
	changed := false
	if s.status == StatusConnecting {
		changed = s.setStatus(StatusReconnecting)
	}
	s.mu.Unlock()

	if changed {
		s.notify(StatusEvent)
	}
}

// Close enters disconnected permanently
func (s *State) Close() {
	s.mu.Lock()
	s.cancelTypingLocked()
	s.status = StatusDisconnected
	s.closed = true
	s.mu.Unlock()
	s.notify(StatusEvent)
}

func (s *State) transition(to Status) {
	s.mu.Lock()
	changed := s.setStatus(to)
	s.mu.Unlock()
	if changed {
		s.notify(StatusEvent)
	}
}

// setStatus applies a legal transition; callers hold mu
func (s *State) setStatus(to Status) bool {
	if s.closed {
		return false
	}
	if !slices.Contains(transitions[s.status], to) {
		return false
	}
	s.status = to
	return true
}

// User actions

// Connect records the identity and registers it when a connection is up
func (s *State) Connect(username, room string) error {
	username, err := types.ValidateUsername(username)
	if err != nil {
		return err
	}
	if room == "" {
		room = types.DefaultRoom
	}
	if room, err = types.ValidateRoomName(room); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.username = username
	s.room = room
	s.historyLocked(room).resetWindow(s.options.WindowSize)
	connected := s.status == StatusConnected
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.sender.Send(types.EventUserJoin, types.JoinPayload{Username: username, Room: room})
}

// ChangeRoom switches rooms, restoring the room's transcript locally
// A pending stop_typing is cancelled so it cannot fire into the new room.
func (s *State) ChangeRoom(room string) error {
	room, err := types.ValidateRoomName(room)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cancelTypingLocked()
	s.room = room
	s.historyLocked(room).resetWindow(s.options.WindowSize)
	s.mu.Unlock()

	return s.sender.Send(types.EventChangeRoom, types.ChangeRoomPayload{Room: room})
}

// SendMessage broadcasts text to the current room
func (s *State) SendMessage(text string) error {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	message := &types.Message{
		ID:        uuid.NewString(),
		Sender:    s.username,
		Text:      text,
		Room:      s.room,
		Timestamp: time.Now(),
	}
	s.mu.Unlock()

	if err := message.Validate(); err != nil {
		return err
	}
	return s.sender.Send(types.EventSendMessage, message)
}

// SendFile shares an inline file with the current room
func (s *State) SendFile(name, contentType string, data []byte) error {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	file := &types.FileMessage{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      contentType,
		Size:      int64(len(data)),
		Data:      base64.StdEncoding.EncodeToString(data),
		Sender:    s.username,
		Room:      s.room,
		Timestamp: time.Now(),
	}
	s.mu.Unlock()

	if err := file.Validate(types.MaxFileSize); err != nil {
		return err
	}
	return s.sender.Send(types.EventSendFileMessage, file)
}

// SendPrivate sends a direct message; the server echoes it back
func (s *State) SendPrivate(to, text string) error {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	message := &types.PrivateMessage{
		ID:        uuid.NewString(),
		From:      s.username,
		To:        to,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.mu.Unlock()

	if err := message.Validate(); err != nil {
		return err
	}
	return s.sender.Send(types.EventPrivateMessage, message)
}

// React adds (or, with remove, withdraws) a reaction
func (s *State) React(messageID, emoji string, remove bool) error {
	if err := s.ready(); err != nil {
		return err
	}
	event := types.EventAddReaction
	if remove {
		event = types.EventRemoveReaction
	}
	return s.sender.Send(event, types.ReactionPayload{MessageID: messageID, Emoji: emoji})
}

// MarkRead marks one message as read
func (s *State) MarkRead(messageID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.sender.Send(types.EventMarkMessageRead, types.ReadPayload{MessageID: messageID})
}

// MarkAllRead marks every message in the current room as read
func (s *State) MarkAllRead() error {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	room := s.room
	s.mu.Unlock()
	return s.sender.Send(types.EventMarkAllRead, types.MarkAllReadPayload{Room: room})
}

// CreateRoom asks the server to add a room
func (s *State) CreateRoom(name string) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.sender.Send(types.EventCreateRoom, types.CreateRoomPayload{RoomName: name})
}

// Keystroke emits typing once and (re)schedules the fire-once stop_typing timer
func (s *State) Keystroke() error {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	room := s.room
	first := !s.typingActive || s.typingRoom != room
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingActive = true
	s.typingRoom = room
	s.typingGen++
	gen := s.typingGen
	s.typingTimer = time.AfterFunc(s.options.TypingDebounce, func() { s.stopTyping(gen) })
	s.mu.Unlock()

	if first {
		return s.sender.Send(types.EventTyping, types.TypingPayload{Room: room})
	}
	return nil
}

// stopTyping fires the debounced stop_typing unless a later keystroke or a cancel superseded it
func (s *State) stopTyping(gen uint64) {
	s.mu.Lock()
	if gen != s.typingGen || !s.typingActive {
		s.mu.Unlock()
		return
	}
	room := s.typingRoom
	s.typingActive = false
	s.typingTimer = nil
	connected := s.status == StatusConnected
	s.mu.Unlock()

	if connected {
		s.send(types.EventStopTyping, types.TypingPayload{Room: room})
	}
}

// cancelTypingLocked drops any pending stop_typing; callers hold mu
func (s *State) cancelTypingLocked() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typingActive = false
	s.typingGen++
}

// LoadMore fetches the next older page of the current room over HTTP
func (s *State) LoadMore(ctx context.Context, fetcher PageFetcher) (int, error) {
	s.mu.Lock()
	room := s.room
	history := s.historyLocked(room)
	if !history.hasMore {
		s.mu.Unlock()
		return 0, ErrNoMoreHistory
	}
	page := history.pagesLoaded + 1
	s.mu.Unlock()

	result, err := fetcher.FetchPage(ctx, room, page, s.options.PageLimit)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	added := s.historyLocked(room).addPage(page, result.Messages, result.HasMore)
	s.mu.Unlock()

	s.notify(types.EventMoreMessagesLoaded)
	return added, nil
}

// RequestMore asks for the next older page over the socket; the reply merges
// like any other more_messages_loaded event
func (s *State) RequestMore() error {
	s.mu.Lock()
	if err := s.readyLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	history := s.historyLocked(s.room)
	if !history.hasMore {
		s.mu.Unlock()
		return ErrNoMoreHistory
	}
	payload := types.LoadMorePayload{Room: s.room, Page: history.pagesLoaded + 1, Limit: s.options.PageLimit}
	s.mu.Unlock()

	return s.sender.Send(types.EventLoadMoreMessages, payload)
}

func (s *State) ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyLocked()
}

func (s *State) readyLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.username == "" {
		return ErrNotRegistered
	}
	if s.status != StatusConnected {
		return ErrNotConnected
	}
	return nil
}

func (s *State) historyLocked(room string) *roomHistory {
	history, ok := s.rooms[room]
	if !ok {
		history = newRoomHistory(s.options.WindowSize)
		s.rooms[room] = history
	}
	return history
}

func (s *State) send(event string, payload interface{}) {
	if err := s.sender.Send(event, payload); err != nil {
		log.Printf("Failed to send %s: %v", event, err)
	}
}

func (s *State) notify(event string) {
	if s.options.OnChange != nil {
		s.options.OnChange(event)
	}
}

// Inbound events

// HandleEvent merges one server event into local state
// Unknown events are ignored so newer servers can add events freely.
func (s *State) HandleEvent(name string, data json.RawMessage) error {
	handler, ok := s.handlers[name]
	if !ok {
		return nil
	}
	if err := handler(data); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	s.notify(name)
	return nil
}

func (s *State) onRoomUsers(data json.RawMessage) error {
	var payload types.RoomUsersPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[payload.Room] = payload.Users
	return nil
}

func (s *State) onRoomList(data json.RawMessage) error {
	var payload types.RoomListPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomList = payload.Rooms
	return nil
}

func (s *State) onRoomCreated(data json.RawMessage) error {
	var payload types.RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.roomList, payload.Room) {
		s.roomList = append(s.roomList, payload.Room)
	}
	return nil
}

// onRoomChanged adopts the server's view of where this connection sits
func (s *State) onRoomChanged(data json.RawMessage) error {
	var payload types.RoomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if payload.Room != s.room {
		s.cancelTypingLocked()
		s.room = payload.Room
		s.historyLocked(payload.Room).resetWindow(s.options.WindowSize)
	}
	return nil
}

func (s *State) onReceiveMessage(data json.RawMessage) error {
	var message types.Message
	if err := json.Unmarshal(data, &message); err != nil {
		return err
	}
	if message.Room == "" {
		return fmt.Errorf("%w: message %s has no room", types.ErrInvalidMessage, message.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyLocked(message.Room).add(&message)
	return nil
}

func (s *State) onPrivateMessage(data json.RawMessage) error {
	var message types.PrivateMessage
	if err := json.Unmarshal(data, &message); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.privateID[message.ID]; seen || message.ID == "" {
		return nil
	}
	s.privateID[message.ID] = &message
	s.private = append(s.private, &message)
	return nil
}

func (s *State) onTypingUsers(data json.RawMessage) error {
	var payload types.TypingUsersPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing[payload.Room] = payload.Users
	return nil
}

// onReactionUpdated replaces the reaction map wholesale, so redelivery is harmless
func (s *State) onReactionUpdated(data json.RawMessage) error {
	var payload types.ReactionUpdatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if private, ok := s.privateID[payload.MessageID]; ok {
		private.Reactions = payload.Reactions
		return nil
	}
	if message, ok := s.findLocked(payload.Room, payload.MessageID); ok {
		message.Reactions = payload.Reactions
	}
	return nil
}

func (s *State) onReadReceiptUpdated(data json.RawMessage) error {
	var payload types.ReadReceiptUpdatedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if private, ok := s.privateID[payload.MessageID]; ok {
		private.ReadBy = payload.ReadBy
		return nil
	}
	if message, ok := s.findLocked(payload.Room, payload.MessageID); ok {
		message.ReadBy = payload.ReadBy
	}
	return nil
}

func (s *State) onAllMessagesRead(data json.RawMessage) error {
	var payload types.AllMessagesReadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if history, ok := s.rooms[payload.Room]; ok {
		history.markAllRead(payload.Username)
	}
	return nil
}

func (s *State) onMoreMessagesLoaded(data json.RawMessage) error {
	var payload types.MoreMessagesPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyLocked(payload.Room).addPage(payload.Page, payload.Messages, payload.HasMore)
	return nil
}

// onSessionReplaced forgets the identity so a reconnect cannot steal it back
func (s *State) onSessionReplaced(data json.RawMessage) error {
	var payload types.SessionReplacedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelTypingLocked()
	s.username = ""
	s.lastError = &ServerError{
		Event:   types.EventSessionReplaced,
		Message: fmt.Sprintf("%s signed in from another connection", payload.Username),
		Code:    types.EventSessionReplaced,
	}
	return nil
}

func (s *State) onServerError(data json.RawMessage) error {
	var payload types.ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = &ServerError{Event: payload.Event, Message: payload.Error, Code: payload.Code, To: payload.To}
	return nil
}

// findLocked looks in the named room first, then everywhere
func (s *State) findLocked(room, id string) (*types.Message, bool) {
	if history, ok := s.rooms[room]; ok {
		if message, ok := history.get(id); ok {
			return message, true
		}
	}
	for _, history := range s.rooms {
		if message, ok := history.get(id); ok {
			return message, true
		}
	}
	return nil, false
}

// Views

func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *State) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

func (s *State) CurrentRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// LastError returns the most recent server or transport error
func (s *State) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Visible returns the display window of the current room
func (s *State) Visible() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMessages(s.historyLocked(s.room).window())
}

// History returns the full transcript held for room
func (s *State) History(room string) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.rooms[room]
	if !ok {
		return []types.Message{}
	}
	return copyMessages(history.messages)
}

// Message returns one held room message by id
func (s *State) Message(id string) (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.findLocked("", id)
	if !ok {
		return types.Message{}, false
	}
	return copyMessage(message), true
}

// HasMore reports whether older pages may exist for room
func (s *State) HasMore(room string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	history, ok := s.rooms[room]
	return !ok || history.hasMore
}

func (s *State) PrivateMessages() []types.PrivateMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.PrivateMessage, 0, len(s.private))
	for _, message := range s.private {
		copied := *message
		copied.Reactions = types.CloneReactions(message.Reactions)
		copied.ReadBy = message.ReadBy.Clone()
		out = append(out, copied)
	}
	return out
}

func (s *State) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.roomList)
}

func (s *State) UsersIn(room string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.users[room])
}

func (s *State) TypingIn(room string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.typing[room])
}
