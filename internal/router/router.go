package router

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"chatconnect/internal/rooms"
	"chatconnect/internal/session"
	"chatconnect/pkg/interfaces"
	"chatconnect/pkg/types"
)

// Options tune the router
type Options struct {
	// RateLimit is the number of chat, file and private sends allowed per
	// connection per minute; zero disables limiting.
	RateLimit   int
	MaxFileSize int64
}

// DefaultOptions returns the production limits
func DefaultOptions() Options {
	return Options{RateLimit: 100, MaxFileSize: types.MaxFileSize}
}

// Router implements interfaces.MessageRouter
// ARCHITECTURAL DISCOVERY: Pure routing logic. Sessions come from the registry,
// delivery goes through the emitter, and every audience is computed at
// delivery time rather than cached.
type Router struct {
	registry    *session.Registry
	directory   *rooms.Directory
	store       interfaces.MessageStore
	emitter     interfaces.Emitter
	rateLimiter *RateLimiter
	options     Options
}

var _ interfaces.MessageRouter = (*Router)(nil)

// NewRouter creates a new message router
func NewRouter(registry *session.Registry, directory *rooms.Directory, store interfaces.MessageStore, emitter interfaces.Emitter, options Options) *Router {
	if options.MaxFileSize <= 0 {
		options.MaxFileSize = types.MaxFileSize
	}
	return &Router{
		registry:    registry,
		directory:   directory,
		store:       store,
		emitter:     emitter,
		rateLimiter: NewRateLimiter(options.RateLimit, time.Minute),
		options:     options,
	}
}

// RouteBroadcast delivers a room message to every connection currently in its room
// FUNCTIONAL DISCOVERY: Persist-then-route. A retry of an already stored id is
// dropped without a second fan-out.
func (r *Router) RouteBroadcast(ctx context.Context, connID string, message *types.Message) error {
	if _, err := r.sessionFor(connID); err != nil {
		return err
	}
	if err := message.Validate(); err != nil {
		return err
	}
	room, err := types.ValidateRoomName(message.Room)
	if err != nil {
		return err
	}
	message.Room = room
	if !r.rateLimiter.Allow(connID) {
		return ErrRateLimitExceeded
	}

	// Inbound messages never carry server-owned state
	message.System = false
	message.Private = false
	message.To = ""
	message.Reactions = make(map[string]types.UserSet)
	message.ReadBy = types.UserSet{}
	stampMessage(message)

	if err := r.store.StoreMessage(ctx, message); err != nil {
		if errors.Is(err, interfaces.ErrDuplicateMessage) {
			log.Printf("Dropping duplicate message %s from %s", message.ID, message.Sender)
			return nil
		}
		return fmt.Errorf("failed to persist message: %w", err)
	}

	r.deliver(r.registry.ConnectionsInRoom(message.Room), types.EventReceiveMessage, message)
	return nil
}

// RouteFile fans a file message out exactly like a text message
func (r *Router) RouteFile(ctx context.Context, connID string, file *types.FileMessage) error {
	if err := file.Validate(r.options.MaxFileSize); err != nil {
		return err
	}
	return r.RouteBroadcast(ctx, connID, file.ToMessage())
}

// RoutePrivate delivers one copy to the recipient and echoes one to the sender
func (r *Router) RoutePrivate(ctx context.Context, connID string, message *types.PrivateMessage) error {
	sender, err := r.sessionFor(connID)
	if err != nil {
		return err
	}
	// The sender is always the registered user on this connection
	switch message.From {
	case "":
		message.From = sender.Username
	case sender.Username:
	default:
		return fmt.Errorf("%w: from %q does not match the connection's user", types.ErrInvalidMessage, message.From)
	}
	if err := message.Validate(); err != nil {
		return err
	}

	recipientConn, ok := r.registry.FindConnectionByUsername(message.To)
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrUnknownRecipient, message.To)
	}
	if !r.rateLimiter.Allow(connID) {
		return ErrRateLimitExceeded
	}

	stored := &types.Message{
		ID:        message.ID,
		Sender:    message.From,
		To:        message.To,
		Text:      message.Text,
		Timestamp: message.Timestamp,
		Private:   true,
		Reactions: make(map[string]types.UserSet),
		ReadBy:    types.UserSet{},
	}
	stampMessage(stored)

	if err := r.store.StoreMessage(ctx, stored); err != nil {
		if errors.Is(err, interfaces.ErrDuplicateMessage) {
			log.Printf("Dropping duplicate private message %s from %s", stored.ID, stored.Sender)
			return nil
		}
		return fmt.Errorf("failed to persist private message: %w", err)
	}

	// A user messaging themselves still gets a single copy
	r.deliver(dedupe([]string{recipientConn, connID}), types.EventPrivateMessage, stored.AsPrivate())
	return nil
}

// AddReaction records username under emoji and broadcasts the full reaction map
func (r *Router) AddReaction(ctx context.Context, connID, messageID, emoji, username string) error {
	return r.updateReactions(ctx, connID, messageID, emoji, username, (*types.Message).AddReaction)
}

// RemoveReaction drops username from emoji and broadcasts the full reaction map
func (r *Router) RemoveReaction(ctx context.Context, connID, messageID, emoji, username string) error {
	return r.updateReactions(ctx, connID, messageID, emoji, username, (*types.Message).RemoveReaction)
}

func (r *Router) updateReactions(ctx context.Context, connID, messageID, emoji, username string, apply func(*types.Message, string, string) bool) error {
	sess, err := r.sessionFor(connID)
	if err != nil {
		return err
	}
	username = actingUser(sess, username)
	if messageID == "" {
		return ErrMissingMessageID
	}
	if err := types.ValidateReaction(emoji); err != nil {
		return err
	}

	message, err := r.store.UpdateMessage(ctx, messageID, func(m *types.Message) error {
		if !visibleTo(m, sess.Username) {
			return fmt.Errorf("%w: %s", types.ErrMessageNotFound, messageID)
		}
		apply(m, emoji, username)
		return nil
	})
	if err != nil {
		return err
	}

	// FUNCTIONAL DISCOVERY: Full-set sync even when nothing changed, so a client
	// that missed an earlier update converges.
	r.deliver(r.audience(message), types.EventReactionUpdated, types.ReactionUpdatedPayload{
		MessageID: message.ID,
		Room:      conversationKey(message),
		Reactions: types.CloneReactions(message.Reactions),
	})
	return nil
}

// MarkRead adds username to the message's readBy set and broadcasts the full set
func (r *Router) MarkRead(ctx context.Context, connID, messageID, username string) error {
	sess, err := r.sessionFor(connID)
	if err != nil {
		return err
	}
	username = actingUser(sess, username)
	if messageID == "" {
		return ErrMissingMessageID
	}

	message, err := r.store.UpdateMessage(ctx, messageID, func(m *types.Message) error {
		if !visibleTo(m, sess.Username) {
			return fmt.Errorf("%w: %s", types.ErrMessageNotFound, messageID)
		}
		m.MarkReadBy(username)
		return nil
	})
	if err != nil {
		return err
	}

	r.deliver(r.audience(message), types.EventReadReceiptUpdated, types.ReadReceiptUpdatedPayload{
		MessageID: message.ID,
		Room:      conversationKey(message),
		ReadBy:    message.ReadBy.Clone(),
	})
	return nil
}

// MarkAllRead marks every stored message in room as read by the connection's user
func (r *Router) MarkAllRead(ctx context.Context, connID, room string) error {
	sess, err := r.sessionFor(connID)
	if err != nil {
		return err
	}
	if room == "" {
		room = sess.CurrentRoom
	}
	if room, err = types.ValidateRoomName(room); err != nil {
		return err
	}

	changed, err := r.store.MarkRoomRead(ctx, room, sess.Username)
	if err != nil {
		return fmt.Errorf("failed to mark room read: %w", err)
	}
	log.Printf("%s marked %d messages read in %s", sess.Username, changed, room)

	r.deliver(r.registry.ConnectionsInRoom(room), types.EventAllMessagesRead, types.AllMessagesReadPayload{
		Room:     room,
		Username: sess.Username,
	})
	return nil
}

// LoadMore sends one page of room history back to the requesting connection
func (r *Router) LoadMore(ctx context.Context, connID, room string, page, limit int) error {
	if room == "" {
		return ErrMissingRoom
	}
	if types.IsPrivateRoom(room) {
		return fmt.Errorf("%w: private history is not paged", types.ErrInvalidRoom)
	}
	page, limit = types.NormalizePage(page, limit)

	messages, hasMore, err := r.store.GetRoomPage(ctx, room, page, limit)
	if err != nil {
		return fmt.Errorf("failed to load room history: %w", err)
	}

	r.deliver([]string{connID}, types.EventMoreMessagesLoaded, types.MoreMessagesPayload{
		Room:     room,
		Page:     page,
		Messages: messages,
		HasMore:  hasMore,
	})
	return nil
}

// CreateRoom adds a room and announces it to every connection
// Failures go back to the creator only, through the hub's error mapping.
func (r *Router) CreateRoom(ctx context.Context, connID, name string) error {
	room, err := r.directory.Create(name)
	if err != nil {
		return err
	}
	log.Printf("Room created: %s (by connection %s)", room, connID)
	r.emitter.EmitAll(types.EventRoomCreated, types.RoomPayload{Room: room})
	return nil
}

// Prune drops rate-limiter state for idle connections
func (r *Router) Prune() {
	if removed := r.rateLimiter.Cleanup(); removed > 0 {
		log.Printf("Rate limiter pruned %d idle connections", removed)
	}
}

// deliver emits to each connection, continuing past individual failures
func (r *Router) deliver(connIDs []string, event string, payload interface{}) {
	for _, connID := range connIDs {
		if err := r.emitter.Emit(connID, event, payload); err != nil {
			log.Printf("Failed to deliver %s to %s: %v", event, connID, err)
		}
	}
}

// audience resolves who may see updates to a stored message, right now
func (r *Router) audience(message *types.Message) []string {
	if !message.Private {
		return r.registry.ConnectionsInRoom(message.Room)
	}
	var conns []string
	for _, username := range message.Participants() {
		if connID, ok := r.registry.FindConnectionByUsername(username); ok {
			conns = append(conns, connID)
		}
	}
	return dedupe(conns)
}

func (r *Router) sessionFor(connID string) (types.Session, error) {
	sess, ok := r.registry.Get(connID)
	if !ok {
		return types.Session{}, types.ErrNotRegistered
	}
	return sess, nil
}

// actingUser defaults an omitted username to the session's own
func actingUser(sess types.Session, username string) string {
	if username == "" {
		return sess.Username
	}
	return username
}

func stampMessage(message *types.Message) {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
}

// visibleTo reports whether username may act on message; private messages belong to their pair
func visibleTo(message *types.Message, username string) bool {
	return !message.Private || message.Sender == username || message.To == username
}

func conversationKey(message *types.Message) string {
	if message.Private {
		return types.PrivateRoomKey(message.Sender, message.To)
	}
	return message.Room
}

func dedupe(connIDs []string) []string {
	seen := make(map[string]bool, len(connIDs))
	out := make([]string, 0, len(connIDs))
	for _, connID := range connIDs {
		if !seen[connID] {
			seen[connID] = true
			out = append(out, connID)
		}
	}
	return out
}
