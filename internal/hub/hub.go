package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"chatconnect/pkg/interfaces"
	"chatconnect/pkg/types"
)

// RoomLister supplies the room list sent to freshly opened connections
type RoomLister interface {
	List() []string
}

// Event is one decoded application envelope waiting for the loop
type Event struct {
	ConnID string
	Name   string
	Data   json.RawMessage
}

// Task is deferred work that must run on the loop
type Task func(ctx context.Context)

type handlerFunc func(ctx context.Context, ev *Event) error

// Hub serializes every state-changing event onto one goroutine
// ARCHITECTURAL DISCOVERY: Each event runs to completion, downstream emits
// included, before the next one starts; registry and typing state never see
// two handlers interleave.
type Hub struct {
	eventChannel      chan *Event  // application events, non-blocking enqueue
	connectChannel    chan string  // lifecycle events, blocking enqueue
	disconnectChannel chan string
	taskChannel       chan Task
	shutdownChannel   chan struct{}
	done              chan struct{}

	router    interfaces.MessageRouter
	tracker   interfaces.PresenceTracker
	rooms     RoomLister
	emitter   interfaces.Emitter
	handlers  map[string]handlerFunc
	pruneTick time.Duration

	running bool
	mu      sync.RWMutex
}

// Options size the hub queues
type Options struct {
	EventBuffer   int
	PruneInterval time.Duration
}

// DefaultOptions returns production sizes
func DefaultOptions() Options {
	return Options{EventBuffer: 1000, PruneInterval: time.Minute}
}

// NewHub creates a hub and builds its event table once
func NewHub(router interfaces.MessageRouter, tracker interfaces.PresenceTracker, rooms RoomLister, emitter interfaces.Emitter, options Options) *Hub {
	if options.EventBuffer <= 0 {
		options.EventBuffer = DefaultOptions().EventBuffer
	}
	if options.PruneInterval <= 0 {
		options.PruneInterval = DefaultOptions().PruneInterval
	}

	h := &Hub{
		eventChannel:      make(chan *Event, options.EventBuffer),
		connectChannel:    make(chan string, 100),
		disconnectChannel: make(chan string, 100),
		taskChannel:       make(chan Task, 100),
		shutdownChannel:   make(chan struct{}),
		done:              make(chan struct{}),
		router:            router,
		tracker:           tracker,
		rooms:             rooms,
		emitter:           emitter,
		pruneTick:         options.PruneInterval,
	}
	h.handlers = map[string]handlerFunc{
		types.EventUserJoin:         h.handleUserJoin,
		types.EventChangeRoom:       h.handleChangeRoom,
		types.EventSendMessage:      h.handleSendMessage,
		types.EventSendFileMessage:  h.handleSendFile,
		types.EventPrivateMessage:   h.handlePrivateMessage,
		types.EventTyping:           h.handleTyping,
		types.EventStopTyping:       h.handleStopTyping,
		types.EventAddReaction:      h.handleAddReaction,
		types.EventRemoveReaction:   h.handleRemoveReaction,
		types.EventMarkMessageRead:  h.handleMarkRead,
		types.EventMarkPrivateRead:  h.handleMarkRead,
		types.EventMarkAllRead:      h.handleMarkAllRead,
		types.EventCreateRoom:       h.handleCreateRoom,
		types.EventLoadMoreMessages: h.handleLoadMore,
	}
	return h
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting event hub...")
	go h.run(ctx)
	return nil
}

// Stop signals the loop to exit and waits for it
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	log.Println("Stopping event hub...")
	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}
	h.mu.Unlock()

	<-h.done
	return nil
}

// IsRunning reports whether the loop is accepting events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Connect queues a newly opened connection
// FUNCTIONAL DISCOVERY: Lifecycle events block rather than drop; a lost
// disconnect would leak a session forever.
func (h *Hub) Connect(connID string) error {
	return h.enqueueLifecycle(h.connectChannel, connID)
}

// Disconnect queues a closed connection for cleanup
func (h *Hub) Disconnect(connID string) error {
	return h.enqueueLifecycle(h.disconnectChannel, connID)
}

func (h *Hub) enqueueLifecycle(ch chan string, connID string) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}
	select {
	case ch <- connID:
		return nil
	case <-h.shutdownChannel:
		return ErrHubNotRunning
	}
}

// Dispatch queues an application event without blocking the reader
func (h *Hub) Dispatch(connID, name string, data json.RawMessage) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}
	select {
	case h.eventChannel <- &Event{ConnID: connID, Name: name, Data: data}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Submit re-enters the loop with deferred work
func (h *Hub) Submit(task Task) error {
	if !h.IsRunning() {
		return ErrHubNotRunning
	}
	select {
	case h.taskChannel <- task:
		return nil
	default:
		return ErrTaskChannelFull
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	ticker := time.NewTicker(h.pruneTick)
	defer ticker.Stop()

	for {
		select {
		case connID := <-h.connectChannel:
			h.handleConnect(connID)

		case connID := <-h.disconnectChannel:
			if err := h.tracker.Disconnect(ctx, connID); err != nil {
				log.Printf("Disconnect cleanup failed for %s: %v", connID, err)
			}

		case ev := <-h.eventChannel:
			h.handleEvent(ctx, ev)

		case task := <-h.taskChannel:
			task(ctx)

		case <-ticker.C:
			h.router.Prune()

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handleConnect(connID string) {
	log.Printf("Connection opened: %s", connID)
	if err := h.emitter.Emit(connID, types.EventRoomList, types.RoomListPayload{Rooms: h.rooms.List()}); err != nil {
		log.Printf("Failed to send room list to %s: %v", connID, err)
	}
}

// handleEvent dispatches one event; failures are answered to the sender only
func (h *Hub) handleEvent(ctx context.Context, ev *Event) {
	handler, ok := h.handlers[ev.Name]
	if !ok {
		h.SendError(ev.ConnID, ev.Name, fmt.Errorf("%w: unknown event %q", types.ErrInvalidMessage, ev.Name))
		return
	}
	if err := handler(ctx, ev); err != nil {
		log.Printf("Event %s from %s failed: %v", ev.Name, ev.ConnID, err)
		h.SendError(ev.ConnID, ev.Name, err)
	}
}

// SendError answers a failed inbound event with its typed error event
func (h *Hub) SendError(connID, event string, err error) {
	payload := types.ErrorPayload{
		Event: event,
		Error: err.Error(),
		Code:  types.ErrorCode(err),
	}
	var re *recipientError
	if errors.As(err, &re) {
		payload.To = re.to
	}
	if sendErr := h.emitter.Emit(connID, ErrorEventFor(event), payload); sendErr != nil {
		log.Printf("Failed to send error to %s: %v", connID, sendErr)
	}
}

// ErrorEventFor names the error event answering a failed inbound event
func ErrorEventFor(event string) string {
	switch event {
	case types.EventPrivateMessage:
		return types.EventPrivateMessageError
	case types.EventCreateRoom, types.EventChangeRoom:
		return types.EventRoomError
	case types.EventAddReaction, types.EventRemoveReaction:
		return types.EventReactionError
	default:
		return types.EventMessageError
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInvalidMessage, err)
	}
	return nil
}

func (h *Hub) handleUserJoin(ctx context.Context, ev *Event) error {
	var p types.JoinPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.tracker.Register(ctx, ev.ConnID, p.Username, p.Room)
}

func (h *Hub) handleChangeRoom(ctx context.Context, ev *Event) error {
	var p types.ChangeRoomPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.tracker.Join(ctx, ev.ConnID, p.Target())
}

func (h *Hub) handleSendMessage(ctx context.Context, ev *Event) error {
	var message types.Message
	if err := decode(ev.Data, &message); err != nil {
		return err
	}
	return h.router.RouteBroadcast(ctx, ev.ConnID, &message)
}

func (h *Hub) handleSendFile(ctx context.Context, ev *Event) error {
	var file types.FileMessage
	if err := decode(ev.Data, &file); err != nil {
		return err
	}
	return h.router.RouteFile(ctx, ev.ConnID, &file)
}

func (h *Hub) handlePrivateMessage(ctx context.Context, ev *Event) error {
	var message types.PrivateMessage
	if err := decode(ev.Data, &message); err != nil {
		return err
	}
	if err := h.router.RoutePrivate(ctx, ev.ConnID, &message); err != nil {
		return &recipientError{to: message.To, err: err}
	}
	return nil
}

func (h *Hub) handleTyping(ctx context.Context, ev *Event) error {
	var p types.TypingPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.tracker.Typing(ctx, ev.ConnID, p.Room)
}

func (h *Hub) handleStopTyping(ctx context.Context, ev *Event) error {
	var p types.TypingPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.tracker.StopTyping(ctx, ev.ConnID, p.Room)
}

func (h *Hub) handleAddReaction(ctx context.Context, ev *Event) error {
	var p types.ReactionPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.router.AddReaction(ctx, ev.ConnID, p.MessageID, p.Key(), p.Username)
}

func (h *Hub) handleRemoveReaction(ctx context.Context, ev *Event) error {
	var p types.ReactionPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.router.RemoveReaction(ctx, ev.ConnID, p.MessageID, p.Key(), p.Username)
}

func (h *Hub) handleMarkRead(ctx context.Context, ev *Event) error {
	var p types.ReadPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.router.MarkRead(ctx, ev.ConnID, p.MessageID, p.Username)
}

func (h *Hub) handleMarkAllRead(ctx context.Context, ev *Event) error {
	var p types.MarkAllReadPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.router.MarkAllRead(ctx, ev.ConnID, p.Room)
}

func (h *Hub) handleCreateRoom(ctx context.Context, ev *Event) error {
	var p types.CreateRoomPayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	return h.router.CreateRoom(ctx, ev.ConnID, p.RoomName)
}

// handleLoadMore reads history off the loop; only a failure re-enters it
// TECHNICAL DISCOVERY: Page reads touch no hub-owned state, so a large page
// never stalls unrelated events.
func (h *Hub) handleLoadMore(ctx context.Context, ev *Event) error {
	var p types.LoadMorePayload
	if err := decode(ev.Data, &p); err != nil {
		return err
	}
	go func() {
		err := h.router.LoadMore(ctx, ev.ConnID, p.Room, p.Page, p.Limit)
		if err == nil {
			return
		}
		if submitErr := h.Submit(func(context.Context) { h.SendError(ev.ConnID, ev.Name, err) }); submitErr != nil {
			log.Printf("Dropped load_more error for %s: %v", ev.ConnID, submitErr)
		}
	}()
	return nil
}
