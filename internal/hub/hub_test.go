package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"chatconnect/internal/testutil"
	"chatconnect/pkg/types"
)

// fakeRouter records calls and returns canned errors
type fakeRouter struct {
	mu      sync.Mutex
	calls   []string
	errs    map[string]error
	pruned  int
	lastMsg *types.Message
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{errs: make(map[string]error)}
}

func (f *fakeRouter) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeRouter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRouter) RouteBroadcast(_ context.Context, connID string, m *types.Message) error {
	f.mu.Lock()
	f.lastMsg = m
	f.mu.Unlock()
	return f.record("broadcast:" + connID + ":" + m.Text)
}
func (f *fakeRouter) RouteFile(_ context.Context, connID string, m *types.FileMessage) error {
	return f.record("file:" + m.Name)
}
func (f *fakeRouter) RoutePrivate(_ context.Context, connID string, m *types.PrivateMessage) error {
	return f.record("private:" + m.To)
}
func (f *fakeRouter) AddReaction(_ context.Context, connID, messageID, emoji, username string) error {
	return f.record("react:" + messageID + ":" + emoji)
}
func (f *fakeRouter) RemoveReaction(_ context.Context, connID, messageID, emoji, username string) error {
	return f.record("unreact:" + messageID + ":" + emoji)
}
func (f *fakeRouter) MarkRead(_ context.Context, connID, messageID, username string) error {
	return f.record("read:" + messageID)
}
func (f *fakeRouter) MarkAllRead(_ context.Context, connID, room string) error {
	return f.record("readall:" + room)
}
func (f *fakeRouter) LoadMore(_ context.Context, connID, room string, page, limit int) error {
	return f.record(fmt.Sprintf("more:%s:%d:%d", room, page, limit))
}
func (f *fakeRouter) CreateRoom(_ context.Context, connID, name string) error {
	return f.record("create:" + name)
}
func (f *fakeRouter) Prune() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned++
}

// fakeTracker records presence calls
type fakeTracker struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
}

func (f *fakeTracker) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeTracker) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTracker) Register(_ context.Context, connID, username, room string) error {
	return f.record("register:" + connID + ":" + username + ":" + room)
}
func (f *fakeTracker) Join(_ context.Context, connID, room string) error {
	return f.record("join:" + connID + ":" + room)
}
func (f *fakeTracker) Disconnect(_ context.Context, connID string) error {
	return f.record("disconnect:" + connID)
}
func (f *fakeTracker) Typing(_ context.Context, connID, room string) error {
	return f.record("typing:" + room)
}
func (f *fakeTracker) StopTyping(_ context.Context, connID, room string) error {
	return f.record("stop:" + room)
}

type staticRooms []string

func (s staticRooms) List() []string { return s }

func newTestHub(t *testing.T, options Options) (*Hub, *fakeRouter, *fakeTracker, *testutil.Recorder) {
	t.Helper()
	router := newFakeRouter()
	tracker := &fakeTracker{errs: make(map[string]error)}
	emitter := testutil.NewRecorder()
	hub := NewHub(router, tracker, staticRooms{"general", "nairobi"}, emitter, options)
	return hub, router, tracker, emitter
}

func startHub(t *testing.T, hub *Hub) {
	t.Helper()
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() {
		if hub.IsRunning() {
			_ = hub.Stop()
		}
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func raw(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func TestHub_StartStop(t *testing.T) {
	hub, _, _, _ := newTestHub(t, DefaultOptions())
	ctx := context.Background()

	if err := hub.Start(ctx); err != nil {
		t.Errorf("Expected no error starting hub, got %v", err)
	}
	if err := hub.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("Expected ErrHubAlreadyRunning, got %v", err)
	}
	if err := hub.Stop(); err != nil {
		t.Errorf("Expected no error stopping hub, got %v", err)
	}
	if err := hub.Stop(); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning, got %v", err)
	}
	if err := hub.Dispatch("c1", types.EventTyping, nil); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning after stop, got %v", err)
	}
	if err := hub.Disconnect("c1"); err != ErrHubNotRunning {
		t.Errorf("Expected ErrHubNotRunning for lifecycle event after stop, got %v", err)
	}
}

func TestHub_ConnectSendsRoomList(t *testing.T) {
	hub, _, _, emitter := newTestHub(t, DefaultOptions())
	startHub(t, hub)

	if err := hub.Connect("c1"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	waitFor(t, "room_list", func() bool { return len(emitter.Events(types.EventRoomList)) == 1 })

	last, _ := emitter.Last(types.EventRoomList)
	if last.ConnID != "c1" || len(last.Payload.(types.RoomListPayload).Rooms) != 2 {
		t.Errorf("Unexpected room_list emission %+v", last)
	}
}

func TestHub_DispatchRoutesEveryEvent(t *testing.T) {
	hub, router, tracker, _ := newTestHub(t, DefaultOptions())
	startHub(t, hub)

	events := []struct {
		name string
		data interface{}
	}{
		{types.EventUserJoin, types.JoinPayload{Username: "amani", Room: "nairobi"}},
		{types.EventChangeRoom, map[string]string{"newRoom": "kisumu"}},
		{types.EventSendMessage, types.Message{Text: "habari", Sender: "amani", Room: "kisumu"}},
		{types.EventSendFileMessage, types.FileMessage{Name: "a.png"}},
		{types.EventPrivateMessage, types.PrivateMessage{To: "baraka", Text: "hi"}},
		{types.EventTyping, types.TypingPayload{Room: "kisumu"}},
		{types.EventStopTyping, types.TypingPayload{Room: "kisumu"}},
		{types.EventAddReaction, types.ReactionPayload{MessageID: "m1", ReactionType: "love"}},
		{types.EventRemoveReaction, types.ReactionPayload{MessageID: "m1", Emoji: "🔥"}},
		{types.EventMarkMessageRead, types.ReadPayload{MessageID: "m1"}},
		{types.EventMarkPrivateRead, map[string]string{"messageId": "p1", "fromUser": "baraka"}},
		{types.EventMarkAllRead, types.MarkAllReadPayload{Room: "kisumu"}},
		{types.EventCreateRoom, types.CreateRoomPayload{RoomName: "eldoret"}},
	}
	for _, ev := range events {
		if err := hub.Dispatch("c1", ev.name, raw(ev.data)); err != nil {
			t.Fatalf("Dispatch(%s) failed: %v", ev.name, err)
		}
	}

	waitFor(t, "router calls", func() bool { return len(router.Calls()) == 9 })
	wantRouter := []string{
		"broadcast:c1:habari", "file:a.png", "private:baraka",
		"react:m1:❤️", "unreact:m1:🔥", "read:m1", "read:p1", "readall:kisumu", "create:eldoret",
	}
	for i, call := range router.Calls() {
		if call != wantRouter[i] {
			t.Errorf("router call %d: expected %s, got %s", i, wantRouter[i], call)
		}
	}

	wantTracker := []string{"register:c1:amani:nairobi", "join:c1:kisumu", "typing:kisumu", "stop:kisumu"}
	calls := tracker.Calls()
	if len(calls) != len(wantTracker) {
		t.Fatalf("Expected tracker calls %v, got %v", wantTracker, calls)
	}
	for i := range calls {
		if calls[i] != wantTracker[i] {
			t.Errorf("tracker call %d: expected %s, got %s", i, wantTracker[i], calls[i])
		}
	}
}

func TestHub_ErrorsGoToOriginatorOnly(t *testing.T) {
	hub, router, _, emitter := newTestHub(t, DefaultOptions())
	router.errs["private:dave"] = fmt.Errorf("%w: dave", types.ErrUnknownRecipient)
	router.errs["create:general"] = types.ErrDuplicateRoom
	router.errs["react:gone:👍"] = types.ErrMessageNotFound
	startHub(t, hub)

	_ = hub.Dispatch("c1", types.EventPrivateMessage, raw(types.PrivateMessage{To: "dave", Text: "hi"}))
	_ = hub.Dispatch("c2", types.EventCreateRoom, raw(types.CreateRoomPayload{RoomName: "general"}))
	_ = hub.Dispatch("c3", types.EventAddReaction, raw(types.ReactionPayload{MessageID: "gone", Emoji: "👍"}))
	_ = hub.Dispatch("c4", "dance", nil)
	_ = hub.Dispatch("c5", types.EventSendMessage, json.RawMessage(`{"text":`))

	waitFor(t, "error events", func() bool { return len(emitter.All()) == 5 })

	tests := []struct {
		connID string
		event  string
		code   string
	}{
		{"c1", types.EventPrivateMessageError, types.CodeUnknownRecipient},
		{"c2", types.EventRoomError, types.CodeDuplicateRoom},
		{"c3", types.EventReactionError, types.CodeMessageNotFound},
		{"c4", types.EventMessageError, types.CodeInvalidMessage},
		{"c5", types.EventMessageError, types.CodeInvalidMessage},
	}
	for _, tt := range tests {
		sent := emitter.For(tt.connID)
		if len(sent) != 1 || sent[0].Event != tt.event {
			t.Errorf("%s: expected one %s, got %+v", tt.connID, tt.event, sent)
			continue
		}
		if code := sent[0].Payload.(types.ErrorPayload).Code; code != tt.code {
			t.Errorf("%s: expected code %s, got %s", tt.connID, tt.code, code)
		}
	}

	private := emitter.For("c1")[0].Payload.(types.ErrorPayload)
	if private.To != "dave" || private.Event != types.EventPrivateMessage {
		t.Errorf("private_message_error should name the event and recipient, got %+v", private)
	}
}

func TestHub_DisconnectReachesTracker(t *testing.T) {
	hub, _, tracker, _ := newTestHub(t, DefaultOptions())
	startHub(t, hub)

	if err := hub.Disconnect("c9"); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	waitFor(t, "tracker disconnect", func() bool {
		calls := tracker.Calls()
		return len(calls) == 1 && calls[0] == "disconnect:c9"
	})
}

func TestHub_LoadMoreFailureReEntersLoop(t *testing.T) {
	hub, router, _, emitter := newTestHub(t, DefaultOptions())
	router.errs["more:ghost-town:2:10"] = errors.New("boom")
	startHub(t, hub)

	_ = hub.Dispatch("c1", types.EventLoadMoreMessages, raw(types.LoadMorePayload{Room: "ghost-town", Page: 2, Limit: 10}))

	waitFor(t, "message_error", func() bool { return len(emitter.Events(types.EventMessageError)) == 1 })
	last, _ := emitter.Last(types.EventMessageError)
	if last.ConnID != "c1" || last.Payload.(types.ErrorPayload).Code != types.CodeInternal {
		t.Errorf("Unexpected error emission %+v", last)
	}
}

func TestHub_EventQueueFull(t *testing.T) {
	hub, _, _, _ := newTestHub(t, Options{EventBuffer: 1})
	startHub(t, hub)

	release := make(chan struct{})
	started := make(chan struct{})
	if err := hub.Submit(func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	if err := hub.Dispatch("c1", types.EventTyping, nil); err != nil {
		t.Fatalf("first dispatch should fit in the buffer: %v", err)
	}
	if err := hub.Dispatch("c1", types.EventTyping, nil); err != ErrEventChannelFull {
		t.Errorf("Expected ErrEventChannelFull, got %v", err)
	}
	close(release)
}

func TestHub_PrunesOnTicker(t *testing.T) {
	hub, router, _, _ := newTestHub(t, Options{PruneInterval: 10 * time.Millisecond})
	startHub(t, hub)

	waitFor(t, "prune", func() bool {
		router.mu.Lock()
		defer router.mu.Unlock()
		return router.pruned > 0
	})
}

func TestHub_ContextCancelStopsLoop(t *testing.T) {
	hub, _, _, _ := newTestHub(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cancel()
	waitFor(t, "hub to stop", func() bool { return !hub.IsRunning() })
}

func TestErrorEventFor(t *testing.T) {
	cases := map[string]string{
		types.EventPrivateMessage: types.EventPrivateMessageError,
		types.EventCreateRoom:     types.EventRoomError,
		types.EventAddReaction:    types.EventReactionError,
		types.EventSendMessage:    types.EventMessageError,
	}
	for event, want := range cases {
		if got := ErrorEventFor(event); got != want {
			t.Errorf("ErrorEventFor(%s) = %s, want %s", event, got, want)
		}
	}
}
