package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatconnect/internal/app"
	"chatconnect/internal/config"
	"chatconnect/pkg/types"
)

const receiveTimeout = 3 * time.Second

// StartTestServer runs the whole application on an ephemeral loopback port
func StartTestServer(t *testing.T) string {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	cfg.Chat.TypingDebounce = 50 * time.Millisecond

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Failed to start application: %v", err)
	}
	t.Cleanup(func() {
		if err := application.Stop(context.Background()); err != nil {
			t.Logf("Failed to stop application: %v", err)
		}
	})

	return application.GetAddr()
}

// TestClient is a raw WebSocket peer that records every envelope it receives
type TestClient struct {
	t      *testing.T
	conn   *websocket.Conn
	events chan types.Envelope
	done   chan struct{}

	closeOnce sync.Once
}

// Dial opens a socket to addr and starts collecting envelopes
func Dial(t *testing.T, addr string) *TestClient {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", addr), nil)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	tc := &TestClient{
		t:      t,
		conn:   conn,
		events: make(chan types.Envelope, 1000),
		done:   make(chan struct{}),
	}
	go tc.readLoop()
	t.Cleanup(tc.Close)
	return tc
}

func (tc *TestClient) readLoop() {
	defer close(tc.done)
	for {
		var envelope types.Envelope
		if err := tc.conn.ReadJSON(&envelope); err != nil {
			return
		}
		select {
		case tc.events <- envelope:
		default:
			tc.t.Logf("Event buffer full, dropping %s", envelope.Event)
		}
	}
}

// Close closes the socket from the client side and waits for the reader to exit
func (tc *TestClient) Close() {
	tc.closeOnce.Do(func() {
		tc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		tc.conn.Close()
		<-tc.done
	})
}

// Send writes one envelope
func (tc *TestClient) Send(event string, payload interface{}) {
	tc.t.Helper()
	tc.conn.SetWriteDeadline(time.Now().Add(receiveTimeout))
	if err := tc.conn.WriteJSON(types.OutboundEnvelope{Event: event, Data: payload}); err != nil {
		tc.t.Fatalf("Failed to send %s: %v", event, err)
	}
}

// Join registers username in room and waits until the server confirms the room
func (tc *TestClient) Join(username, room string) {
	tc.t.Helper()
	tc.Send(types.EventUserJoin, types.JoinPayload{Username: username, Room: room})
	tc.Expect(types.EventRoomChanged, func(data json.RawMessage) bool {
		var p types.RoomPayload
		return json.Unmarshal(data, &p) == nil && p.Room == room
	})
}

// Expect skips envelopes until one named event satisfies match
// A nil match accepts the first envelope with that name.
func (tc *TestClient) Expect(event string, match func(json.RawMessage) bool) json.RawMessage {
	tc.t.Helper()

	deadline := time.After(receiveTimeout)
	for {
		select {
		case envelope := <-tc.events:
			if envelope.Event == event && (match == nil || match(envelope.Data)) {
				return envelope.Data
			}
		case <-deadline:
			tc.t.Fatalf("Timed out waiting for %s", event)
			return nil
		}
	}
}

// Collect returns every envelope named event that arrives within window
func (tc *TestClient) Collect(event string, window time.Duration) []json.RawMessage {
	var matched []json.RawMessage
	deadline := time.After(window)
	for {
		select {
		case envelope := <-tc.events:
			if envelope.Event == event {
				matched = append(matched, envelope.Data)
			}
		case <-deadline:
			return matched
		}
	}
}

// Drain discards everything already buffered
func (tc *TestClient) Drain() {
	for {
		select {
		case <-tc.events:
		default:
			return
		}
	}
}

// MessageWithText matches a receive_message or private_message carrying text
func MessageWithText(text string) func(json.RawMessage) bool {
	return func(data json.RawMessage) bool {
		var m struct {
			Text string `json:"text"`
		}
		return json.Unmarshal(data, &m) == nil && m.Text == text
	}
}

// UsersInRoom matches a room_users or typing_users snapshot for room
func UsersInRoom(room string, check func([]string) bool) func(json.RawMessage) bool {
	return func(data json.RawMessage) bool {
		var p types.RoomUsersPayload
		return json.Unmarshal(data, &p) == nil && p.Room == room && check(p.Users)
	}
}
