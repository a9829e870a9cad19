package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatconnect/pkg/types"
)

// Listener receives transport lifecycle callbacks and inbound events; State implements it
type Listener interface {
	OnConnecting()
	OnConnect()
	OnDisconnect(reason string)
	OnReconnectAttempt(attempt int)
	OnError(err error)
	HandleEvent(name string, data json.RawMessage) error
}

// WSTransport is the client end of the WebSocket channel
// TECHNICAL DISCOVERY: gorilla/websocket allows one concurrent writer, so Send
// serializes on writeMu while the read pump runs in Run's goroutine.
type WSTransport struct {
	url         string
	redialDelay time.Duration
	dialer      *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWSTransport creates a transport for url (ws://host:port/ws)
func NewWSTransport(url string, redialDelay time.Duration) *WSTransport {
	if redialDelay <= 0 {
		redialDelay = time.Second
	}
	return &WSTransport{
		url:         url,
		redialDelay: redialDelay,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run dials, pumps inbound frames to listener and redials until ctx is done
// A disconnect the server initiated is redialled at once; anything else waits
// redialDelay first.
func (t *WSTransport) Run(ctx context.Context, listener Listener) error {
	stop := context.AfterFunc(ctx, t.closeConn)
	defer stop()

	listener.OnConnecting()
	attempt := 0
	for {
		conn, _, err := t.dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			listener.OnError(err)
			attempt++
			listener.OnReconnectAttempt(attempt)
			if !sleepCtx(ctx, t.redialDelay) {
				return ctx.Err()
			}
			continue
		}

		attempt = 0
		t.setConn(conn)
		if ctx.Err() != nil {
			t.closeConn()
			return ctx.Err()
		}
		listener.OnConnect()

		reason, serverClosed := t.readPump(conn, listener)
		t.setConn(nil)
		_ = conn.Close()
		listener.OnDisconnect(reason)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !serverClosed && !sleepCtx(ctx, t.redialDelay) {
			return ctx.Err()
		}
		attempt++
		listener.OnReconnectAttempt(attempt)
	}
}

// readPump feeds frames until the connection fails
func (t *WSTransport) readPump(conn *websocket.Conn, listener Listener) (string, bool) {
	for {
		var envelope types.Envelope
		if err := conn.ReadJSON(&envelope); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Sprintf("server closed connection (%d)", closeErr.Code), true
			}
			return err.Error(), false
		}
		if err := listener.HandleEvent(envelope.Event, envelope.Data); err != nil {
			log.Printf("Dropping malformed %s event: %v", envelope.Event, err)
		}
	}
}

// Send implements Sender
func (t *WSTransport) Send(event string, payload interface{}) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(types.OutboundEnvelope{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("%w: %v", types.ErrTransport, err)
	}
	return nil
}

func (t *WSTransport) setConn(conn *websocket.Conn) {
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
}

func (t *WSTransport) closeConn() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
