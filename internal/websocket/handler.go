package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chatconnect/pkg/types"
)

// Dispatcher is the event loop the handler feeds
type Dispatcher interface {
	Connect(connID string) error
	Disconnect(connID string) error
	Dispatch(connID, event string, data json.RawMessage) error
}

// Options tune the WebSocket transport
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
	MaxFileSize  int64
}

// DefaultOptions mirrors the config defaults
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
		MaxFileSize:  types.MaxFileSize,
	}
}

// readLimit leaves room for a maximum-size file after base64 inflation
func (o Options) readLimit() int64 {
	return o.MaxFileSize*4/3 + 64<<10
}

var upgrader = websocket.Upgrader{
	// FUNCTIONAL DISCOVERY: Allow all origins; authentication is out of scope
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests and pumps frames into the dispatcher
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	options    Options
}

// NewHandler creates a new WebSocket handler
func NewHandler(registry *Registry, dispatcher Dispatcher, options Options) *Handler {
	defaults := DefaultOptions()
	if options.PingInterval <= 0 {
		options.PingInterval = defaults.PingInterval
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = defaults.ReadTimeout
	}
	if options.MaxFileSize <= 0 {
		options.MaxFileSize = defaults.MaxFileSize
	}
	return &Handler{registry: registry, dispatcher: dispatcher, options: options}
}

// HandleWebSocket upgrades the request and serves the connection until it closes
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.options.BufferSize, h.options.WriteTimeout)
	if err := h.registry.Register(wsConn); err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}
	if err := h.dispatcher.Connect(wsConn.ID()); err != nil {
		log.Printf("Rejecting connection %s: %v", wsConn.ID(), err)
		h.registry.Unregister(wsConn)
		_ = wsConn.Close()
		return
	}
	log.Printf("Connection registered: %s from %s", wsConn.ID(), r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat for one connection
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Every opened connection reaches Disconnect
		// exactly once, whatever ended the read loop.
		if err := h.dispatcher.Disconnect(conn.ID()); err != nil {
			log.Printf("Disconnect for %s not delivered: %v", conn.ID(), err)
		}
		h.registry.Unregister(conn)
		_ = conn.Close()
		log.Printf("Connection closed: %s", conn.ID())
	}()

	conn.conn.SetReadLimit(h.options.readLimit())
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.options.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.options.ReadTimeout))
	})

	go func() {
		ticker := time.NewTicker(h.options.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				log.Printf("Connection %s exceeded the frame limit", conn.ID())
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.handleFrame(conn, data)
	}
}

// handleFrame decodes one envelope and forwards it to the dispatcher
func (h *Handler) handleFrame(conn *Connection, data []byte) {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Event == "" {
		h.reject(conn, envelope.Event, types.ErrInvalidMessage, types.CodeInvalidMessage)
		return
	}

	// Oversized files are refused here and never reach the router
	if envelope.Event == types.EventSendFileMessage {
		var file types.FileMessage
		if err := json.Unmarshal(envelope.Data, &file); err != nil {
			h.reject(conn, envelope.Event, types.ErrInvalidMessage, types.CodeInvalidMessage)
			return
		}
		if err := file.Validate(h.options.MaxFileSize); errors.Is(err, types.ErrUploadTooLarge) {
			h.reject(conn, envelope.Event, err, types.CodeUploadTooLarge)
			return
		}
	}

	if err := h.dispatcher.Dispatch(conn.ID(), envelope.Event, envelope.Data); err != nil {
		log.Printf("Dropping %s from %s: %v", envelope.Event, conn.ID(), err)
		h.reject(conn, envelope.Event, err, types.CodeServerBusy)
	}
}

func (h *Handler) reject(conn *Connection, event string, err error, code string) {
	payload := types.ErrorPayload{Event: event, Error: err.Error(), Code: code}
	if writeErr := conn.WriteJSON(types.OutboundEnvelope{Event: types.EventMessageError, Data: payload}); writeErr != nil {
		log.Printf("Failed to send error to %s: %v", conn.ID(), writeErr)
	}
}
