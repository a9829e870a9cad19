package websocket

import (
	"fmt"
	"log"
	"sync"

	"chatconnect/pkg/interfaces"
	"chatconnect/pkg/types"
)

// Registry maps connection ids to live sockets and delivers events to them
// ARCHITECTURAL DISCOVERY: Pure connection tracking. Who is in which room is
// the session registry's business; this only knows how to reach a socket.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection // connID -> Connection
}

var _ interfaces.Emitter = (*Registry)(nil)

// NewRegistry creates an empty connection registry
func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]*Connection)}
}

// Register adds a connection
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes conn if it is still the one registered under its id
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.connections[conn.ID()]; ok && current == conn {
		delete(r.connections, conn.ID())
	}
}

// Get returns the connection registered under connID
func (r *Registry) Get(connID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[connID]
	return conn, ok
}

// Count returns the number of live connections
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Emit sends one event to one connection
func (r *Registry) Emit(connID string, event string, payload interface{}) error {
	conn, ok := r.Get(connID)
	if !ok {
		return fmt.Errorf("%w: %s", interfaces.ErrConnectionNotFound, connID)
	}
	return conn.WriteJSON(types.OutboundEnvelope{Event: event, Data: payload})
}

// EmitAll sends one event to every live connection
func (r *Registry) EmitAll(event string, payload interface{}) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(types.OutboundEnvelope{Event: event, Data: payload}); err != nil {
			log.Printf("Failed to deliver %s to %s: %v", event, conn.ID(), err)
		}
	}
}

// CloseAll closes every connection, used during shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
