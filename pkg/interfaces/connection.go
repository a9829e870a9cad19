package interfaces

// Connection is one live transport connection
// Implementations must serialize writes; WriteJSON may be called from any goroutine.
type Connection interface {
	// ID returns the opaque connection identifier assigned at upgrade time
	ID() string

	// WriteJSON queues v for delivery to the peer
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its writer goroutine
	Close() error
}

// Emitter delivers named application events to connections
// ARCHITECTURAL DISCOVERY: Routing code depends only on this boundary, so the
// router and tracker run unchanged against a recording emitter in tests.
type Emitter interface {
	// Emit sends one event to one connection
	Emit(connID string, event string, payload interface{}) error

	// EmitAll sends one event to every live connection
	EmitAll(event string, payload interface{})
}
