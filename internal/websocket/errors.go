package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("outbound queue full, connection dropped")
	ErrInvalidJSON      = errors.New("frame could not be encoded as JSON")

	// ErrNilConnection is returned when registering a nil connection
	ErrNilConnection = errors.New("connection cannot be nil")
)
