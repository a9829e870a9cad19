package client

import (
	"errors"
	"fmt"
)

var (
	ErrClosed        = errors.New("client closed")
	ErrNotConnected  = errors.New("not connected")
	ErrNotRegistered = errors.New("no username registered")
	ErrNoMoreHistory = errors.New("no older messages")
	ErrFetchFailed   = errors.New("history fetch failed")
)

// ServerError is a typed error event returned to this connection by the server
type ServerError struct {
	Event   string
	Message string
	Code    string
	To      string
}

func (e *ServerError) Error() string {
	if e.To != "" {
		return fmt.Sprintf("%s (%s): %s [to %s]", e.Event, e.Code, e.Message, e.To)
	}
	return fmt.Sprintf("%s (%s): %s", e.Event, e.Code, e.Message)
}
