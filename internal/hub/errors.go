package hub

import "errors"

// Hub-specific errors
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventChannelFull  = errors.New("event channel is full")
	ErrTaskChannelFull   = errors.New("task channel is full")
)

// recipientError carries the private-message target back to the error event
type recipientError struct {
	to  string
	err error
}

func (e *recipientError) Error() string { return e.err.Error() }
func (e *recipientError) Unwrap() error { return e.err }
