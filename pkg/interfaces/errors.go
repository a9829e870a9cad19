package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrDuplicateMessage   = errors.New("message already stored")
	ErrStoreClosed        = errors.New("message store is closed")
)
