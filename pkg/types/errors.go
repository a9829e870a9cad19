package types

import "errors"

// Error taxonomy shared by the router, tracker, transport and client.
// Callers wrap these with fmt.Errorf("%w: ...") and compare with errors.Is.
var (
	ErrInvalidMessage   = errors.New("invalid message")
	ErrUnknownRecipient = errors.New("recipient is not connected")
	ErrDuplicateRoom    = errors.New("room already exists")
	ErrInvalidRoom      = errors.New("room name must be 1-50 characters")
	ErrInvalidUsername  = errors.New("username must be 1-50 characters")
	ErrUploadTooLarge   = errors.New("file exceeds 10MB limit")
	ErrMessageNotFound  = errors.New("message not found")
	ErrNotRegistered    = errors.New("connection has not registered a username")
	ErrRateLimited      = errors.New("rate limit exceeded")
	ErrTransport        = errors.New("transport error")
)

// Wire codes carried in error events
const (
	CodeInvalidMessage   = "invalid_message"
	CodeUnknownRecipient = "unknown_recipient"
	CodeDuplicateRoom    = "duplicate_room"
	CodeInvalidRoom      = "invalid_room"
	CodeUploadTooLarge   = "upload_too_large"
	CodeMessageNotFound  = "message_not_found"
	CodeNotRegistered    = "not_registered"
	CodeRateLimited      = "rate_limited"
	CodeServerBusy       = "server_busy"
	CodeInternal         = "internal_error"
)

// ErrorCode maps an error to the code sent back to the originating connection.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage), errors.Is(err, ErrInvalidUsername):
		return CodeInvalidMessage
	case errors.Is(err, ErrUnknownRecipient):
		return CodeUnknownRecipient
	case errors.Is(err, ErrDuplicateRoom):
		return CodeDuplicateRoom
	case errors.Is(err, ErrInvalidRoom):
		return CodeInvalidRoom
	case errors.Is(err, ErrUploadTooLarge):
		return CodeUploadTooLarge
	case errors.Is(err, ErrMessageNotFound):
		return CodeMessageNotFound
	case errors.Is(err, ErrNotRegistered):
		return CodeNotRegistered
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
