package types

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength    = 50
	maxTextLength    = 5000
	maxReactionBytes = 16

	// DefaultPageLimit and MaxPageLimit bound one page of room history.
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Validate checks the fields a broadcast message must carry.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Room) == "" {
		return fmt.Errorf("%w: room is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Sender) == "" {
		return fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	}
	if m.File == nil && strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidMessage)
	}
	if len(m.Text) > maxTextLength || !utf8.ValidString(m.Text) {
		return fmt.Errorf("%w: text must be valid UTF-8 up to %d bytes", ErrInvalidMessage, maxTextLength)
	}
	return nil
}

// Validate checks a direct message; recipient resolution happens in the router.
func (p *PrivateMessage) Validate() error {
	if strings.TrimSpace(p.From) == "" {
		return fmt.Errorf("%w: from is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(p.To) == "" {
		return fmt.Errorf("%w: to is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidMessage)
	}
	if len(p.Text) > maxTextLength || !utf8.ValidString(p.Text) {
		return fmt.Errorf("%w: text must be valid UTF-8 up to %d bytes", ErrInvalidMessage, maxTextLength)
	}
	return nil
}

// Validate enforces the upload ceiling at the transport boundary.
// Both the declared size and the decoded inline body must fit under limit.
func (f *FileMessage) Validate(limit int64) error {
	if f.Name == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidMessage)
	}
	if f.Size > limit {
		return ErrUploadTooLarge
	}
	if int64(base64.StdEncoding.DecodedLen(len(f.Data))) > limit+2 {
		return ErrUploadTooLarge
	}
	return nil
}

// ToMessage converts the inbound file payload into a stored room message.
func (f *FileMessage) ToMessage() *Message {
	return &Message{
		ID:     f.ID,
		Sender: f.Sender,
		Room:   f.Room,
		File: &FileRef{
			Name: f.Name,
			Type: f.Type,
			Size: f.Size,
			Data: f.Data,
		},
		Timestamp: f.Timestamp,
	}
}

// ValidateRoomName trims and checks a room name.
func ValidateRoomName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength || !utf8.ValidString(name) {
		return "", ErrInvalidRoom
	}
	if IsPrivateRoom(name) {
		return "", fmt.Errorf("%w: %q prefix is reserved", ErrInvalidRoom, privateRoomPrefix)
	}
	return name, nil
}

// IsPrivateRoom reports whether room is a private conversation key.
func IsPrivateRoom(room string) bool {
	return strings.HasPrefix(room, privateRoomPrefix)
}

// NormalizePage clamps a history page request to sane bounds.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// ValidateUsername trims and checks a display name.
func ValidateUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxNameLength || !utf8.ValidString(username) {
		return "", ErrInvalidUsername
	}
	// usernames are joined with the separator in private conversation keys
	if strings.Contains(username, privateKeySeparator) {
		return "", fmt.Errorf("%w: %q is not allowed in usernames", ErrInvalidUsername, privateKeySeparator)
	}
	if username == SystemSender {
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidUsername, SystemSender)
	}
	return username, nil
}

// ValidateReaction checks a reaction key.
func ValidateReaction(emoji string) error {
	if emoji == "" || len(emoji) > maxReactionBytes {
		return fmt.Errorf("%w: reaction must be 1-%d bytes", ErrInvalidMessage, maxReactionBytes)
	}
	return nil
}
