package interfaces

import (
	"context"

	"chatconnect/pkg/types"
)

// MessageStore holds the volatile per-process message history
// FUNCTIONAL DISCOVERY: History lives only as long as the process; a restart
// loses every transcript, reaction and read receipt.
type MessageStore interface {
	// StoreMessage records a newly routed message
	StoreMessage(ctx context.Context, message *types.Message) error

	// GetMessage loads one message by id, returning types.ErrMessageNotFound when absent
	GetMessage(ctx context.Context, messageID string) (*types.Message, error)

	// UpdateMessage applies mutate to a stored message atomically and persists the result
	UpdateMessage(ctx context.Context, messageID string, mutate func(*types.Message) error) (*types.Message, error)

	// MarkRoomRead adds username to readBy for every message in room
	MarkRoomRead(ctx context.Context, room, username string) (int, error)

	// GetRoomPage returns one page of room history; page 1 holds the newest messages,
	// ordered oldest-first within the page
	GetRoomPage(ctx context.Context, room string, page, limit int) ([]*types.Message, bool, error)

	// HealthCheck verifies the store answers queries
	HealthCheck(ctx context.Context) error

	// Close releases the store
	Close() error
}
