package interfaces

import (
	"context"

	"chatconnect/pkg/types"
)

// MessageRouter validates inbound chat events and fans them out
type MessageRouter interface {
	RouteBroadcast(ctx context.Context, connID string, message *types.Message) error
	RouteFile(ctx context.Context, connID string, file *types.FileMessage) error
	RoutePrivate(ctx context.Context, connID string, message *types.PrivateMessage) error
	AddReaction(ctx context.Context, connID, messageID, emoji, username string) error
	RemoveReaction(ctx context.Context, connID, messageID, emoji, username string) error
	MarkRead(ctx context.Context, connID, messageID, username string) error
	MarkAllRead(ctx context.Context, connID, room string) error
	LoadMore(ctx context.Context, connID, room string, page, limit int) error
	CreateRoom(ctx context.Context, connID, name string) error

	// Prune drops idle per-connection state
	Prune()
}
