package interfaces

import "context"

// PresenceTracker owns session lifecycle, room moves and typing state
type PresenceTracker interface {
	Register(ctx context.Context, connID, username, room string) error
	Join(ctx context.Context, connID, room string) error
	Disconnect(ctx context.Context, connID string) error
	Typing(ctx context.Context, connID, room string) error
	StopTyping(ctx context.Context, connID, room string) error
}
