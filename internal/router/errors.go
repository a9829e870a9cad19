package router

import (
	"fmt"

	"chatconnect/pkg/types"
)

// Router-specific errors; each wraps a types sentinel so the hub can map it to a wire code
var (
	ErrRateLimitExceeded = fmt.Errorf("%w: too many messages, slow down", types.ErrRateLimited)
	ErrMissingRoom       = fmt.Errorf("%w: room is required", types.ErrInvalidMessage)
	ErrMissingMessageID  = fmt.Errorf("%w: messageId is required", types.ErrInvalidMessage)
)
