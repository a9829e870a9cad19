package client

import (
	"slices"

	"chatconnect/pkg/types"
)

// roomHistory is the client's transcript of one room
// FUNCTIONAL DISCOVERY: messages is the unbounded copy kept across room
// switches; the visible window is its tail, windowLimit entries long.
type roomHistory struct {
	messages    []*types.Message
	byID        map[string]*types.Message
	windowLimit int
	hasMore     bool
	pagesLoaded int
}

func newRoomHistory(window int) *roomHistory {
	return &roomHistory{
		byID:        make(map[string]*types.Message),
		windowLimit: window,
		hasMore:     true,
	}
}

// add merges messages by id and reports how many were new
// Ordering is by timestamp; messages with equal timestamps keep arrival order.
func (h *roomHistory) add(messages ...*types.Message) int {
	added := 0
	appendOnly := true
	for _, message := range messages {
		if message == nil || message.ID == "" {
			continue
		}
		if _, seen := h.byID[message.ID]; seen {
			continue
		}
		if n := len(h.messages); n > 0 && message.Timestamp.Before(h.messages[n-1].Timestamp) {
			appendOnly = false
		}
		h.byID[message.ID] = message
		h.messages = append(h.messages, message)
		added++
	}
	if !appendOnly {
		slices.SortStableFunc(h.messages, func(a, b *types.Message) int {
			return a.Timestamp.Compare(b.Timestamp)
		})
	}
	return added
}

// addPage merges one history page and grows the window so older messages stay visible
func (h *roomHistory) addPage(page int, messages []*types.Message, hasMore bool) int {
	added := h.add(messages...)
	h.windowLimit += added
	if page > h.pagesLoaded {
		h.pagesLoaded = page
	}
	// A later page answering out of order must not re-enable paging past the end
	if page >= h.pagesLoaded {
		h.hasMore = hasMore
	}
	return added
}

func (h *roomHistory) get(id string) (*types.Message, bool) {
	message, ok := h.byID[id]
	return message, ok
}

// window returns the visible tail of the transcript
func (h *roomHistory) window() []*types.Message {
	start := 0
	if len(h.messages) > h.windowLimit {
		start = len(h.messages) - h.windowLimit
	}
	return h.messages[start:]
}

// resetWindow restores the default window, used when the room is re-entered
func (h *roomHistory) resetWindow(window int) {
	h.windowLimit = window
}

func (h *roomHistory) markAllRead(username string) {
	for _, message := range h.messages {
		message.MarkReadBy(username)
	}
}

func copyMessage(message *types.Message) types.Message {
	out := *message
	out.Reactions = types.CloneReactions(message.Reactions)
	out.ReadBy = message.ReadBy.Clone()
	if message.File != nil {
		file := *message.File
		out.File = &file
	}
	return out
}

func copyMessages(messages []*types.Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, message := range messages {
		out = append(out, copyMessage(message))
	}
	return out
}
