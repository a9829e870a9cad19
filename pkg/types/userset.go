package types

import "slices"

// UserSet is an insertion-ordered set of usernames.
// It marshals as a plain JSON array so full-set syncs stay readable on the wire.
type UserSet []string

// Add inserts username if absent and reports whether the set changed.
func (s *UserSet) Add(username string) bool {
	if username == "" || s.Contains(username) {
		return false
	}
	*s = append(*s, username)
	return true
}

// Remove deletes username and reports whether the set changed.
func (s *UserSet) Remove(username string) bool {
	idx := slices.Index(*s, username)
	if idx < 0 {
		return false
	}
	*s = slices.Delete(*s, idx, idx+1)
	return true
}

// Contains reports membership.
func (s UserSet) Contains(username string) bool {
	return slices.Contains(s, username)
}

// Clone returns an independent copy; never nil so it encodes as [].
func (s UserSet) Clone() UserSet {
	out := make(UserSet, len(s))
	copy(out, s)
	return out
}

// CloneReactions deep-copies a reaction map.
func CloneReactions(reactions map[string]UserSet) map[string]UserSet {
	out := make(map[string]UserSet, len(reactions))
	for emoji, users := range reactions {
		out[emoji] = users.Clone()
	}
	return out
}
