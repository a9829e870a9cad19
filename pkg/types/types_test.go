package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestUserSet_AddIsIdempotent(t *testing.T) {
	var set UserSet

	if !set.Add("alice") {
		t.Fatal("first Add should report a change")
	}
	if set.Add("alice") {
		t.Error("second Add of the same user should be a no-op")
	}
	set.Add("bob")

	if len(set) != 2 {
		t.Fatalf("Expected 2 members, got %d: %v", len(set), set)
	}
	if set[0] != "alice" || set[1] != "bob" {
		t.Errorf("Expected insertion order [alice bob], got %v", set)
	}
}

func TestUserSet_Remove(t *testing.T) {
	set := UserSet{"alice", "bob", "carol"}

	if !set.Remove("bob") {
		t.Fatal("Remove of a member should report a change")
	}
	if set.Remove("bob") {
		t.Error("Remove of a non-member should be a no-op")
	}
	if set.Contains("bob") {
		t.Error("bob should be gone")
	}
	if len(set) != 2 {
		t.Errorf("Expected 2 members, got %v", set)
	}
}

func TestUserSet_CloneMarshalsAsEmptyArray(t *testing.T) {
	var set UserSet
	data, err := json.Marshal(set.Clone())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Expected [], got %s", data)
	}
}

func TestMessage_ReactionsAreSets(t *testing.T) {
	msg := &Message{ID: "m1", Sender: "alice", Room: "nairobi", Text: "hi"}

	msg.AddReaction("👍", "bob")
	msg.AddReaction("👍", "bob")
	msg.AddReaction("👍", "carol")

	if got := len(msg.Reactions["👍"]); got != 2 {
		t.Fatalf("Expected 2 reactors, got %d", got)
	}

	msg.RemoveReaction("👍", "bob")
	msg.RemoveReaction("👍", "carol")
	if _, ok := msg.Reactions["👍"]; ok {
		t.Error("empty reaction key should be deleted")
	}
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{"valid", Message{Room: "general", Sender: "alice", Text: "hello"}, nil},
		{"missing room", Message{Sender: "alice", Text: "hello"}, ErrInvalidMessage},
		{"missing sender", Message{Room: "general", Text: "hello"}, ErrInvalidMessage},
		{"missing text", Message{Room: "general", Sender: "alice"}, ErrInvalidMessage},
		{"file without text", Message{Room: "general", Sender: "alice", File: &FileRef{Name: "a.png"}}, nil},
		{"text too long", Message{Room: "general", Sender: "alice", Text: strings.Repeat("x", 5001)}, ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr == nil && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFileMessage_ValidateSizeCeiling(t *testing.T) {
	small := &FileMessage{Name: "a.txt", Size: 4, Data: "aGVsbG8="}
	if err := small.Validate(MaxFileSize); err != nil {
		t.Errorf("Expected small file to pass, got %v", err)
	}

	declared := &FileMessage{Name: "big.bin", Size: MaxFileSize + 1}
	if err := declared.Validate(MaxFileSize); !errors.Is(err, ErrUploadTooLarge) {
		t.Errorf("Expected ErrUploadTooLarge for declared size, got %v", err)
	}

	lying := &FileMessage{Name: "big.bin", Size: 1, Data: strings.Repeat("A", 64)}
	if err := lying.Validate(16); !errors.Is(err, ErrUploadTooLarge) {
		t.Errorf("Expected ErrUploadTooLarge for oversized body, got %v", err)
	}
}

func TestPrivateRoomKey_Unordered(t *testing.T) {
	if PrivateRoomKey("alice", "bob") != PrivateRoomKey("bob", "alice") {
		t.Error("private room key must not depend on argument order")
	}
}

func TestValidateUsername_ReservesSystem(t *testing.T) {
	if _, err := ValidateUsername(SystemSender); !errors.Is(err, ErrInvalidUsername) {
		t.Errorf("Expected System to be reserved, got %v", err)
	}
	name, err := ValidateUsername("  wanjiru ")
	if err != nil || name != "wanjiru" {
		t.Errorf("Expected trimmed name, got %q, %v", name, err)
	}
}

func TestReactionPayload_Key(t *testing.T) {
	if got := (ReactionPayload{ReactionType: "love"}).Key(); got != "❤️" {
		t.Errorf("Expected named reaction to translate, got %q", got)
	}
	if got := (ReactionPayload{Emoji: "🔥"}).Key(); got != "🔥" {
		t.Errorf("Expected explicit emoji to win, got %q", got)
	}
}

func TestErrorCode(t *testing.T) {
	if code := ErrorCode(ErrUnknownRecipient); code != CodeUnknownRecipient {
		t.Errorf("Expected %s, got %s", CodeUnknownRecipient, code)
	}
	if code := ErrorCode(errors.New("boom")); code != CodeInternal {
		t.Errorf("Expected %s, got %s", CodeInternal, code)
	}
}

func TestValidateRoomName_RejectsPrivatePrefix(t *testing.T) {
	key := PrivateRoomKey("alice", "bob")
	if !IsPrivateRoom(key) {
		t.Fatalf("Expected %q to be a private key", key)
	}
	if _, err := ValidateRoomName(key); !errors.Is(err, ErrInvalidRoom) {
		t.Errorf("Expected ErrInvalidRoom for %q, got %v", key, err)
	}
	if IsPrivateRoom("general") {
		t.Error("general is not a private key")
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, DefaultPageLimit},
		{-3, 10, 1, 10},
		{2, MaxPageLimit + 1, 2, MaxPageLimit},
		{4, 20, 4, 20},
	}

	for _, tt := range tests {
		page, limit := NormalizePage(tt.page, tt.limit)
		if page != tt.wantPage || limit != tt.wantLimit {
			t.Errorf("NormalizePage(%d, %d) = (%d, %d), want (%d, %d)",
				tt.page, tt.limit, page, limit, tt.wantPage, tt.wantLimit)
		}
	}
}

func TestValidateUsername_RejectsKeySeparator(t *testing.T) {
	for _, name := range []string{"a:b", "b:c", ":"} {
		if _, err := ValidateUsername(name); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("Expected ErrInvalidUsername for %q, got %v", name, err)
		}
	}
	if PrivateRoomKey("a", "bc") == PrivateRoomKey("ab", "c") {
		t.Error("distinct valid pairs must not share a key")
	}
}
