package rooms

import (
	"errors"
	"slices"
	"testing"

	"chatconnect/internal/session"
	"chatconnect/pkg/types"
)

func TestDirectory_SeededInOrder(t *testing.T) {
	directory := NewDirectory(session.NewRegistry("general"), nil)

	if got := directory.List(); !slices.Equal(got, DefaultRooms) {
		t.Errorf("Expected %v, got %v", DefaultRooms, got)
	}
}

func TestDirectory_CreateDuplicate(t *testing.T) {
	directory := NewDirectory(session.NewRegistry("general"), nil)
	before := len(directory.List())

	if _, err := directory.Create("nairobi"); !errors.Is(err, types.ErrDuplicateRoom) {
		t.Errorf("Expected ErrDuplicateRoom, got %v", err)
	}
	if after := len(directory.List()); after != before {
		t.Errorf("Duplicate create changed room count from %d to %d", before, after)
	}

	name, err := directory.Create("  eldoret ")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if name != "eldoret" {
		t.Errorf("Expected trimmed name eldoret, got %q", name)
	}
	if _, err := directory.Create("eldoret"); !errors.Is(err, types.ErrDuplicateRoom) {
		t.Errorf("Expected ErrDuplicateRoom on second create, got %v", err)
	}

	list := directory.List()
	if list[len(list)-1] != "eldoret" {
		t.Errorf("Expected eldoret last in creation order, got %v", list)
	}
}

func TestDirectory_CreateInvalid(t *testing.T) {
	directory := NewDirectory(nil, []string{"general"})
	if _, err := directory.Create("   "); !errors.Is(err, types.ErrInvalidRoom) {
		t.Errorf("Expected ErrInvalidRoom, got %v", err)
	}
}

func TestDirectory_ImplicitRoomsFromSessions(t *testing.T) {
	registry := session.NewRegistry("general")
	directory := NewDirectory(registry, []string{"general"})

	registry.Register("c1", "alice", "hidden-den")

	if !directory.Exists("hidden-den") {
		t.Error("room referenced by a live session should exist")
	}
	if _, err := directory.Create("hidden-den"); !errors.Is(err, types.ErrDuplicateRoom) {
		t.Errorf("Expected ErrDuplicateRoom for implicit room, got %v", err)
	}

	registry.Remove("c1")
	if directory.Exists("hidden-den") {
		t.Error("implicit room should vanish with its last session")
	}
}

func TestDirectory_CountsAreLive(t *testing.T) {
	registry := session.NewRegistry("general")
	directory := NewDirectory(registry, []string{"general", "nairobi"})

	registry.Register("c1", "a", "nairobi")
	registry.Register("c2", "b", "nairobi")
	counts := directory.Counts()
	if counts[1].Name != "nairobi" || counts[1].UserCount != 2 {
		t.Errorf("Expected nairobi=2, got %+v", counts)
	}

	registry.SetRoom("c2", "general")
	counts = directory.Counts()
	if counts[0].UserCount != 1 || counts[1].UserCount != 1 {
		t.Errorf("Expected general=1 nairobi=1 after move, got %+v", counts)
	}
}
