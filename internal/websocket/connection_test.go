package websocket

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConnection_AssignsUniqueIDs(t *testing.T) {
	a, _ := newServerConnection(t)
	b, _ := newServerConnection(t)

	if a.ID() == "" || a.ID() == b.ID() {
		t.Errorf("Expected distinct non-empty ids, got %q and %q", a.ID(), b.ID())
	}
}

func TestConnection_WriteJSONDelivers(t *testing.T) {
	conn, client := newServerConnection(t)

	if err := conn.WriteJSON(map[string]string{"event": "ping"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]string
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got["event"] != "ping" {
		t.Errorf("Expected ping, got %v", got)
	}
}

func TestConnection_WritesArriveInOrder(t *testing.T) {
	conn, client := newServerConnection(t)

	for i := 0; i < 5; i++ {
		if err := conn.WriteJSON(map[string]int{"n": i}); err != nil {
			t.Fatalf("WriteJSON %d failed: %v", i, err)
		}
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < 5; i++ {
		var got map[string]int
		if err := client.ReadJSON(&got); err != nil {
			t.Fatalf("ReadJSON %d failed: %v", i, err)
		}
		if got["n"] != i {
			t.Errorf("Expected frame %d, got %d", i, got["n"])
		}
	}
}

func TestConnection_CloseIsIdempotent(t *testing.T) {
	conn, _ := newServerConnection(t)

	if err := conn.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if err := conn.WriteJSON("late"); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done should be closed after Close")
	}
}

func TestConnection_UnmarshalableValue(t *testing.T) {
	conn, _ := newServerConnection(t)
	if err := conn.WriteJSON(make(chan int)); !errors.Is(err, ErrInvalidJSON) {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
}

func TestConnection_SlowConsumerNeverBlocksWriter(t *testing.T) {
	// the client side never reads, so the socket and then the queue fill up
	conn, _ := newServerConnection(t)
	frame := map[string]string{"data": strings.Repeat("x", 1<<20)}

	var failure error
	for i := 0; i < 200 && failure == nil; i++ {
		start := time.Now()
		failure = conn.WriteJSON(frame)
		if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
			t.Fatalf("WriteJSON %d blocked for %v", i, elapsed)
		}
	}

	if !errors.Is(failure, ErrSendQueueFull) && !errors.Is(failure, ErrConnectionClosed) {
		t.Fatalf("Expected the slow consumer to be dropped, got %v", failure)
	}
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Error("slow consumer should be closed")
	}
}
