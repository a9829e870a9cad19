package router

import (
	"testing"
	"time"
)

func TestRateLimiter_Window(t *testing.T) {
	limiter := NewRateLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("c1") {
			t.Fatalf("message %d should be allowed", i)
		}
	}
	if limiter.Allow("c1") {
		t.Error("fourth message in the window should be rejected")
	}
	if !limiter.Allow("c2") {
		t.Error("limits are per connection")
	}

	time.Sleep(60 * time.Millisecond)
	if !limiter.Allow("c1") {
		t.Error("a new window should reset the count")
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(0, time.Minute)
	for i := 0; i < 1000; i++ {
		if !limiter.Allow("c1") {
			t.Fatal("zero limit should disable limiting")
		}
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(10, 10*time.Millisecond)
	limiter.Allow("idle")

	time.Sleep(60 * time.Millisecond)
	limiter.Allow("active")

	if removed := limiter.Cleanup(); removed != 1 {
		t.Errorf("Expected 1 idle entry removed, got %d", removed)
	}
	if limiter.Tracked() != 1 {
		t.Errorf("Expected 1 tracked connection, got %d", limiter.Tracked())
	}
}
