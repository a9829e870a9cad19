package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatconnect/internal/api"
	"chatconnect/internal/config"
	"chatconnect/pkg/types"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	return cfg
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.Port = -1

	application, err := NewApplication(cfg)
	if err == nil {
		t.Fatal("Expected invalid configuration to be rejected")
	}
	if application != nil {
		t.Error("Constructor should not return an application with invalid config")
	}
}

func TestNewApplication_NilConfigUsesDefaults(t *testing.T) {
	application, err := NewApplication(nil)
	if err != nil {
		t.Fatalf("Expected defaults to be valid, got %v", err)
	}
	defer application.store.Close()

	if application.GetAddr() != "0.0.0.0:3001" {
		t.Errorf("Expected default address before Start, got %s", application.GetAddr())
	}
}

func TestApplication_StartServesHealthAndStops(t *testing.T) {
	application, err := NewApplication(testConfig())
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/health", application.GetAddr()))
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	var health api.HealthResponse
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if resp.StatusCode != http.StatusOK || health.Status != "healthy" {
		t.Errorf("Expected healthy 200, got %d %+v", resp.StatusCode, health)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if application.hub.IsRunning() {
		t.Error("hub should be stopped after Stop")
	}
}

func TestApplication_StopClosesLiveConnections(t *testing.T) {
	application, err := NewApplication(testConfig())
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", application.GetAddr()), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(types.OutboundEnvelope{
		Event: types.EventUserJoin,
		Data:  types.JoinPayload{Username: "amani", Room: "general"},
	}); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for application.sessions.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if application.sessions.Count() != 1 {
		t.Fatalf("Expected 1 session, got %d", application.sessions.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if application.sessions.Count() != 0 {
		t.Errorf("Expected sessions drained on Stop, got %d", application.sessions.Count())
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
