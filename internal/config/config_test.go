package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// FUNCTIONAL VALIDATION TEST: Default configuration provides production-ready settings
func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if !strings.HasPrefix(config.Database.Name, "chatconnect-") {
		t.Errorf("Expected generated database name, got %q", config.Database.Name)
	}
	if config.HTTP.Port != 3001 {
		t.Errorf("Expected default port 3001, got %d", config.HTTP.Port)
	}
	if config.Chat.DefaultRoom != "general" {
		t.Errorf("Expected default room general, got %q", config.Chat.DefaultRoom)
	}
	if config.Chat.WindowSize != 50 {
		t.Errorf("Expected window size 50, got %d", config.Chat.WindowSize)
	}
	if config.Chat.MaxFileSize != 10<<20 {
		t.Errorf("Expected 10 MiB file ceiling, got %d", config.Chat.MaxFileSize)
	}
	if config.Addr() != "0.0.0.0:3001" {
		t.Errorf("Unexpected listen address %s", config.Addr())
	}
}

func TestConfig_DefaultDatabaseNamesAreUnique(t *testing.T) {
	if DefaultConfig().Database.Name == DefaultConfig().Database.Name {
		t.Error("two default configs should not share a history store")
	}
}

func TestConfig_ValidationErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative port", func(c *Config) { c.HTTP.Port = -1 }, "port"},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }, "port"},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }, "host"},
		{"empty database name", func(c *Config) { c.Database.Name = "" }, "database name"},
		{"zero history", func(c *Config) { c.Database.HistoryLimit = 0 }, "history limit"},
		{"read timeout under ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }, "ping interval"},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }, "buffer"},
		{"blank default room", func(c *Config) { c.Chat.DefaultRoom = "  " }, "default room"},
		{"oversized file ceiling", func(c *Config) { c.Chat.MaxFileSize = 11 << 20 }, "max file size"},
		{"negative rate limit", func(c *Config) { c.Chat.RateLimit = -1 }, "rate limit"},
		{"missing chat section", func(c *Config) { c.Chat = nil }, "chat configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfig_RateLimitZeroDisables(t *testing.T) {
	config := DefaultConfig()
	config.Chat.RateLimit = 0
	if err := config.Validate(); err != nil {
		t.Errorf("rate limit 0 should be accepted as disabled: %v", err)
	}
}

// FUNCTIONAL VALIDATION TEST: Environment variable configuration loading
func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("CHATCONNECT_HTTP_PORT", "9090")
	t.Setenv("CHATCONNECT_DATABASE_NAME", "history-test")
	t.Setenv("CHATCONNECT_WEBSOCKET_PING_INTERVAL", "15s")
	t.Setenv("CHATCONNECT_CHAT_SEED_ROOMS", "general, lamu ,,malindi")
	t.Setenv("CHATCONNECT_CHAT_MAX_FILE_SIZE", "1024")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.Name != "history-test" {
		t.Errorf("Expected database name history-test, got %s", config.Database.Name)
	}
	if config.WebSocket.PingInterval != 15*time.Second {
		t.Errorf("Expected ping interval 15s, got %v", config.WebSocket.PingInterval)
	}
	if want := []string{"general", "lamu", "malindi"}; !slices.Equal(config.Chat.SeedRooms, want) {
		t.Errorf("Expected seed rooms %v, got %v", want, config.Chat.SeedRooms)
	}
	if config.Chat.MaxFileSize != 1024 {
		t.Errorf("Expected max file size 1024, got %d", config.Chat.MaxFileSize)
	}
}

func TestConfig_LoadFromEnvEdgeCases(t *testing.T) {
	t.Setenv("CHATCONNECT_HTTP_PORT", "not-a-number")
	t.Setenv("CHATCONNECT_WEBSOCKET_READ_TIMEOUT", "forever")

	config := LoadFromEnv()
	defaults := DefaultConfig()

	if config.HTTP.Port != defaults.HTTP.Port {
		t.Errorf("unparseable port should keep default, got %d", config.HTTP.Port)
	}
	if config.WebSocket.ReadTimeout != defaults.WebSocket.ReadTimeout {
		t.Errorf("unparseable duration should keep default, got %v", config.WebSocket.ReadTimeout)
	}
}

// FUNCTIONAL VALIDATION TEST: File-based configuration loading
func TestConfig_LoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"http": {"port": 8081, "read_timeout": "15s"},
		"database": {"name": "from-file", "history_limit": 200},
		"websocket": {"ping_interval": "20s", "read_timeout": "45s"},
		"chat": {"default_room": "lamu", "seed_rooms": ["lamu"], "rate_limit": 0, "typing_debounce": "500ms"}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.HTTP.Port != 8081 || config.HTTP.ReadTimeout != 15*time.Second {
		t.Errorf("Unexpected HTTP section %+v", config.HTTP)
	}
	if config.HTTP.WriteTimeout != 30*time.Second {
		t.Errorf("Unset fields should keep defaults, got write timeout %v", config.HTTP.WriteTimeout)
	}
	if config.Database.Name != "from-file" || config.Database.HistoryLimit != 200 {
		t.Errorf("Unexpected database section %+v", config.Database)
	}
	if config.WebSocket.ReadTimeout != 45*time.Second {
		t.Errorf("Expected read timeout 45s, got %v", config.WebSocket.ReadTimeout)
	}
	if config.Chat.DefaultRoom != "lamu" || config.Chat.RateLimit != 0 {
		t.Errorf("Unexpected chat section %+v", config.Chat)
	}
	if config.Chat.TypingDebounce != 500*time.Millisecond {
		t.Errorf("Expected debounce 500ms, got %v", config.Chat.TypingDebounce)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid json", `{"http": {"port": 8081`, "failed to parse"},
		{"bad duration", `{"websocket": {"ping_interval": "often"}}`, "websocket.ping_interval"},
		{"invalid values", `{"http": {"port": 99999}}`, "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfigFile(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file should fail")
	}
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	config, err := LoadConfigWithPrecedence("")
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}
	if config.HTTP.Port != 3001 {
		t.Errorf("Expected default port 3001, got %d", config.HTTP.Port)
	}

	t.Setenv("CHATCONNECT_HTTP_PORT", "9999")
	t.Setenv("CHATCONNECT_CHAT_WINDOW_SIZE", "25")

	config, err = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "nonexistent.json"))
	if err == nil {
		t.Error("missing file should be reported")
	}
	if config == nil || config.HTTP.Port != 9999 {
		t.Errorf("missing file should fall back to environment config, got %+v", config)
	}

	path := writeConfigFile(t, `{"http": {"port": 7777}}`)
	config, err = LoadConfigWithPrecedence(path)
	if err != nil {
		t.Fatalf("LoadConfigWithPrecedence failed: %v", err)
	}
	if config.HTTP.Port != 7777 {
		t.Errorf("file should override environment, got port %d", config.HTTP.Port)
	}
	if config.Chat.WindowSize != 25 {
		t.Errorf("environment should fill fields the file leaves unset, got %d", config.Chat.WindowSize)
	}
}
