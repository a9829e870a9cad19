package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatconnect/pkg/types"
)

const envPrefix = "CHATCONNECT_"

// Config holds every tunable of the chat server
// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Chat      *ChatConfig      `json:"chat"`
}

// DatabaseConfig describes the volatile in-memory history store
type DatabaseConfig struct {
	Name         string        `json:"name"`
	HistoryLimit int           `json:"history_limit"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type HTTPConfig struct {
	Port            int           `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// WebSocketConfig tunes heartbeats and per-connection buffers
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
	EventBuffer  int           `json:"event_buffer"`
}

// ChatConfig holds room and message policy
type ChatConfig struct {
	DefaultRoom    string        `json:"default_room"`
	SeedRooms      []string      `json:"seed_rooms"`
	WindowSize     int           `json:"window_size"`
	MaxFileSize    int64         `json:"max_file_size"`
	RateLimit      int           `json:"rate_limit"`
	TypingDebounce time.Duration `json:"typing_debounce"`
}

// DefaultConfig returns production defaults
// FUNCTIONAL DISCOVERY: The history store name is unique per process so two
// servers in one test binary never share a transcript.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Name:         "chatconnect-" + uuid.NewString(),
			HistoryLimit: 1000,
			WriteTimeout: 5 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:            3001,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
			EventBuffer:  1000,
		},
		Chat: &ChatConfig{
			DefaultRoom:    types.DefaultRoom,
			SeedRooms:      []string{"general", "nairobi", "mombasa", "kisumu", "coastal"},
			WindowSize:     50,
			MaxFileSize:    types.MaxFileSize,
			RateLimit:      100,
			TypingDebounce: time.Second,
		},
	}
}

// Validate rejects configurations the server cannot run with
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.Database.HistoryLimit <= 0 {
		return fmt.Errorf("database history limit must be positive")
	}
	if c.Database.WriteTimeout <= 0 {
		return fmt.Errorf("database write timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 asks the OS for a free port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP shutdown timeout must be positive")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 || c.WebSocket.EventBuffer <= 0 {
		return fmt.Errorf("WebSocket buffer sizes must be positive")
	}

	if c.Chat == nil {
		return fmt.Errorf("chat configuration is required")
	}
	if _, err := types.ValidateRoomName(c.Chat.DefaultRoom); err != nil {
		return fmt.Errorf("invalid default room %q: %w", c.Chat.DefaultRoom, err)
	}
	if c.Chat.WindowSize <= 0 {
		return fmt.Errorf("chat window size must be positive")
	}
	if c.Chat.MaxFileSize <= 0 || c.Chat.MaxFileSize > types.MaxFileSize {
		return fmt.Errorf("max file size must be between 1 and %d bytes", types.MaxFileSize)
	}
	if c.Chat.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	if c.Chat.TypingDebounce <= 0 {
		return fmt.Errorf("typing debounce must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadFromEnv overlays CHATCONNECT_* variables on the defaults
// Unparseable values are ignored and the default kept.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envString("HTTP_HOST", &config.HTTP.Host)
	envInt("HTTP_PORT", &config.HTTP.Port)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envDuration("HTTP_SHUTDOWN_TIMEOUT", &config.HTTP.ShutdownTimeout)

	envString("DATABASE_NAME", &config.Database.Name)
	envInt("DATABASE_HISTORY_LIMIT", &config.Database.HistoryLimit)
	envDuration("DATABASE_WRITE_TIMEOUT", &config.Database.WriteTimeout)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)
	envInt("WEBSOCKET_EVENT_BUFFER", &config.WebSocket.EventBuffer)

	envString("CHAT_DEFAULT_ROOM", &config.Chat.DefaultRoom)
	if rooms := os.Getenv(envPrefix + "CHAT_SEED_ROOMS"); rooms != "" {
		config.Chat.SeedRooms = splitList(rooms)
	}
	envInt("CHAT_WINDOW_SIZE", &config.Chat.WindowSize)
	envInt("CHAT_RATE_LIMIT", &config.Chat.RateLimit)
	envDuration("CHAT_TYPING_DEBOUNCE", &config.Chat.TypingDebounce)
	if size := os.Getenv(envPrefix + "CHAT_MAX_FILE_SIZE"); size != "" {
		if n, err := strconv.ParseInt(size, 10, 64); err == nil {
			config.Chat.MaxFileSize = n
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigFile is the JSON form of Config with durations as strings
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Chat      *ChatConfigFile      `json:"chat"`
}

type DatabaseConfigFile struct {
	Name         string `json:"name"`
	HistoryLimit int    `json:"history_limit"`
	WriteTimeout string `json:"write_timeout"`
}

type HTTPConfigFile struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	ReadTimeout     string `json:"read_timeout"`
	WriteTimeout    string `json:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
	EventBuffer  int    `json:"event_buffer"`
}

type ChatConfigFile struct {
	DefaultRoom    string   `json:"default_room"`
	SeedRooms      []string `json:"seed_rooms"`
	WindowSize     int      `json:"window_size"`
	MaxFileSize    int64    `json:"max_file_size"`
	RateLimit      *int     `json:"rate_limit"`
	TypingDebounce string   `json:"typing_debounce"`
}

// LoadFromFile reads a JSON config file over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if db := file.Database; db != nil {
		setString(&config.Database.Name, db.Name)
		setInt(&config.Database.HistoryLimit, db.HistoryLimit)
		if err := setDuration(&config.Database.WriteTimeout, db.WriteTimeout); err != nil {
			return fmt.Errorf("database.write_timeout: %w", err)
		}
	}

	if h := file.HTTP; h != nil {
		setInt(&config.HTTP.Port, h.Port)
		setString(&config.HTTP.Host, h.Host)
		for _, d := range []struct {
			name string
			dst  *time.Duration
			val  string
		}{
			{"http.read_timeout", &config.HTTP.ReadTimeout, h.ReadTimeout},
			{"http.write_timeout", &config.HTTP.WriteTimeout, h.WriteTimeout},
			{"http.shutdown_timeout", &config.HTTP.ShutdownTimeout, h.ShutdownTimeout},
		} {
			if err := setDuration(d.dst, d.val); err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
		}
	}

	if ws := file.WebSocket; ws != nil {
		setInt(&config.WebSocket.BufferSize, ws.BufferSize)
		setInt(&config.WebSocket.EventBuffer, ws.EventBuffer)
		for _, d := range []struct {
			name string
			dst  *time.Duration
			val  string
		}{
			{"websocket.ping_interval", &config.WebSocket.PingInterval, ws.PingInterval},
			{"websocket.read_timeout", &config.WebSocket.ReadTimeout, ws.ReadTimeout},
			{"websocket.write_timeout", &config.WebSocket.WriteTimeout, ws.WriteTimeout},
		} {
			if err := setDuration(d.dst, d.val); err != nil {
				return fmt.Errorf("%s: %w", d.name, err)
			}
		}
	}

	if chat := file.Chat; chat != nil {
		setString(&config.Chat.DefaultRoom, chat.DefaultRoom)
		if len(chat.SeedRooms) > 0 {
			config.Chat.SeedRooms = chat.SeedRooms
		}
		setInt(&config.Chat.WindowSize, chat.WindowSize)
		if chat.MaxFileSize > 0 {
			config.Chat.MaxFileSize = chat.MaxFileSize
		}
		if chat.RateLimit != nil {
			config.Chat.RateLimit = *chat.RateLimit
		}
		if err := setDuration(&config.Chat.TypingDebounce, chat.TypingDebounce); err != nil {
			return fmt.Errorf("chat.typing_debounce: %w", err)
		}
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// LoadConfigWithPrecedence resolves file > environment > defaults
// A missing or broken file is reported and the environment config kept.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	config := LoadFromEnv()

	if path != "" {
		candidate := LoadFromEnv()
		if err := applyFile(candidate, path); err != nil {
			return config, err
		}
		config = candidate
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
