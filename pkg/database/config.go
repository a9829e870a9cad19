package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Config holds settings for the in-memory history database
// ARCHITECTURAL DISCOVERY: The history store is a named shared-cache memory
// database, so every process (and every test) gets its own volatile copy.
type Config struct {
	Name         string        `json:"name"`
	HistoryLimit int           `json:"history_limit"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// DefaultConfig returns a config with a unique database name
func DefaultConfig() *Config {
	return &Config{
		Name:         "chatconnect-" + uuid.NewString(),
		HistoryLimit: 1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("database name cannot be empty")
	}
	if c.HistoryLimit <= 0 {
		return errors.New("history limit must be greater than 0")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be greater than 0")
	}
	return nil
}

// DSN builds the go-sqlite3 connection string
// The database disappears when its last connection closes.
func (c *Config) DSN() string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000&_foreign_keys=on", c.Name)
}

// SQLiteOptimizations are the pragmas applied to a memory-resident database
const SQLiteOptimizations = `
	PRAGMA synchronous = OFF;           -- nothing to fsync
	PRAGMA temp_store = MEMORY;
	PRAGMA foreign_keys = ON;
	PRAGMA busy_timeout = 5000;
`
