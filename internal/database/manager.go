package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"

	dbconfig "chatconnect/pkg/database"
	"chatconnect/pkg/interfaces"
	"chatconnect/pkg/types"
)

// Manager implements interfaces.MessageStore on an in-memory SQLite database
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
}

var _ interfaces.MessageStore = (*Manager)(nil)

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const messageColumns = `id, room, sender, recipient, private, system, body, file, reactions, read_by, timestamp`

// NewManager opens the history database, applies migrations and starts the writer
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// FUNCTIONAL DISCOVERY: A shared-cache memory database lives only while a
	// connection holds it open, so the pool keeps exactly one forever.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if _, err := db.Exec(dbconfig.SQLiteOptimizations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	if err := dbconfig.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	log.Printf("History store ready: %s (limit %d per room)", config.Name, config.HistoryLimit)
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && !isDomainError(err) {
				log.Printf("Database write failed: %v", err)
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, types.ErrMessageNotFound) ||
		errors.Is(err, interfaces.ErrDuplicateMessage) ||
		errors.Is(err, types.ErrInvalidMessage)
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)
	timeout := time.NewTimer(m.config.WriteTimeout)
	defer timeout.Stop()

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-timeout.C:
		return fmt.Errorf("write operation timeout")
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		return interfaces.ErrStoreClosed
	}

	// Once queued the operation always runs; wait for it even if ctx ends
	return <-result
}

// StoreMessage records a message and prunes its room to the history limit
// FUNCTIONAL DISCOVERY: A client-supplied id that collides with another
// sender's message is replaced with a fresh one; the same sender reusing an id
// is a retry and reports interfaces.ErrDuplicateMessage.
func (m *Manager) StoreMessage(ctx context.Context, message *types.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var existingSender string
		err = tx.QueryRowContext(ctx, "SELECT sender FROM messages WHERE id = ?", message.ID).Scan(&existingSender)
		switch {
		case err == nil && existingSender == message.Sender:
			return interfaces.ErrDuplicateMessage
		case err == nil:
			log.Printf("Message id %s already used by %s, assigning a new id", message.ID, existingSender)
			message.ID = uuid.NewString()
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check message id: %w", err)
		}

		fileJSON, reactionsJSON, readByJSON, err := encodeMutable(message)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (`+messageColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			message.ID,
			storageRoom(message),
			message.Sender,
			nullString(message.To),
			message.Private,
			message.System,
			message.Text,
			fileJSON,
			reactionsJSON,
			readByJSON,
			message.Timestamp.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		// Keep only the newest HistoryLimit rows of this room
		room := storageRoom(message)
		_, err = tx.ExecContext(ctx, `
			DELETE FROM messages
			WHERE room = ? AND seq <= (
				SELECT seq FROM messages WHERE room = ? ORDER BY seq DESC LIMIT 1 OFFSET ?
			)
		`, room, room, m.config.HistoryLimit)
		if err != nil {
			return fmt.Errorf("failed to prune room history: %w", err)
		}

		return tx.Commit()
	})
}

// GetMessage loads one message by id
func (m *Manager) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	row := m.db.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", messageID)
	message, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", types.ErrMessageNotFound, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return message, nil
}

// UpdateMessage runs mutate inside the writer so concurrent updates never lose a change
func (m *Manager) UpdateMessage(ctx context.Context, messageID string, mutate func(*types.Message) error) (*types.Message, error) {
	var updated *types.Message
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = ?", messageID)
		message, err := scanMessage(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", types.ErrMessageNotFound, messageID)
		}
		if err != nil {
			return fmt.Errorf("failed to query message: %w", err)
		}

		if err := mutate(message); err != nil {
			return err
		}
		if err := updateMutable(ctx, tx, message); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit message update: %w", err)
		}
		updated = message
		return nil
	})
	return updated, err
}

// MarkRoomRead adds username to readBy on every message in room and returns how many changed
func (m *Manager) MarkRoomRead(ctx context.Context, room, username string) (int, error) {
	changed := 0
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx, "SELECT "+messageColumns+" FROM messages WHERE room = ? ORDER BY seq", room)
		if err != nil {
			return fmt.Errorf("failed to query room messages: %w", err)
		}
		var pending []*types.Message
		for rows.Next() {
			message, err := scanMessage(rows)
			if err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan message row: %w", err)
			}
			if message.MarkReadBy(username) {
				pending = append(pending, message)
			}
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("error iterating message rows: %w", err)
		}
		_ = rows.Close()

		for _, message := range pending {
			if err := updateMutable(ctx, tx, message); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit read receipts: %w", err)
		}
		changed = len(pending)
		return nil
	})
	return changed, err
}

// GetRoomPage returns page (1-based, newest first) of room, ordered oldest-first within the page
func (m *Manager) GetRoomPage(ctx context.Context, room string, page, limit int) ([]*types.Message, bool, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}

	// One extra row tells us whether an older page exists
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE room = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`, room, limit+1, (page-1)*limit)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query room history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]*types.Message, 0, limit)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("error iterating message rows: %w", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, hasMore, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// GetDB returns the underlying database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Close shuts down the writer and drops the in-memory database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// storageRoom maps private messages onto their participant-pair room key
func storageRoom(message *types.Message) string {
	if message.Private {
		return types.PrivateRoomKey(message.Sender, message.To)
	}
	return message.Room
}

func updateMutable(ctx context.Context, tx *sql.Tx, message *types.Message) error {
	_, reactionsJSON, readByJSON, err := encodeMutable(message)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE messages SET reactions = ?, read_by = ? WHERE id = ?",
		reactionsJSON, readByJSON, message.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", message.ID, err)
	}
	return nil
}

// TECHNICAL DISCOVERY: File, reaction and read sets are stored as JSON text
// columns; only reactions and read_by are ever rewritten.
func encodeMutable(message *types.Message) (sql.NullString, string, string, error) {
	var fileJSON sql.NullString
	if message.File != nil {
		data, err := json.Marshal(message.File)
		if err != nil {
			return fileJSON, "", "", fmt.Errorf("failed to marshal file: %w", err)
		}
		fileJSON = sql.NullString{String: string(data), Valid: true}
	}

	reactions, err := json.Marshal(types.CloneReactions(message.Reactions))
	if err != nil {
		return fileJSON, "", "", fmt.Errorf("failed to marshal reactions: %w", err)
	}
	readBy, err := json.Marshal(message.ReadBy.Clone())
	if err != nil {
		return fileJSON, "", "", fmt.Errorf("failed to marshal readBy: %w", err)
	}
	return fileJSON, string(reactions), string(readBy), nil
}

func scanMessage(row scanner) (*types.Message, error) {
	var message types.Message
	var room string
	var recipient, fileJSON sql.NullString
	var reactionsJSON, readByJSON string

	err := row.Scan(
		&message.ID,
		&room,
		&message.Sender,
		&recipient,
		&message.Private,
		&message.System,
		&message.Text,
		&fileJSON,
		&reactionsJSON,
		&readByJSON,
		&message.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	if recipient.Valid {
		message.To = recipient.String
	}
	if !message.Private {
		message.Room = room
	}
	if fileJSON.Valid {
		message.File = &types.FileRef{}
		if err := json.Unmarshal([]byte(fileJSON.String), message.File); err != nil {
			return nil, fmt.Errorf("failed to unmarshal file: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(reactionsJSON), &message.Reactions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
	}
	if message.Reactions == nil {
		message.Reactions = make(map[string]types.UserSet)
	}
	if err := json.Unmarshal([]byte(readByJSON), &message.ReadBy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal readBy: %w", err)
	}
	message.ReadBy = message.ReadBy.Clone()
	return &message, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
