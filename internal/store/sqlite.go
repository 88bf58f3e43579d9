package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fzzzy/aguitest/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			parent_id TEXT,
			content TEXT NOT NULL,
			events TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveMessage inserts a new message row.
func (s *SQLiteStore) SaveMessage(ctx context.Context, content string, events []domain.ChatMessage, parentID string) (string, error) {
	if events == nil {
		events = []domain.ChatMessage{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return "", &domain.StorageError{Op: "encode events", Err: err}
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, parent_id, content, events, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, nullString(parentID), content, string(eventsJSON), time.Now().UTC(),
	)
	if err != nil {
		return "", &domain.StorageError{Op: "save message", Err: err}
	}
	return id, nil
}

// GetMessage retrieves a message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	var msg domain.Message
	var parentID sql.NullString
	var events string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, content, events, created_at FROM messages WHERE id = ?`, id,
	).Scan(&msg.ID, &parentID, &msg.Content, &events, &msg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get message", Err: err}
	}
	msg.ParentID = parentID.String
	if err := json.Unmarshal([]byte(events), &msg.Events); err != nil {
		return nil, &domain.StorageError{Op: "decode events", Err: err}
	}
	return &msg, nil
}

// Reconstruct returns the conversation ending at id, oldest first.
func (s *SQLiteStore) Reconstruct(ctx context.Context, id string) ([]*domain.Message, error) {
	return reconstruct(ctx, id, s.GetMessage)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
