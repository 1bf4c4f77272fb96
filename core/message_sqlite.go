package core

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"
)

const maxHistoryLimit = 100

type SQLiteMessageStore struct {
	db *sql.DB
}

func NewSQLiteMessageStore(db *sql.DB) *SQLiteMessageStore {
	return &SQLiteMessageStore{
		db: db,
	}
}

func (s *SQLiteMessageStore) EnsureRoom(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO rooms (name) VALUES (@name) ON CONFLICT (name) DO NOTHING",
		sql.Named("name", name))
	if err != nil {
		return fmt.Errorf("ExecContext(insert rooms): %w", err)
	}
	return nil
}

func (s *SQLiteMessageStore) InsertMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	createdAt := time.Now().UTC()
	query := `
	INSERT INTO messages (room, username, text, file_url, filename, created_at)
	VALUES (@room, @username, @text, @file_url, @filename, @created_at) RETURNING id`
	row := s.db.QueryRowContext(ctx, query,
		sql.Named("room", input.Room), sql.Named("username", input.Username),
		sql.Named("text", input.Text), sql.Named("file_url", input.FileURL),
		sql.Named("filename", input.Filename), sql.Named("created_at", createdAt))

	var id int
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return &Message{
		ID:        id,
		Room:      input.Room,
		Username:  input.Username,
		Text:      input.Text,
		FileURL:   input.FileURL,
		Filename:  input.Filename,
		CreatedAt: createdAt,
	}, nil
}

func (s *SQLiteMessageStore) RecentMessages(ctx context.Context, room string, limit int) ([]Message, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	// Newest rows first to apply the limit, reversed below so the caller
	// receives them oldest first.
	query := `
	SELECT id, room, username, text, file_url, filename, created_at
	FROM messages
	WHERE room = @room
	ORDER BY id DESC
	LIMIT @limit
	`
	rows, err := s.db.QueryContext(ctx,
		query, sql.Named("room", room), sql.Named("limit", limit))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var message Message
		var text, fileURL, filename sql.NullString
		if err := rows.Scan(&message.ID, &message.Room, &message.Username,
			&text, &fileURL, &filename, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		message.Text = text.String
		message.FileURL = fileURL.String
		message.Filename = filename.String
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
