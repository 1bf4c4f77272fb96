package core

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidMessage is returned when a message input is missing its room
	// or sender.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrEmptyMessage is returned when a message carries neither text nor a
	// file reference.
	ErrEmptyMessage = errors.New("empty message")
)

var validate = validator.New()

// Message is a persisted chat message. ID and CreatedAt are assigned by the
// store at insert time and never change.
type Message struct {
	ID        int       `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Text      string    `json:"text,omitempty"`
	FileURL   string    `json:"file_url,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageCreateInput represents the input for persisting a message. Text and
// the file fields are each optional, but at least one of Text or FileURL
// must be set.
type MessageCreateInput struct {
	Room     string `json:"room" validate:"required"`
	Username string `json:"username" validate:"required"`
	Text     string `json:"text"`
	FileURL  string `json:"file_url"`
	Filename string `json:"filename"`
}

// Validate validates the message input.
func (m *MessageCreateInput) Validate() error {
	if err := validate.Struct(m); err != nil {
		return ErrInvalidMessage
	}
	if m.Text == "" && m.FileURL == "" {
		return ErrEmptyMessage
	}
	return nil
}

// MessageStore is the durable side of the relay: room existence and message
// history. The core treats each call as atomic and never retries; hung or
// failed calls only affect the connection whose pipeline issued them.
type MessageStore interface {
	// EnsureRoom creates the room if it does not exist yet. Calling it for
	// an existing room is a no-op.
	EnsureRoom(ctx context.Context, name string) error

	// InsertMessage persists the message and returns it with the
	// store-assigned id and creation time.
	// It returns ErrEmptyMessage when the input has neither text nor a file
	// reference, and ErrInvalidMessage when room or sender is missing.
	InsertMessage(ctx context.Context, input MessageCreateInput) (*Message, error)

	// RecentMessages returns up to limit of the most recent messages in the
	// room, ordered by creation time ascending (oldest first). A limit of
	// zero or above 100 is clamped to 100.
	RecentMessages(ctx context.Context, room string, limit int) ([]Message, error)
}
